package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRatingReplyValid(t *testing.T) {
	reply := `{"timeliness_score": 7, "contact_strategy_score": 6, "decision_quality_score": 8,
		"efficiency_score": 5, "overall_score": 7, "qualitative_feedback": "Good containment."}`
	got := validateRatingReply(reply)
	assert.Equal(t, 7, got["timeliness_score"])
	assert.Equal(t, 8, got["decision_quality_score"])
	assert.Equal(t, "Good containment.", got["qualitative_feedback"])
	_, hasErr := got["error"]
	assert.False(t, hasErr)
}

func TestValidateRatingReplyExtractsEmbeddedJSON(t *testing.T) {
	reply := "Here is my assessment:\n" +
		`{"timeliness_score": 9, "contact_strategy_score": 9, "decision_quality_score": 9,
		"efficiency_score": 9, "overall_score": 9, "qualitative_feedback": "Excellent."}` +
		"\nLet me know if you need more detail."
	got := validateRatingReply(reply)
	assert.Equal(t, 9, got["overall_score"])
	_, hasErr := got["error"]
	assert.False(t, hasErr)
}

func TestValidateRatingReplyClampsAndDefaults(t *testing.T) {
	reply := `{"timeliness_score": 15, "contact_strategy_score": 0, "decision_quality_score": "eight",
		"efficiency_score": 5, "overall_score": 7, "qualitative_feedback": "  "}`
	got := validateRatingReply(reply)
	require.Contains(t, got, "error")
	partial := got["partial_rating"].(map[string]any)
	assert.Equal(t, 10, partial["timeliness_score"])
	assert.Equal(t, 1, partial["contact_strategy_score"])
	assert.Equal(t, 5, partial["decision_quality_score"]) // non-integer falls back
	assert.Equal(t, "(Feedback not provided or invalid)", partial["qualitative_feedback"])
}

func TestValidateRatingReplyMissingScore(t *testing.T) {
	got := validateRatingReply(`{"overall_score": 6, "qualitative_feedback": "ok"}`)
	require.Contains(t, got, "error")
	assert.Contains(t, got["error"], "timeliness_score missing")
	partial := got["partial_rating"].(map[string]any)
	assert.Equal(t, 6, partial["overall_score"])
	assert.Equal(t, 5, partial["timeliness_score"])
}

func TestValidateRatingReplyNotJSON(t *testing.T) {
	got := validateRatingReply("I would rate this performance a solid seven.")
	assert.Contains(t, got, "error")
	assert.NotContains(t, got, "partial_rating")
}

func TestGenerateRatingOracleFailure(t *testing.T) {
	ora := &scriptedOracle{replies: []string{"(Performance Assessor connection timed out)"}}
	m, _ := newTestManager(ora)
	startRansomware(t, m)

	got := m.GenerateRating(context.Background())
	require.Contains(t, got, "error")
	assert.Contains(t, got["error"], "rating unavailable")
}

func TestGenerateRatingPromptContents(t *testing.T) {
	ora := &scriptedOracle{replies: []string{
		`{"timeliness_score": 5, "contact_strategy_score": 5, "decision_quality_score": 5,
		"efficiency_score": 5, "overall_score": 5, "qualitative_feedback": "Average run."}`,
	}}
	m, _ := newTestManager(ora)
	startRansomware(t, m)
	s := m.Simulation()
	s.PlayerDecisions["shutdown_directive"] = "Targeted"
	m.logPlayerAction("isolate", "File_Servers", nil)

	got := m.GenerateRating(context.Background())
	assert.Equal(t, 5, got["overall_score"])

	require.Len(t, ora.calls, 1)
	req := ora.calls[0]
	assert.Equal(t, "Performance Assessor", req.AgentName)
	assert.Equal(t, ratingMaxTokens, req.MaxTokens)
	assert.InDelta(t, ratingTemp, req.Temperature, 0.0001)
	assert.Contains(t, req.Input, "Scenario: Ransomware")
	assert.Contains(t, req.Input, "Player Decision: 'Targeted'")
	assert.Contains(t, req.Input, "isolate File_Servers")
}
