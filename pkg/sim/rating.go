package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cybersim-labs/cybersim/pkg/oracle"
)

// ratingScoreKeys are the integer 1-10 fields required in a rating reply.
var ratingScoreKeys = []string{
	"timeliness_score",
	"contact_strategy_score",
	"decision_quality_score",
	"efficiency_score",
	"overall_score",
}

const assessorPersona = "You are an expert cyber incident response simulation performance assessor."

const ratingEventHighlights = 30

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// GenerateRating asks the oracle to score the run and validates the reply.
// The result either holds the five scores plus qualitative_feedback, or an
// "error" key (possibly alongside a "partial_rating").
func (m *Manager) GenerateRating(ctx context.Context) map[string]any {
	s := m.sim

	directive := s.PlayerDecisions["shutdown_directive"]
	if directive == "" {
		directive = "None"
	}
	timeToCritical := "N/A"
	if s.Metrics.TimeToFirstCritical != nil {
		timeToCritical = fmt.Sprintf("%.0fs", s.Metrics.TimeToFirstCritical.Sub(s.StartTime).Seconds())
	}

	keyActions := make([]string, 0, len(s.Metrics.KeyActionsTaken))
	for _, ka := range s.Metrics.KeyActionsTaken {
		keyActions = append(keyActions, fmt.Sprintf("[%s] %s %s", ka.Time, ka.Action, ka.Target))
	}
	highlights := s.EventLogHistory
	if len(highlights) > ratingEventHighlights {
		highlights = highlights[len(highlights)-ratingEventHighlights:]
	}

	scenario, _ := GetScenario(s.ScenarioKey)
	prompt := fmt.Sprintf(`Assess the CTO's performance in this incident response simulation.

Scenario: %s
Description: %s
Intensity: %.1fx -> %.1fx
Elapsed (sim seconds): %.0f
Player Decision: '%s'

Final System Status:
%s

Metrics:
- SimTimeToCritical: %s
- CompromisedSystems: %d
- EscalationsTriggered: %d
- SimTimeWastedWaiting: %.0fs
- AgentsContacted: %s
- KeyActionsTaken: %s

Event Highlights:
%s

Respond with a JSON object ONLY. All scores are integers on a 1-10 scale.
Required keys: timeliness_score, contact_strategy_score, decision_quality_score, efficiency_score, overall_score, qualitative_feedback.
Example:
{"timeliness_score": 7, "contact_strategy_score": 6, "decision_quality_score": 8, "efficiency_score": 5, "overall_score": 7, "qualitative_feedback": "Concise assessment here."}`,
		s.ScenarioKey, scenario.Description,
		s.InitialIntensityMod, s.CurrentIntensityMod,
		s.Elapsed(), directive,
		m.statusSummary(false),
		timeToCritical,
		s.Metrics.SystemsCompromisedCount,
		s.Metrics.EscalationsTriggered,
		s.Metrics.TimeWastedWaiting,
		strings.Join(contactedAgents(s.Metrics), ", "),
		strings.Join(keyActions, "; "),
		strings.Join(highlights, "\n"))

	reply := m.oracle.Generate(ctx, oracle.Request{
		AgentName:   "Performance Assessor",
		System:      assessorPersona,
		Input:       prompt,
		MaxTokens:   ratingMaxTokens,
		Temperature: ratingTemp,
	})

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.HasPrefix(reply, "(") {
		return map[string]any{"error": fmt.Sprintf("rating unavailable: %s", reply)}
	}
	return validateRatingReply(reply)
}

// validateRatingReply parses and strictly validates a rating JSON reply.
func validateRatingReply(reply string) map[string]any {
	raw := reply
	if match := jsonObjectRe.FindString(reply); match != "" {
		raw = match
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]any{"error": fmt.Sprintf("rating reply was not valid JSON: %v", err)}
	}

	validated := map[string]any{}
	var problems []string

	for _, key := range ratingScoreKeys {
		value, ok := parsed[key]
		if !ok {
			validated[key] = 5
			problems = append(problems, fmt.Sprintf("%s missing", key))
			continue
		}
		num, ok := value.(float64)
		if !ok || num != math.Trunc(num) {
			validated[key] = 5
			problems = append(problems, fmt.Sprintf("%s not an integer", key))
			continue
		}
		score := int(num)
		if score < 1 {
			score = 1
			problems = append(problems, fmt.Sprintf("%s below range", key))
		} else if score > 10 {
			score = 10
			problems = append(problems, fmt.Sprintf("%s above range", key))
		}
		validated[key] = score
	}

	feedback, _ := parsed["qualitative_feedback"].(string)
	if strings.TrimSpace(feedback) == "" {
		feedback = "(Feedback not provided or invalid)"
	}
	validated["qualitative_feedback"] = feedback

	if len(problems) > 0 {
		return map[string]any{
			"error":          strings.Join(problems, "; "),
			"partial_rating": validated,
		}
	}
	return validated
}
