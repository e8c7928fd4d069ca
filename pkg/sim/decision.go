package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
)

// decisionReadyFraction of the configured duration after which the directive
// can be demanded without consultations.
const decisionReadyFraction = 0.6

// enterDecisionPoint opens the containment directive decision when the
// situation warrants it (or the player forces it via 'decide').
func (m *Manager) enterDecisionPoint(playerForced bool) {
	s := m.sim

	haoAdvised := false
	if hao, ok := s.Agents["Hao Wang"]; ok {
		haoAdvised = hao.Flags["has_advised_caution"]
	}
	paulDemanded := false
	if paul, ok := s.Agents["Paul Kahn"]; ok {
		paulDemanded = paul.Flags["has_demanded_shutdown"]
	}

	readyElapsed := s.EndTime.Sub(s.StartTime).Seconds() * decisionReadyFraction
	ready := playerForced ||
		m.anyCompromisedSystem() ||
		(haoAdvised && paulDemanded) ||
		s.Elapsed() > readyElapsed

	if !ready {
		var missing []string
		if !haoAdvised {
			missing = append(missing, "Hao Wang's technical assessment")
		}
		if !paulDemanded {
			missing = append(missing, "Paul Kahn's position")
		}
		m.display("System", fmt.Sprintf(
			"Not enough information for a containment directive yet (missing: %s). Use 'decide' to force the decision.",
			strings.Join(missing, ", ")), "")
		return
	}

	m.setState(StateDecisionPointShutdown)

	yesNo := func(b bool) string {
		if b {
			return "YES"
		}
		return "NO"
	}
	summaryLines := []string{
		fmt.Sprintf("Hao Wang advised caution: %s", yesNo(haoAdvised)),
		fmt.Sprintf("Paul Kahn demanded shutdown: %s", yesNo(paulDemanded)),
		fmt.Sprintf("Current status: %s", m.statusSummary(true)),
	}

	m.emit(events.TypeDecisionPointInfo, map[string]any{
		"title":          "Decision Required: Containment Directive",
		"summary":        strings.Join(summaryLines, "\n"),
		"current_status": copyStatusMap(s.SystemStatus),
		"options": []map[string]any{
			{"id": "Hold", "label": "Hold - maintain current posture, keep diagnosing"},
			{"id": "Targeted", "label": "Targeted - isolate only the affected systems"},
			{"id": "Broad", "label": "Broad - take all core systems offline"},
		},
	})
	m.display("System", "Directive Required: Enter 'Hold', 'Targeted', or 'Broad'.", "")
}

// applyShutdownDecision executes the chosen containment directive and moves
// the simulation into the debrief phase.
func (m *Manager) applyShutdownDecision(lower string) {
	s := m.sim

	var directive, outcome string
	switch {
	case strings.Contains(lower, "hold"):
		directive = "Hold"
		outcome = "Holding current posture. No systems taken offline."

	case strings.Contains(lower, "targeted"):
		directive = "Targeted"
		scenario, _ := GetScenario(s.ScenarioKey)
		isolated := 0
		for _, entry := range scenario.TargetedShutdown {
			status, ok := s.SystemStatus[entry.System]
			if !ok {
				continue
			}
			matched := false
			for _, kw := range entry.Keywords {
				if strings.Contains(status, kw) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			m.updateSystemStatus(entry.System, "ISOLATING (Manual)",
				fmt.Sprintf("(Targeted SD by %s)", s.PlayerName), "SYSTEM_ISOLATION_MANUAL",
				map[string]any{"system_name": entry.System, "directive": "Targeted Shutdown"})
			isolated++
		}
		outcome = fmt.Sprintf("Targeted shutdown executed. %d system(s) isolating.", isolated)

	case strings.Contains(lower, "broad"):
		directive = "Broad"
		taken := 0
		for _, key := range broadShutdownOrder {
			status, ok := s.SystemStatus[key]
			if !ok {
				continue
			}
			if strings.Contains(status, "OFFLINE") || strings.Contains(status, "ISOLATED") {
				continue
			}
			m.updateSystemStatus(key, "OFFLINE (Manual)",
				fmt.Sprintf("(Broad SD by %s)", s.PlayerName), "SERVICE_SHUTDOWN_MANUAL",
				map[string]any{"service_name": key, "directive": "Broad Shutdown"})
			taken++
		}
		outcome = fmt.Sprintf("Broad shutdown executed. %d system(s) taken offline.", taken)

	default:
		m.display("System", "Invalid decision. Enter 'Hold', 'Targeted', or 'Broad'.", "")
		return
	}

	s.PlayerDecisions["shutdown_directive"] = directive
	m.logPlayerAction("decide_shutdown", directive, nil)
	m.display("System", outcome, "")
	m.display("System", fmt.Sprintf("[Internal Comm: Directive '%s' circulated to response teams.]", directive), "")
	m.setState(StatePostInitialCrisis)
	m.triggerDebrief()
}

// handleBriefingPrompt processes the yes/no answer to the PR talking-points
// offer after the crisis phase.
func (m *Manager) handleBriefingPrompt(lower string) {
	switch lower {
	case "yes", "y":
		m.display("System", "Understood. Draft concise talking points for the PR team.", "")
		m.emit(events.TypeRequestAnalystInput, map[string]any{
			"prompt":           "Provide concise talking points:",
			"context_question": "What should the public statement convey about the incident?",
		})
		m.setState(StateAwaitingAnalystBriefing)
	case "no", "n":
		m.EndSimulation()
	default:
		m.display("System", "Please enter 'yes' or 'no'.", "")
	}
}

// TriggerBriefingPrompt asks whether the player wants the PR review step.
func (m *Manager) TriggerBriefingPrompt() {
	m.emit(events.TypeRequestYesNo, map[string]any{
		"question":       "Do you want to prepare talking points for the PR team? (yes/no)",
		"action_context": "prepare_analyst_briefing",
	})
}

// RequestUserRating prompts for the player's star rating after the debrief.
func (m *Manager) RequestUserRating() {
	switch m.sim.State {
	case StatePostInitialCrisis, StateAwaitingUserRating:
		m.setState(StateAwaitingUserRating)
		m.emit(events.TypeRequestUserRating, map[string]any{
			"message": "Please rate your experience and provide feedback.",
		})
	}
}

// HandleAnalystBriefing runs the PR feedback round on the player's talking
// points, then ends the simulation.
func (m *Manager) HandleAnalystBriefing(ctx context.Context, talkingPoints string) {
	s := m.sim
	trimmed := strings.TrimSpace(talkingPoints)
	if len(trimmed) < 5 {
		m.display("System", "No usable talking points provided. Skipping PR review.", "")
		m.EndSimulation()
		return
	}

	m.logPlayerAction("briefing", "", nil)
	m.display("System", "Processing talking points with PR Head...", "")

	directive := s.PlayerDecisions["shutdown_directive"]
	if directive == "" {
		directive = "None"
	}
	prompt := fmt.Sprintf(
		"Scenario: %s\nCTO decision: %s\nFinal status summary: %s\n\nDraft talking points from the CTO:\n%s\n\nReview these talking points. Start with \"PR Feedback:\".",
		s.ScenarioKey, directive, m.statusSummary(true), trimmed)

	spec, _ := AgentSpecFor("PR Head")
	reply := m.oracle.Generate(ctx, oracle.Request{
		AgentName:   "PR Head",
		System:      spec.Persona,
		History:     []oracle.Turn{},
		Input:       prompt,
		MaxTokens:   prFeedbackMaxTokens,
		Temperature: prFeedbackTemp,
	})

	m.display("PR Head (Feedback)", reply, "PR REVIEW FEEDBACK")
	m.EndSimulation()
}

// triggerDebrief publishes the final report and performance metrics.
func (m *Manager) triggerDebrief() {
	s := m.sim

	m.display("System", "--- Crisis Management Phase Over ---", "PHASE CHANGE")

	finalStatus := "--- Final System Status ---\n" + m.statusSummary(false)

	timeToCritical := "N/A"
	if s.Metrics.TimeToFirstCritical != nil {
		timeToCritical = fmt.Sprintf("%.0fs (sim)", s.Metrics.TimeToFirstCritical.Sub(s.StartTime).Seconds())
	}
	contacted := contactedAgents(s.Metrics)

	directive := s.PlayerDecisions["shutdown_directive"]
	if directive == "" {
		directive = "None"
	}

	summaryPoints := []string{
		fmt.Sprintf("Scenario: %s", s.ScenarioKey),
		fmt.Sprintf("Intensity: %.1fx -> %.1fx", s.InitialIntensityMod, s.CurrentIntensityMod),
		fmt.Sprintf("Player Decision: '%s'", directive),
		"--- Performance Metrics (Simulation Time) ---",
		fmt.Sprintf("- Time to Critical: %s", timeToCritical),
		fmt.Sprintf("- Systems Compromised: %d", s.Metrics.SystemsCompromisedCount),
		fmt.Sprintf("- Escalations Triggered: %d", s.Metrics.EscalationsTriggered),
		fmt.Sprintf("- Time Wasted Waiting: %.0fs (sim)", s.Metrics.TimeWastedWaiting),
		fmt.Sprintf("- Agents Contacted: %d (%s)", len(contacted), strings.Join(contacted, ", ")),
		fmt.Sprintf("- Key Actions Taken: %d", len(s.Metrics.KeyActionsTaken)),
	}

	m.emit(events.TypeDebriefInfo, map[string]any{
		"title":               "-- Simulation Debrief --",
		"final_status_report": finalStatus,
		"summary_points":      summaryPoints,
		"performance_rating":  nil,
	})
}

// EndSimulation stops the run.
func (m *Manager) EndSimulation() {
	m.sim.Running = false
	m.setState(StateEnded)
	m.emit(events.TypeSimulationEnded, map[string]any{
		"message": "Simulation Complete. Review the debrief information.",
	})
}

func contactedAgents(metrics Metrics) []string {
	names := make([]string, 0, len(metrics.AgentsContacted))
	for name := range metrics.AgentsContacted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
