package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cybersim-labs/cybersim/pkg/events"
)

// pausedStates are lifecycle states in which the background tick performs no
// escalation, initiative, or end checks.
var pausedStates = map[State]bool{
	StateSetup:                   true,
	StateEnded:                   true,
	StatePostInitialCrisis:       true,
	StateDecisionPointShutdown:   true,
	StateAwaitingAnalystBriefing: true,
}

// SyncRealTime advances simulation time by the real time elapsed since the
// last sync, clamped to the configured end. Idempotent under zero wall-clock
// advance.
func (m *Manager) SyncRealTime() {
	if !m.sim.Running {
		return
	}
	now := m.now().UTC()
	delta := now.Sub(m.sim.LastRealTimeSync)
	m.sim.LastRealTimeSync = now
	if remaining := m.sim.EndTime.Sub(m.sim.SimTime); delta > remaining {
		delta = remaining
	}
	if delta <= 0 {
		return
	}
	m.sim.SimTime = m.sim.SimTime.Add(delta)
	m.emit(events.TypeTimeUpdate, map[string]any{
		"current_sim_time_iso": m.sim.SimTime.Format(time.RFC3339),
	})
}

// CheckEndConditions ends the crisis phase when the time limit is hit or the
// scenario's terminal compromise occurs. Returns true when the simulation
// transitioned to the debrief phase this call.
func (m *Manager) CheckEndConditions() bool {
	s := m.sim
	if !s.Running || pausedStates[s.State] {
		return false
	}

	var reason string
	if !s.SimTime.Before(s.EndTime) {
		s.SimTime = s.EndTime
		reason = "Simulation time limit reached."
	} else if scenario, ok := GetScenario(s.ScenarioKey); ok && scenario.EndSystem != "" {
		if s.SystemStatus[scenario.EndSystem] == scenario.EndStatus {
			reason = fmt.Sprintf("Critical condition reached: %s is %s.", scenario.EndSystem, scenario.EndStatus)
		}
	}
	if reason == "" {
		return false
	}

	m.logEvent(fmt.Sprintf("Crisis phase ending: %s", reason), "alert", true, nil)
	m.display("System", fmt.Sprintf("NOTICE: %s - Transitioning to debrief phase.", reason), "SIMULATION ENDING")
	m.setState(StatePostInitialCrisis)
	m.triggerDebrief()
	return true
}

// CheckDynamicIntensity ratchets the intensity modifier down as simulation
// time passes and escalations pile up, flooring at the minimum. The modifier
// only ever decreases within a run.
func (m *Manager) CheckDynamicIntensity() {
	s := m.sim

	timeSteps := 0
	elapsedMin := s.Elapsed() / 60
	if elapsedMin >= 20 {
		timeSteps = 2
	} else if elapsedMin >= 10 {
		timeSteps = 1
	}
	escSteps := 0
	if s.EscalationLevel >= 4 {
		escSteps = 2
	} else if s.EscalationLevel >= 2 {
		escSteps = 1
	}

	targetTime := s.InitialIntensityMod
	for i := 0; i < timeSteps; i++ {
		targetTime *= intensityDecayFactor
	}
	targetEsc := s.InitialIntensityMod
	for i := 0; i < escSteps; i++ {
		targetEsc *= intensityDecayFactor
	}
	target := targetTime
	if targetEsc < target {
		target = targetEsc
	}

	if target < s.CurrentIntensityMod && s.CurrentIntensityMod-target >= 0.001 {
		old := s.CurrentIntensityMod
		clamped := target
		if clamped < minIntensityMod {
			clamped = minIntensityMod
		}
		s.CurrentIntensityMod = clamped

		var parts []string
		if targetTime < s.InitialIntensityMod {
			if timeSteps >= 2 {
				parts = append(parts, "Time passed 20m")
			} else {
				parts = append(parts, "Time passed 10m")
			}
		}
		if targetEsc < s.InitialIntensityMod {
			if escSteps >= 2 {
				parts = append(parts, "Esc Lvl 4")
			} else {
				parts = append(parts, "Esc Lvl 2")
			}
		}
		reason := strings.Join(parts, " & ")
		if clamped == minIntensityMod && target < minIntensityMod {
			reason += " (Hit Min)"
		}

		m.logEvent(fmt.Sprintf("Dynamic Intensity Change! %.2fx -> %.2fx. Reason: %s",
			old, s.CurrentIntensityMod, reason), "alert", true, nil)
		m.emit(events.TypeIntensityUpdate, map[string]any{
			"current_intensity_mod": s.CurrentIntensityMod,
			"reason":                reason,
		})
	}
	s.LastIntensityCheck = s.SimTime
}

// GenerateNoise emits a burst of background log noise when due.
func (m *Manager) GenerateNoise() {
	s := m.sim
	if s.SimTime.Sub(s.LastLogNoise).Seconds() < noiseInterval {
		return
	}
	for _, entry := range m.gen.Noise(s.SimTime) {
		m.emitFeedEntry(entry, false)
	}
	s.LastLogNoise = s.SimTime
}

// CheckBackgroundEvents runs agent initiative (at most one outbound call per
// tick) and the scenario escalation rules.
func (m *Manager) CheckBackgroundEvents(ctx context.Context) {
	s := m.sim
	if pausedStates[s.State] {
		return
	}

	m.checkAgentInitiative(ctx)
	m.checkEscalation()

	s.LastBackgroundCheck = s.SimTime
}

type initiativeCandidate struct {
	name     string
	isUpdate bool
	reason   string
}

func (c initiativeCandidate) urgent() bool {
	return strings.Contains(c.reason, "critical") || strings.Contains(c.reason, "alert")
}

func (m *Manager) checkAgentInitiative(ctx context.Context) {
	s := m.sim
	mod := s.effectiveIntensity()
	elapsed := s.Elapsed()

	var candidates []initiativeCandidate
	for name, agent := range s.Agents {
		switch agent.State {
		case AgentAvailable, AgentInvestigating, AgentBusyMonitoring:
		default:
			continue
		}
		if name == s.ActivePartner || name == s.WaitingCaller {
			continue
		}
		if agent.LastContactTime != nil && s.SimTime.Sub(*agent.LastContactTime) < agentContactCooldown {
			continue
		}

		switch name {
		case "Paul Kahn":
			if !agent.Flags["called_by_player"] && !agent.Flags["attempted_call"] && elapsed >= execPanicDelay*mod {
				candidates = append(candidates, initiativeCandidate{name: name, reason: "executive panic timer"})
			}
		case "Hao Wang":
			if agent.State != AgentInvestigating {
				continue
			}
			interval := baseIdleUpdateInterval * mod
			ref := agent.LastUpdateTime
			if ref == nil {
				ref = agent.LastContactTime
			}
			if ref != nil && s.SimTime.Sub(*ref).Seconds() >= interval {
				candidates = append(candidates, initiativeCandidate{name: name, isUpdate: true, reason: "periodic investigation update"})
			} else if ref == nil && elapsed > interval/2 {
				candidates = append(candidates, initiativeCandidate{name: name, isUpdate: true, reason: "initial investigation update"})
			}
		case "Lynda Carney":
			if agent.State != AgentBusyMonitoring {
				continue
			}
			if m.anySystemStatus("ENCRYPTING") && !agent.Flags["alerted_encryption"] {
				candidates = append(candidates, initiativeCandidate{name: name, isUpdate: true, reason: "SOC encryption alert"})
				continue
			}
			if m.anyCompromisedSystem() && !agent.Flags["alerted_critical"] {
				candidates = append(candidates, initiativeCandidate{name: name, isUpdate: true, reason: "SOC critical system alert"})
				continue
			}
			interval := (baseIdleUpdateInterval / 1.5) * mod
			ref := agent.LastUpdateTime
			if ref == nil {
				ref = agent.LastContactTime
			}
			if (ref != nil && s.SimTime.Sub(*ref).Seconds() >= interval) || (ref == nil && elapsed > interval) {
				candidates = append(candidates, initiativeCandidate{name: name, isUpdate: true, reason: "periodic SOC update"})
			}
		}
	}
	if len(candidates) == 0 {
		return
	}

	// Urgent callers outrank routine updates; random tie-break within class.
	var pool []initiativeCandidate
	for _, c := range candidates {
		if c.urgent() {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}
	chosen := pool[m.rng.IntN(len(pool))]

	if chosen.name == "Lynda Carney" {
		agent := s.Agents[chosen.name]
		switch chosen.reason {
		case "SOC encryption alert":
			agent.Flags["alerted_encryption"] = true
		case "SOC critical system alert":
			agent.Flags["alerted_critical"] = true
		}
	}

	m.logEvent(fmt.Sprintf("Triggering agent contact from background check: %s", chosen.name), "debug", false, nil)
	m.updateAgentState(chosen.name, AgentTryingToCallCTO)
	m.handleAgentContact(ctx, chosen.name, contactByAgent, chosen.isUpdate)
}

func (m *Manager) anySystemStatus(status string) bool {
	for _, v := range m.sim.SystemStatus {
		if v == status {
			return true
		}
	}
	return false
}

func (m *Manager) anyCompromisedSystem() bool {
	for _, v := range m.sim.SystemStatus {
		if strings.Contains(v, "CRITICAL") || strings.Contains(v, "COMPROMISED") {
			return true
		}
	}
	return false
}

func (m *Manager) checkEscalation() {
	s := m.sim
	mod := s.effectiveIntensity()

	if s.SimTime.Sub(s.LastEscalationCheck).Seconds() < baseEscalationCheckInterval*mod {
		return
	}

	scenario, ok := GetScenario(s.ScenarioKey)
	if ok {
		for i, rule := range scenario.Rules {
			if !m.ruleConditionMet(rule, mod) {
				continue
			}
			m.logEvent(fmt.Sprintf("Esc Rule #%d Condition Met.", i+1), "info", true, nil)
			if s.SystemStatus[rule.System] == rule.NewStatus {
				continue
			}
			var extras map[string]any
			if rule.LogDetails != nil {
				extras = rule.LogDetails(m.rng)
			}
			m.updateSystemStatus(rule.System, rule.NewStatus, rule.Reason, rule.LogType, extras)

			s.EscalationLevel++
			s.Metrics.EscalationsTriggered = s.EscalationLevel
			m.logEvent(fmt.Sprintf("** Attack Escalated! (Level %d) **", s.EscalationLevel), "alert", true, nil)
			m.display("System Alert", fmt.Sprintf("ESCALATION DETECTED (Lvl %d)!", s.EscalationLevel), "ESCALATION ALERT")
			m.CheckDynamicIntensity()
			break
		}
	}
	s.LastEscalationCheck = s.SimTime
}

// ruleConditionMet evaluates one escalation rule against the current state.
// Thresholds and mitigation windows stretch as the intensity modifier drops.
func (m *Manager) ruleConditionMet(rule Rule, mod float64) bool {
	s := m.sim
	for _, cond := range rule.When {
		status := s.SystemStatus[cond.System]
		if cond.Contains {
			if !strings.Contains(status, cond.Status) {
				return false
			}
		} else if status != cond.Status {
			return false
		}
	}
	if s.Elapsed() <= rule.AfterSeconds/mod {
		return false
	}
	if rule.Mitigation != nil {
		window := time.Duration(rule.Mitigation.WindowMinutes / mod * float64(time.Minute))
		if m.checkPlayerAction(rule.Mitigation.Action, rule.Mitigation.Target, window) {
			return false
		}
	}
	return true
}
