package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/cybersim-labs/cybersim/pkg/events"
)

// Contact initiators.
const (
	contactByPlayer = "player"
	contactByAgent  = "agent"
)

// handleAgentContact routes a call attempt between the player and an agent.
// Agent-initiated calls against a busy player land in the single waiting
// slot, or in missed calls when the slot is taken.
func (m *Manager) handleAgentContact(ctx context.Context, agentName, initiatedBy string, isUpdate bool) {
	s := m.sim
	agent, ok := s.Agents[agentName]
	if !ok {
		m.display("System", fmt.Sprintf("Error: Unknown contact '%s'.", agentName), "")
		return
	}

	s.Metrics.AgentsContacted[agentName] = true
	if agentName == "Hao Wang" || agentName == "Legal Counsel" {
		if _, seen := s.Metrics.CriticalAgentContactTime[agentName]; !seen {
			s.Metrics.CriticalAgentContactTime[agentName] = s.SimTime
		}
	}

	if initiatedBy == contactByAgent {
		if s.ActivePartner != "" {
			if s.WaitingCaller == "" {
				s.WaitingCaller = agentName
				m.updateAgentState(agentName, AgentWaitingCTOResponse)
				m.emit(events.TypeCallWaiting, map[string]any{
					"agent_name":   agentName,
					"current_call": s.ActivePartner,
				})
			} else {
				m.recordMissedCall(agentName)
				m.updateAgentState(agentName, AgentAvailable)
			}
			return
		}
		label := ""
		if isUpdate {
			label = " (Update)"
		}
		m.display("System", fmt.Sprintf("*** Incoming Contact: %s%s ***", agentName, label), "INCOMING CALL")
		m.establishCall(ctx, agentName, contactByAgent, isUpdate)
		return
	}

	// Player-initiated.
	if s.ActivePartner != "" {
		m.display("System", fmt.Sprintf("Cannot call %s. Already talking to %s.", agentName, s.ActivePartner), "")
		return
	}
	if s.WaitingCaller == agentName {
		s.WaitingCaller = ""
		m.emit(events.TypeCallAnswered, map[string]any{"agent_name": agentName})
		m.establishCall(ctx, agentName, contactByAgent, isUpdate)
		return
	}
	switch agent.State {
	case AgentAvailable, AgentInvestigating, AgentBusyMonitoring:
	default:
		m.display("System", fmt.Sprintf("%s is currently unavailable (%s).", agentName, agent.State), "")
		return
	}
	m.display("System", "[Connecting...]", "")
	m.removeMissedCall(agentName)
	m.establishCall(ctx, agentName, contactByPlayer, false)
}

// establishCall connects the player with an agent, fires the opening line
// through the oracle, and derives keyword flags from the reply.
func (m *Manager) establishCall(ctx context.Context, agentName, initiatedBy string, isUpdate bool) {
	s := m.sim
	agent := s.Agents[agentName]
	spec, _ := AgentSpecFor(agentName)

	s.ActivePartner = agentName
	m.updateAgentState(agentName, AgentOnCallWithCTO)
	contactTime := s.SimTime
	agent.LastContactTime = &contactTime
	m.setState(StateInConversation)
	m.emit(events.TypeConversationStarted, map[string]any{"agent_name": agentName})

	persona := spec.Persona
	var trigger string
	if initiatedBy == contactByPlayer {
		trigger = fmt.Sprintf("Hi %s, it's %s. Need an update on the '%s' situation.",
			firstName(agentName), s.PlayerName, s.ScenarioKey)
		agent.Flags["called_by_player"] = true
	} else {
		agent.Flags["attempted_call"] = true
		if isUpdate && spec.UpdatePersona != "" {
			persona = spec.UpdatePersona
			trigger = "This is a quick status update regarding the incident."
			updateTime := s.SimTime
			agent.LastUpdateTime = &updateTime
		} else {
			trigger = initialTrigger(agentName, s.PlayerName, s.PlayerRole)
			if agentName == "Paul Kahn" {
				agent.Flags["has_demanded_shutdown"] = true
			}
		}
	}

	m.addHistory(agentName, "user", fmt.Sprintf("[Simulation Trigger: %s]", trigger))
	reply := m.callAgentOracle(ctx, agentName, persona, trigger)
	m.addHistory(agentName, "assistant", reply)
	m.display(agentName, reply, "")
	m.applyReplyFlags(agentName, reply)
}

// applyReplyFlags derives negotiation flags from what an agent said.
func (m *Manager) applyReplyFlags(agentName, reply string) {
	agent, ok := m.sim.Agents[agentName]
	if !ok {
		return
	}
	lower := strings.ToLower(reply)
	switch agentName {
	case "Hao Wang":
		if strings.Contains(lower, "caution") || strings.Contains(lower, "diagnose") || strings.Contains(lower, "don't shutdown") {
			if !agent.Flags["has_advised_caution"] {
				agent.Flags["has_advised_caution"] = true
				m.logEvent("Flag set: Hao advised caution", "debug", false, nil)
			}
		}
	case "Paul Kahn":
		if strings.Contains(lower, "shut down") || strings.Contains(lower, "drastic action") || strings.Contains(lower, "take control") {
			if !agent.Flags["has_demanded_shutdown"] {
				agent.Flags["has_demanded_shutdown"] = true
				m.logEvent("Flag set: Paul demanded shutdown", "debug", false, nil)
			}
		}
	}
}

// hangUp ends the active conversation, restores the agent's baseline state,
// and sends any still-waiting caller to missed calls.
func (m *Manager) hangUp() {
	s := m.sim
	partner := s.ActivePartner
	if partner == "" {
		return
	}
	m.display("System", fmt.Sprintf("[Ending conversation with %s]", partner), "")

	restored := AgentAvailable
	switch partner {
	case "Lynda Carney":
		restored = AgentBusyMonitoring
	case "Hao Wang":
		if s.SystemStatus["VPN_Access"] == "NOMINAL" {
			restored = AgentInvestigating
		}
	}
	m.updateAgentState(partner, restored)

	if s.WaitingCaller != "" {
		waiting := s.WaitingCaller
		s.WaitingCaller = ""
		m.recordMissedCall(waiting)
		m.emit(events.TypeCallIgnored, map[string]any{"agent_name": waiting})
		m.updateAgentState(waiting, AgentAvailable)
	}

	s.ActivePartner = ""
	m.setState(StateAwaitingPlayerChoice)
	m.emit(events.TypeConversationEnded, map[string]any{"agent_name": partner})
}

func (m *Manager) recordMissedCall(agentName string) {
	for _, name := range m.sim.MissedCalls {
		if name == agentName {
			return
		}
	}
	m.sim.MissedCalls = append(m.sim.MissedCalls, agentName)
	m.emit(events.TypeMissedCallsUpdate, map[string]any{"missed_calls": append([]string{}, m.sim.MissedCalls...)})
}

func (m *Manager) removeMissedCall(agentName string) {
	for i, name := range m.sim.MissedCalls {
		if name == agentName {
			m.sim.MissedCalls = append(m.sim.MissedCalls[:i], m.sim.MissedCalls[i+1:]...)
			m.emit(events.TypeMissedCallsUpdate, map[string]any{"missed_calls": append([]string{}, m.sim.MissedCalls...)})
			return
		}
	}
}
