package sim

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/cybersim-labs/cybersim/pkg/events"
)

// conversationCommands are inputs treated as commands (not chat) while a
// conversation is active.
var conversationCommands = map[string]bool{
	"hang up":      true,
	"end call":     true,
	"bye":          true,
	"end":          true,
	"status":       true,
	"check status": true,
	"answer call":  true,
	"ignore call":  true,
}

var hangUpCommands = map[string]bool{
	"hang up":  true,
	"end call": true,
	"bye":      true,
	"end":      true,
}

// HandlePlayerInput dispatches one player command according to the current
// lifecycle state. Inputs against a finished or unstarted simulation are
// ignored.
func (m *Manager) HandlePlayerInput(ctx context.Context, raw string) {
	s := m.sim
	if !s.Running || s.State == StateEnded {
		return
	}

	action := strings.TrimSpace(raw)
	lower := strings.ToLower(action)
	isChat := s.State == StateInConversation && !conversationCommands[lower]

	logged := action
	if len(logged) > 100 {
		logged = logged[:100]
	}
	m.logEvent(fmt.Sprintf("Player action in state '%s': %s", s.State, logged), "info", !isChat, nil)

	switch s.State {
	case StateAwaitingPlayerChoice:
		m.handleChoiceInput(ctx, action, lower)
	case StateInConversation:
		m.handleConversationInput(ctx, action, lower)
	case StateDecisionPointShutdown:
		m.applyShutdownDecision(lower)
	case StatePostInitialCrisis, StateAwaitingUserRating:
		m.handleBriefingPrompt(lower)
	case StateAwaitingAnalystBriefing:
		m.HandleAnalystBriefing(ctx, action)
	default:
		short := action
		if len(short) > 20 {
			short = short[:20]
		}
		m.display("System", fmt.Sprintf("Action '%s...' not applicable in current state (%s).", short, s.State), "")
	}
}

func (m *Manager) handleChoiceInput(ctx context.Context, action, lower string) {
	s := m.sim
	switch {
	case strings.HasPrefix(lower, "call "):
		target := strings.TrimSpace(action[len("call "):])
		name, ok := m.findAgent(target)
		if !ok {
			m.display("System", fmt.Sprintf("Unknown contact '%s'.", target), "")
			return
		}
		m.logPlayerAction("call", name, nil)
		m.handleAgentContact(ctx, name, contactByPlayer, false)

	case strings.HasPrefix(lower, "isolate "):
		target := strings.TrimSpace(action[len("isolate "):])
		key, ok := m.findSystem(target)
		if !ok {
			m.display("System", fmt.Sprintf("Unknown system '%s'.", target), "")
			return
		}
		m.logPlayerAction("isolate", key, nil)
		m.isolateSystem(key)

	case strings.HasPrefix(lower, "block ip "):
		ip := strings.TrimSpace(action[len("block ip "):])
		if !validIPv4(ip) {
			m.display("System", fmt.Sprintf("Invalid IP format: '%s'.", ip), "")
			return
		}
		m.logPlayerAction("block_ip", ip, nil)
		m.blockIP(ip)

	case lower == "wait":
		m.display("System", "Acknowledged. Time continues to pass...", "")
		m.logPlayerAction("wait", "", map[string]any{"duration": 0})

	case lower == "status" || lower == "check status":
		m.display("System Status", m.statusSummary(false), "")

	case strings.HasPrefix(lower, "status check "):
		target := strings.TrimSpace(action[len("status check "):])
		key, ok := m.findSystem(target)
		if !ok {
			m.display("System", fmt.Sprintf("Unknown system '%s'.", target), "")
			return
		}
		m.display("System Status", fmt.Sprintf("%s: %s", key, s.SystemStatus[key]), "")

	case lower == "missed" || lower == "missed calls":
		if len(s.MissedCalls) == 0 {
			m.display("System", "No missed calls.", "")
		} else {
			m.display("System", fmt.Sprintf("Missed calls: %s", strings.Join(s.MissedCalls, ", ")), "")
		}

	case lower == "decide":
		m.enterDecisionPoint(true)

	case lower == "answer call":
		if s.WaitingCaller == "" {
			m.display("System", "No call waiting.", "")
			return
		}
		m.handleAgentContact(ctx, s.WaitingCaller, contactByPlayer, false)

	case lower == "ignore call":
		m.ignoreWaitingCall()

	default:
		m.display("System", "Options: call <agent>, isolate <system>, block ip <address>, status, status check <system>, missed calls, wait, decide, answer call, ignore call.", "")
	}
}

func (m *Manager) handleConversationInput(ctx context.Context, action, lower string) {
	s := m.sim
	switch {
	case hangUpCommands[lower]:
		m.hangUp()

	case lower == "status" || lower == "check status":
		m.display("System Status", m.statusSummary(false), "")

	case lower == "answer call":
		if s.WaitingCaller == "" {
			m.display("System", "No call waiting.", "")
			return
		}
		waiting := s.WaitingCaller
		s.WaitingCaller = ""
		m.emit(events.TypeCallAnswered, map[string]any{"agent_name": waiting})
		m.hangUp()
		m.establishCall(ctx, waiting, contactByAgent, false)

	case lower == "ignore call":
		m.ignoreWaitingCall()

	default:
		partner := s.ActivePartner
		spec, ok := AgentSpecFor(partner)
		if !ok {
			m.hangUp()
			return
		}
		m.addHistory(partner, "user", action)
		reply := m.callAgentOracle(ctx, partner, spec.Persona, action)
		m.addHistory(partner, "assistant", reply)
		m.display(partner, reply, "")
		m.applyReplyFlags(partner, reply)
	}
}

func (m *Manager) ignoreWaitingCall() {
	s := m.sim
	if s.WaitingCaller == "" {
		m.display("System", "No call waiting.", "")
		return
	}
	waiting := s.WaitingCaller
	s.WaitingCaller = ""
	m.recordMissedCall(waiting)
	m.emit(events.TypeCallIgnored, map[string]any{"agent_name": waiting})
	m.updateAgentState(waiting, AgentAvailable)
}

// findAgent resolves player input to an agent name: exact match, then
// substring, then first-name match.
func (m *Manager) findAgent(input string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(input))
	for name := range m.sim.Agents {
		if strings.ToLower(name) == needle {
			return name, true
		}
	}
	for name := range m.sim.Agents {
		if strings.Contains(strings.ToLower(name), needle) {
			return name, true
		}
	}
	for name := range m.sim.Agents {
		if strings.ToLower(firstName(name)) == needle {
			return name, true
		}
	}
	return "", false
}

// findSystem resolves player input to a system key, treating spaces and
// underscores as interchangeable.
func (m *Manager) findSystem(input string) (string, bool) {
	normalize := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	}
	needle := normalize(input)
	for key := range m.sim.SystemStatus {
		if normalize(key) == needle {
			return key, true
		}
	}
	for key := range m.sim.SystemStatus {
		if strings.Contains(normalize(key), needle) {
			return key, true
		}
	}
	return "", false
}

// isolateSystem runs the two-step manual isolation.
func (m *Manager) isolateSystem(key string) {
	status := m.sim.SystemStatus[key]
	if strings.Contains(status, "ISOLAT") || strings.Contains(status, "OFFLINE") {
		m.display("System", fmt.Sprintf("%s is already isolated or offline (%s).", key, status), "")
		return
	}
	m.display("System", fmt.Sprintf("Initiating isolation for '%s'...", key), "")
	m.updateSystemStatus(key, "ISOLATING (Manual)", "(Player Action)", "SYS_ISOLATION_INITIATED",
		map[string]any{"system_name": key, "reason": "Player Action"})
	m.updateSystemStatus(key, "ISOLATED (Manual)", "(Player Action)", "SYS_ISOLATION_COMPLETE",
		map[string]any{"system_name": key})
	m.display("System", fmt.Sprintf("Isolation of '%s' complete.", key), "")
}

// blockIP applies an edge block rule (feed entry only, no status change).
func (m *Manager) blockIP(ip string) {
	m.display("System", fmt.Sprintf("Applying block rule for IP %s...", ip), "")
	m.generateFeedLog("Network_Edge", "BLOCK_RULE_APPLIED", map[string]any{
		"ip":        ip,
		"direction": "in/out",
		"device":    "fw-edge-main",
	}, "")
	m.display("System", fmt.Sprintf("Block rule for %s applied.", ip), "")
}

func validIPv4(s string) bool {
	if strings.Count(s, ".") != 3 {
		return false
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
