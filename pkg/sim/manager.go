package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/loggen"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
)

// Manager drives one simulation for the duration of a task: it mutates the
// Simulation and accumulates the events to publish. Not safe for concurrent
// use; each task builds its own Manager around the loaded state.
type Manager struct {
	sim     *Simulation
	oracle  oracle.Oracle
	gen     *loggen.Generator
	rng     *rand.Rand
	now     func() time.Time
	pending []events.Event
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand replaces the random source (tests).
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) {
		m.rng = rng
		m.gen = loggen.NewWithRand(rng)
	}
}

// NewManager wraps a simulation for one task run.
func NewManager(s *Simulation, o oracle.Oracle, opts ...Option) *Manager {
	m := &Manager{
		sim:    s,
		oracle: o,
		gen:    loggen.New(),
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Simulation returns the wrapped state.
func (m *Manager) Simulation() *Simulation { return m.sim }

// DrainEvents returns and clears the accumulated events.
func (m *Manager) DrainEvents() []events.Event {
	out := m.pending
	m.pending = nil
	return out
}

// emit queues an event, stamping the simulation id into the payload.
func (m *Manager) emit(evType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["simulation_id"] = m.sim.ID
	m.pending = append(m.pending, events.Event{Type: evType, Payload: payload})
}

// logEvent queues a structured log event. When storeForRating is set (and
// the simulation has left SETUP) the line also lands in the bounded event
// history that feeds the performance rating prompt.
func (m *Manager) logEvent(message, level string, storeForRating bool, data map[string]any) {
	payload := map[string]any{
		"timestamp": m.now().UTC().Format(time.RFC3339),
		"sim_time":  m.sim.SimClock(),
		"message":   message,
		"level":     level,
	}
	if data != nil {
		payload["data"] = data
	}
	m.emit(events.TypeLog, payload)

	if storeForRating && m.sim.State != StateSetup {
		entry := fmt.Sprintf("[%s / %s] %s", m.sim.SimClock(), strings.ToUpper(level), message)
		m.sim.EventLogHistory = append(m.sim.EventLogHistory, entry)
		if len(m.sim.EventLogHistory) > eventLogCap {
			m.sim.EventLogHistory = m.sim.EventLogHistory[len(m.sim.EventLogHistory)-eventLogTrim:]
		}
	}
}

// display queues a player-facing message. notification is optional.
func (m *Manager) display(speaker, message, notification string) {
	payload := map[string]any{"speaker": speaker, "message": message}
	if notification != "" {
		payload["notification"] = notification
	}
	m.emit(events.TypeDisplayMessage, payload)
}

// setState transitions the lifecycle state and announces it.
func (m *Manager) setState(s State) {
	if m.sim.State == s {
		return
	}
	m.sim.State = s
	m.emit(events.TypeStateChange, map[string]any{"new_state": string(s)})
}

// emitFeedEntry pushes a synthetic log line to the player feed.
func (m *Manager) emitFeedEntry(entry loggen.Entry, debugLog bool) {
	m.emit(events.TypeLogFeedUpdate, entry.Map())
	if debugLog {
		msg := entry.Message
		if len(msg) > 120 {
			msg = msg[:120]
		}
		m.logEvent(fmt.Sprintf("Generated Log: %s...", msg), "debug", false, nil)
	}
}

// generateFeedLog synthesizes and emits one feed entry for a source system.
func (m *Manager) generateFeedLog(sourceKey, eventType string, details map[string]any, severityOverride string) {
	entry := m.gen.Generate(m.sim.SimTime, sourceKey, eventType, details, severityOverride)
	m.emitFeedEntry(entry, true)
}

// updateAgentState transitions an agent and announces the change.
func (m *Manager) updateAgentState(name, state string) {
	agent, ok := m.sim.Agents[name]
	if !ok || agent.State == state {
		return
	}
	agent.State = state
	m.emit(events.TypeAgentStatusUpdate, map[string]any{"agent_name": name, "state": state})
}

// updateSystemStatus transitions a system, logs the change, updates
// compromise metrics, and emits a matching feed entry. extras augment the
// feed entry's detail fields; relatedLogType overrides the generic
// SYS_STATUS_CHANGE entry.
func (m *Manager) updateSystemStatus(key, newStatus, reason, relatedLogType string, extras map[string]any) {
	old, exists := m.sim.SystemStatus[key]
	if exists && old == newStatus {
		return
	}
	if !exists {
		old = "UNKNOWN"
	}
	m.sim.SystemStatus[key] = newStatus

	severity := loggen.SeverityFor(firstWord(newStatus))
	level := "info"
	switch severity {
	case loggen.SeverityWarn:
		level = "warning"
	case loggen.SeverityHigh, loggen.SeverityCritical:
		level = "alert"
	}
	m.logEvent(fmt.Sprintf("System Status Change: %s '%s' -> '%s' %s", key, old, newStatus, reason), level, true, nil)
	m.emit(events.TypeSystemStatusUpdate, map[string]any{
		"system_key": key,
		"status":     newStatus,
		"reason":     reason,
	})

	m.trackCompromise(key, newStatus, severity)

	eventType := relatedLogType
	if eventType == "" {
		eventType = "SYS_STATUS_CHANGE"
	}
	details := map[string]any{
		"old_status":   old,
		"new_status":   newStatus,
		"reason":       strings.Trim(reason, "()"),
		"event_source": "simulation_engine",
	}
	for k, v := range extras {
		details[k] = v
	}
	m.generateFeedLog(key, eventType, details, severity)
}

// trackCompromise maintains the compromised-system metrics.
func (m *Manager) trackCompromise(key, status, severity string) {
	if severity == loggen.SeverityCritical && m.sim.Metrics.TimeToFirstCritical == nil {
		t := m.sim.SimTime
		m.sim.Metrics.TimeToFirstCritical = &t
	}
	if isCompromisedStatus(status) {
		if m.sim.Metrics.compromised == nil {
			m.sim.Metrics.compromised = map[string]bool{}
		}
		m.sim.Metrics.compromised[key] = true
		m.sim.Metrics.SystemsCompromisedCount = len(m.sim.Metrics.compromised)
	}
}

func isCompromisedStatus(status string) bool {
	return strings.Contains(status, "CRITICAL") ||
		strings.Contains(status, "COMPROMISED") ||
		strings.Contains(status, "ENCRYPTED")
}

// logPlayerAction records a player command at the current simulation time.
// Containment actions are additionally tracked as key actions for debrief.
func (m *Manager) logPlayerAction(action, target string, details map[string]any) {
	m.sim.ActionLog = append(m.sim.ActionLog, PlayerAction{
		Time:    m.sim.SimTime,
		Action:  action,
		Target:  target,
		Details: details,
	})
	if len(m.sim.ActionLog) > actionLogCap {
		m.sim.ActionLog = m.sim.ActionLog[len(m.sim.ActionLog)-actionLogTrim:]
	}
	switch action {
	case "isolate", "block_ip", "decide_shutdown":
		m.sim.Metrics.KeyActionsTaken = append(m.sim.Metrics.KeyActionsTaken, KeyAction{
			Time:   m.sim.SimClock(),
			Action: action,
			Target: target,
		})
	}
}

// checkPlayerAction reports whether the player performed an action within
// the window ending at the current simulation time. The scan walks the log
// backwards and stops at the first entry older than the window.
func (m *Manager) checkPlayerAction(action, target string, window time.Duration) bool {
	since := m.sim.SimTime.Add(-window)
	for i := len(m.sim.ActionLog) - 1; i >= 0; i-- {
		entry := m.sim.ActionLog[i]
		if entry.Time.Before(since) {
			return false
		}
		if entry.Action == action && (target == "" || entry.Target == target) {
			return true
		}
	}
	return false
}

// severityRank orders statuses for the compact summary.
func severityRank(status string) int {
	switch loggen.SeverityFor(firstWord(status)) {
	case loggen.SeverityCritical:
		return 0
	case loggen.SeverityHigh:
		return 1
	case loggen.SeverityMedium, loggen.SeverityWarn:
		return 2
	case loggen.SeverityInfo:
		return 3
	default:
		return 4
	}
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// statusSummary renders system status. Compact mode lists only noteworthy
// systems ordered by severity; full mode lists everything alphabetically.
func (m *Manager) statusSummary(compact bool) string {
	if compact {
		type item struct {
			key, status string
		}
		items := []item{}
		for k, v := range m.sim.SystemStatus {
			if v == "NOMINAL" || v == "UNKNOWN" {
				continue
			}
			items = append(items, item{k, v})
		}
		if len(items) == 0 {
			return "All systems NOMINAL."
		}
		sort.Slice(items, func(i, j int) bool {
			ri, rj := severityRank(items[i].status), severityRank(items[j].status)
			if ri != rj {
				return ri < rj
			}
			return items[i].key < items[j].key
		})
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = fmt.Sprintf("%s: %s", it.key, it.status)
		}
		return strings.Join(parts, ", ")
	}

	keys := make([]string, 0, len(m.sim.SystemStatus))
	for k := range m.sim.SystemStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("- %s: %s", k, m.sim.SystemStatus[k])
	}
	return strings.Join(lines, "\n")
}

// addHistory appends a turn to an agent's in-memory dialogue context.
func (m *Manager) addHistory(agentName, role, content string) {
	h := append(m.sim.ConversationHistory[agentName], oracle.Turn{Role: role, Content: content})
	if len(h) > historyCap {
		h = h[len(h)-historyTrim:]
	}
	m.sim.ConversationHistory[agentName] = h
}

// callAgentOracle asks the oracle for an agent reply. Technical agents get
// the compact status picture appended to the input when anything is off
// nominal.
func (m *Manager) callAgentOracle(ctx context.Context, agentName, persona, input string) string {
	if agentName == "Hao Wang" || agentName == "Lynda Carney" {
		if summary := m.statusSummary(true); summary != "All systems NOMINAL." {
			input = fmt.Sprintf("%s\n(Current relevant system status context: %s)", input, summary)
		}
	}
	history := m.sim.ConversationHistory[agentName]
	if len(history) > historyTurnsSent {
		history = history[len(history)-historyTurnsSent:]
	}
	return m.oracle.Generate(ctx, oracle.Request{
		AgentName:   agentName,
		System:      persona,
		History:     history,
		Input:       input,
		MaxTokens:   agentMaxTokens,
		Temperature: agentResponseTemp,
	})
}
