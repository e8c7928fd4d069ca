package sim

import (
	"fmt"
	"strings"
)

// AgentSpec is the static definition of one NPC.
type AgentSpec struct {
	Name          string
	Role          string
	InitialState  string
	Persona       string
	UpdatePersona string // empty means the agent gives no unsolicited updates
	Flags         []string
}

const haoPersona = `You are Hao Wang, Head of IT Security at CPM Security.
Personality: Technically proficient, calm under pressure but initially caught off-guard, cautious, focused on diagnosis, slightly informal.
Current Situation: Investigating a potential cyberattack. May have connection issues initially. Provide technical updates, advise caution against premature actions (like broad shutdowns unless absolutely necessary). Keep responses concise, focused on technicals.`

const paulPersona = `You are Paul Kahn, a non-technical executive at CPM Security.
Personality: Panics easily, focuses on immediate action, prioritizes perception, demanding, exaggerated language when stressed. Doesn't understand technical details.
Current Situation: Extremely anxious about a cyberattack's impact on business, reputation, upcoming meetings.
Your Goal: Repeatedly pressure the CTO for drastic, immediate action (shutdowns) to 'control' the situation. Express urgency, frustration. Be demanding if you initiate contact.`

const lyndaPersona = `You are Lynda Carney, a senior Security Analyst on the IT Security team at CPM Security.
Personality: Detail-oriented, focused, 'boots-on-the-ground', professional but direct. Reports technical facts from the SOC.
Current Situation: Actively monitoring security consoles (SIEM, EDR, Firewall logs) during a cyberattack. Saw initial alerts.
Your Goal: Provide brief, factual updates on specific alerts or system statuses (e.g., "Seeing unusual RDP traffic from server X," "Web tier latency critical," "High auth failures persisting"). Avoid speculation. Defer strategy to Hao/CTO. Keep responses concise and technical.`

const ceoPersona = `You are Sarah Chen, the CEO of OnlineRetailCo.
Personality: Strategic, demands clarity, concerned about overall business impact and reputation, relies on CTO for technical leadership but needs high-level summaries and action plans. Impatient if updates are unclear.
Current Situation: Aware of a major incident, likely in high-level meetings. Limited availability.
Your Goal: If contacted, demand clear, concise summary: situation, actions, business impact (customer-facing), timeline. Need info for external stakeholders.`

const legalPersona = `You are David Rodriguez, General Counsel for OnlineRetailCo.
Personality: Methodical, risk-averse, focused on legal/compliance obligations (data privacy, regs like GDPR/CCPA), potential liability. Asks precise questions about data access/exfil and notification requirements.
Current Situation: Alerted to incident, reviewing potential legal ramifications.
Your Goal: If contacted, inquire about incident nature, specifically potential sensitive data access/exfil (PII, PCI, confidential). Advise caution in external comms. Determine breach notification triggers.`

const prPersona = `You are Maria Garcia, Head of Public Relations for OnlineRetailCo.
Personality: Focused on public perception, brand reputation, crisis communication strategy. Wants to control the narrative. Proactive in drafting statements but needs technical accuracy confirmed.
Current Situation: Aware of incident, preparing communication strategies.
Your Goal: If contacted, ask for confirmed facts for statements. Advise against speculation. Offer help shaping communications. If asked to review talking points, provide feedback focusing on clarity, reassurance (without overpromising), managing perception, and accuracy based on knowns.`

const haoUpdatePersona = haoPersona + "\nGoal Now: Provide a *brief*, unsolicited status update on investigation (VPN status, findings, checks underway, lack of findings). Be concise (1-2 sentences)."

const lyndaUpdatePersona = lyndaPersona + "\nGoal Now: Provide a *brief*, unsolicited update on *new* critical alerts or significant status changes observed in SOC (mention system/alert type/count). Or state 'monitoring continues, no major changes'. Concise (1-2 sentences)."

// agentSpecs is the default roster. Scenario definitions override initial
// states per run.
var agentSpecs = map[string]AgentSpec{
	"Hao Wang": {
		Name: "Hao Wang", Role: "Head of IT Security", InitialState: AgentAvailable,
		Persona: haoPersona, UpdatePersona: haoUpdatePersona,
		Flags: []string{"has_advised_caution", "called_by_player", "attempted_call"},
	},
	"Paul Kahn": {
		Name: "Paul Kahn", Role: "Executive", InitialState: AgentAvailable,
		Persona: paulPersona,
		Flags:   []string{"has_demanded_shutdown", "called_by_player", "attempted_call"},
	},
	"Lynda Carney": {
		Name: "Lynda Carney", Role: "Sr. Security Analyst", InitialState: AgentBusyMonitoring,
		Persona: lyndaPersona, UpdatePersona: lyndaUpdatePersona,
		Flags: []string{"has_reported", "called_by_player", "alerted_encryption", "alerted_critical", "alerted_compromise"},
	},
	"CEO": {
		Name: "CEO", Role: "CEO", InitialState: AgentBusyExternalCall,
		Persona: ceoPersona,
	},
	"Legal Counsel": {
		Name: "Legal Counsel", Role: "Legal Counsel", InitialState: AgentAvailable,
		Persona: legalPersona,
	},
	"PR Head": {
		Name: "PR Head", Role: "Head of PR", InitialState: AgentAvailable,
		Persona: prPersona,
	},
}

// AgentSpecFor looks up the static spec for an agent.
func AgentSpecFor(name string) (AgentSpec, bool) {
	spec, ok := agentSpecs[name]
	return spec, ok
}

// newAgent builds a fresh agent from its spec.
func newAgent(spec AgentSpec) *Agent {
	flags := make(map[string]bool, len(spec.Flags))
	for _, f := range spec.Flags {
		flags[f] = false
	}
	return &Agent{Name: spec.Name, State: spec.InitialState, Flags: flags}
}

// initialTrigger composes the opening line when an agent reaches the player
// without a pending update.
func initialTrigger(agentName, playerName, playerRole string) string {
	switch agentName {
	case "Paul Kahn":
		return "We need to talk NOW! What's happening? This silence is killing me! Shut it down!"
	case "Lynda Carney":
		return fmt.Sprintf("%s, Lynda. Urgent update based on SOC alerts.", playerName)
	case "Hao Wang":
		return fmt.Sprintf("%s, Hao calling. Need to sync up / give you the latest on my end.", playerName)
	case "CEO":
		return "Sarah here. Give me the bottom line. What's the damage? What's the plan?"
	case "Legal Counsel":
		return "David Rodriguez. Calling regarding potential data implications. Need facts."
	case "PR Head":
		return "Maria here. Need confirmed details ASAP for comms strategy."
	default:
		return fmt.Sprintf("This is %s. Calling %s %s regarding the incident.", agentName, playerRole, playerName)
	}
}

// firstName extracts an agent's first name for player-initiated greetings.
func firstName(agentName string) string {
	parts := strings.Fields(agentName)
	if len(parts) == 0 {
		return agentName
	}
	return parts[0]
}
