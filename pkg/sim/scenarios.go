package sim

import (
	"math/rand/v2"
	"sort"
)

// StatusCond matches one system's status. Contains switches from exact
// equality to substring matching ("COMPROMISED" matches the CRITICAL form).
type StatusCond struct {
	System   string
	Status   string
	Contains bool
}

// Mitigation describes the player action that defuses a rule. The rule only
// fires if the action is absent from the recent action log; WindowMinutes is
// divided by the current intensity modifier.
type Mitigation struct {
	Action        string
	Target        string // empty matches any target
	WindowMinutes float64
}

// Rule is one escalation step. AfterSeconds is divided by the current
// intensity modifier, so a shrinking modifier stretches the timeline.
type Rule struct {
	When         []StatusCond
	AfterSeconds float64
	Mitigation   *Mitigation
	System       string
	NewStatus    string
	Reason       string
	LogType      string
	LogDetails   func(rng *rand.Rand) map[string]any
}

// TargetedEntry marks a system eligible for a targeted shutdown when its
// status contains any of the keywords.
type TargetedEntry struct {
	System   string
	Keywords []string
}

// Scenario is a full incident definition.
type Scenario struct {
	Key              string
	Description      string
	InitialStatus    map[string]string
	AgentStates      map[string]string
	Intensity        map[string]float64
	Rules            []Rule
	TargetedShutdown []TargetedEntry
	// EndSystem/EndStatus define the premature-end condition; empty means
	// the scenario only ends on the time limit.
	EndSystem string
	EndStatus string
}

// broadShutdownOrder is the system sweep for a broad shutdown directive.
var broadShutdownOrder = []string{
	"Website_Public", "Auth_System", "Network_Segment_Internal",
	"Customer_Database", "File_Servers", "HR_System", "VPN_Access",
}

var scenarios = map[string]Scenario{
	"Ransomware": {
		Key:         "Ransomware",
		Description: "Critical systems encrypted. Negotiate, contain, recover under intense stakeholder pressure.",
		InitialStatus: map[string]string{
			"Website_Public":           "NOMINAL",
			"Customer_Database":        "UNKNOWN",
			"Auth_System":              "HIGH_FAILURES",
			"Network_Segment_Gamma7":   "UNKNOWN",
			"Network_Segment_Internal": "UNKNOWN",
			"File_Servers":             "UNKNOWN",
			"VPN_Access":               "DEGRADED",
		},
		AgentStates: map[string]string{"Lynda Carney": AgentBusyMonitoring},
		Intensity:   map[string]float64{"Low": 1.5, "Medium": 1.0, "High": 0.7},
		Rules: []Rule{
			{
				When:         []StatusCond{{System: "Auth_System", Status: "HIGH_FAILURES"}},
				AfterSeconds: 300,
				Mitigation:   &Mitigation{Action: "isolate", Target: "Network_Segment_Internal", WindowMinutes: 5},
				System:       "Network_Segment_Internal",
				NewStatus:    "ANOMALOUS_TRAFFIC",
				Reason:       "(Esc Rule 1: Lateral Movement Suspected - No Isolation)",
				LogType:      "FW_DENY",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"proto": "TCP", "dst_port": 445}
				},
			},
			{
				When:         []StatusCond{{System: "Network_Segment_Internal", Status: "ANOMALOUS_TRAFFIC"}},
				AfterSeconds: 600,
				System:       "File_Servers",
				NewStatus:    "ENCRYPTING",
				Reason:       "(Esc Rule 2: Encryption Activity Detected!)",
				LogType:      "FILE_ACCESS_ENCRYPT",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"user": "SYSTEM", "process": "unknown.exe", "sig": "Ransom.Generic"}
				},
			},
			{
				When:         []StatusCond{{System: "File_Servers", Status: "ENCRYPTING"}},
				AfterSeconds: 900,
				System:       "File_Servers",
				NewStatus:    "ENCRYPTED (CRITICAL)",
				Reason:       "(Esc Rule 3: Servers Encrypted!)",
				LogType:      "SYSTEM_STATE_CRITICAL",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"component": "FS_DataVol", "message": "Filesystem inaccessible"}
				},
			},
		},
		TargetedShutdown: []TargetedEntry{
			{System: "Auth_System", Keywords: []string{"HIGH_FAILURES"}},
			{System: "Network_Segment_Internal", Keywords: []string{"ANOMALOUS_TRAFFIC"}},
			{System: "File_Servers", Keywords: []string{"ENCRYPTING", "ENCRYPTED"}},
		},
		EndSystem: "File_Servers",
		EndStatus: "ENCRYPTED (CRITICAL)",
	},

	"DDoS": {
		Key:         "DDoS",
		Description: "Services overwhelmed by malicious traffic. Mitigate, identify source, maintain availability.",
		InitialStatus: map[string]string{
			"Website_Public":         "DEGRADED",
			"Customer_Database":      "NOMINAL",
			"Auth_System":            "NOMINAL",
			"Network_Segment_Gamma7": "NOMINAL",
			"Network_Edge":           "HIGH_LOAD",
			"File_Servers":           "NOMINAL",
			"VPN_Access":             "NOMINAL",
		},
		AgentStates: map[string]string{"Lynda Carney": AgentBusyMonitoring},
		Intensity:   map[string]float64{"Low": 1.5, "Medium": 1.0, "High": 0.6},
		Rules: []Rule{
			{
				When:         []StatusCond{{System: "Network_Edge", Status: "HIGH_LOAD"}},
				AfterSeconds: 300,
				Mitigation:   &Mitigation{Action: "block_ip", WindowMinutes: 5},
				System:       "Website_Public",
				NewStatus:    "OFFLINE",
				Reason:       "(Esc Rule 1: DDoS Overload - Mitigation Delayed)",
				LogType:      "SERVICE_UNAVAILABLE",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"service_name": "PublicWebsite"}
				},
			},
			{
				When:         []StatusCond{{System: "Website_Public", Status: "OFFLINE"}},
				AfterSeconds: 900,
				System:       "VPN_Access",
				NewStatus:    "DEGRADED",
				Reason:       "(Esc Rule 2: Network Congestion)",
				LogType:      "NETWORK_CONGESTION",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"interface": "core-gw-link", "util": 95, "drops": 1000 + rng.IntN(4001)}
				},
			},
		},
		TargetedShutdown: nil,
	},

	"Critical Data Breach": {
		Key:         "Critical Data Breach",
		Description: "Sensitive data exfiltrated. Manage response, compliance, forensics, and communication.",
		InitialStatus: map[string]string{
			"Website_Public":           "NOMINAL",
			"Customer_Database":        "ANOMALOUS_ACCESS",
			"Auth_System":              "NOMINAL",
			"Network_Segment_Gamma7":   "UNKNOWN",
			"Network_Segment_Internal": "UNKNOWN",
			"File_Servers":             "NOMINAL",
			"VPN_Access":               "NOMINAL",
			"Network_Edge":             "HIGH_EGRESS",
		},
		AgentStates: map[string]string{
			"Lynda Carney":  AgentBusyMonitoring,
			"Legal Counsel": AgentAvailable,
			"PR Head":       AgentAvailable,
		},
		Intensity: map[string]float64{"Low": 1.5, "Medium": 1.0, "High": 0.8},
		Rules: []Rule{
			{
				When: []StatusCond{
					{System: "Customer_Database", Status: "ANOMALOUS_ACCESS"},
					{System: "Network_Edge", Status: "HIGH_EGRESS"},
				},
				AfterSeconds: 480,
				Mitigation:   &Mitigation{Action: "isolate", Target: "Customer_Database", WindowMinutes: 8},
				System:       "Customer_Database",
				NewStatus:    "COMPROMISED (CRITICAL)",
				Reason:       "(Esc Rule 1: Data Exfiltration Confirmed! - No Isolation)",
				LogType:      "DATA_EXFIL_CONFIRMED",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"dst_ip": "1.2.3.4", "volume": 50 + rng.IntN(451), "proto": "HTTPS"}
				},
			},
			{
				When:         []StatusCond{{System: "Customer_Database", Status: "COMPROMISED", Contains: true}},
				AfterSeconds: 900,
				System:       "Website_Public",
				NewStatus:    "DEGRADED",
				Reason:       "(Esc Rule 2: Distraction/Obfuscation?)",
				LogType:      "WEB_ACCESS",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"status_code": 503}
				},
			},
		},
		TargetedShutdown: []TargetedEntry{
			{System: "Customer_Database", Keywords: []string{"ANOMALOUS_ACCESS", "COMPROMISED"}},
			{System: "Network_Edge", Keywords: []string{"HIGH_EGRESS"}},
		},
		EndSystem: "Customer_Database",
		EndStatus: "COMPROMISED (CRITICAL)",
	},

	"Insider Threat": {
		Key:         "Insider Threat",
		Description: "Malicious activity detected from within. Identify the source, assess damage, manage internal fallout.",
		InitialStatus: map[string]string{
			"Website_Public":           "NOMINAL",
			"Customer_Database":        "UNKNOWN",
			"Auth_System":              "ANOMALOUS_ADMIN_LOGIN",
			"Network_Segment_Internal": "ANOMALOUS_TRAFFIC",
			"File_Servers":             "UNKNOWN",
			"VPN_Access":               "NOMINAL",
			"HR_System":                "UNKNOWN",
		},
		AgentStates: map[string]string{
			"Lynda Carney":  AgentInvestigating,
			"Hao Wang":      AgentAvailable,
			"Legal Counsel": AgentAvailable,
		},
		Intensity: map[string]float64{"Low": 1.5, "Medium": 1.0, "High": 0.7},
		Rules: []Rule{
			{
				When: []StatusCond{
					{System: "Auth_System", Status: "ANOMALOUS_ADMIN_LOGIN"},
					{System: "Network_Segment_Internal", Status: "ANOMALOUS_TRAFFIC"},
				},
				AfterSeconds: 420,
				System:       "Customer_Database",
				NewStatus:    "ANOMALOUS_ACCESS",
				Reason:       "(Esc Rule 1: Insider Accessing Customer DB)",
				LogType:      "DB_ANOMALOUS_QUERY",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"user": "admin_suspicious", "table": "customers_pii", "query_snippet": "SELECT * FROM ...", "risk": 85}
				},
			},
			{
				When:         []StatusCond{{System: "Auth_System", Status: "ANOMALOUS_ADMIN_LOGIN"}},
				AfterSeconds: 720,
				System:       "HR_System",
				NewStatus:    "ANOMALOUS_ACCESS",
				Reason:       "(Esc Rule 2: Insider Accessing HR System)",
				LogType:      "HR_ANOMALOUS_ACCESS",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"user": "admin_suspicious", "resource": "salary_info", "action": "read", "policy": "Confidential Data Access"}
				},
			},
			{
				When:         []StatusCond{{System: "Customer_Database", Status: "ANOMALOUS_ACCESS", Contains: true}},
				AfterSeconds: 1080,
				Mitigation:   &Mitigation{Action: "isolate", Target: "Customer_Database", WindowMinutes: 10},
				System:       "Customer_Database",
				NewStatus:    "COMPROMISED (CRITICAL)",
				Reason:       "(Esc Rule 3: Sensitive Data Compromised by Insider! - No Action)",
				LogType:      "DATA_COMPROMISE_INSIDER",
				LogDetails: func(rng *rand.Rand) map[string]any {
					return map[string]any{"user": "admin_suspicious", "evidence": "Excessive data export logs", "data_type": "PII/PCI"}
				},
			},
		},
		TargetedShutdown: []TargetedEntry{
			{System: "Customer_Database", Keywords: []string{"ANOMALOUS_ACCESS", "COMPROMISED"}},
			{System: "HR_System", Keywords: []string{"ANOMALOUS_ACCESS"}},
			{System: "Network_Segment_Internal", Keywords: []string{"ANOMALOUS_TRAFFIC"}},
		},
		EndSystem: "Customer_Database",
		EndStatus: "COMPROMISED (CRITICAL)",
	},
}

// GetScenario looks up a scenario by key.
func GetScenario(key string) (Scenario, bool) {
	sc, ok := scenarios[key]
	return sc, ok
}

// ScenarioKeys returns all scenario keys, sorted.
func ScenarioKeys() []string {
	keys := make([]string, 0, len(scenarios))
	for k := range scenarios {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
