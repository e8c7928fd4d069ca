package loggen

// Severity levels used by the synthetic log feed.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityInfo     = "INFO"
	SeverityWarn     = "WARN"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// severityByKeyword maps system status words and log event types to feed
// severities. Lookup is by the first word of a status string, so
// "ENCRYPTED (CRITICAL)" resolves through "ENCRYPTED".
var severityByKeyword = map[string]string{
	// System status words
	"NOMINAL":               SeverityInfo,
	"UNKNOWN":               SeverityInfo,
	"CONNECTING":            SeverityInfo,
	"DEGRADED":              SeverityWarn,
	"HIGH_LOAD":             SeverityWarn,
	"ANOMALOUS_TRAFFIC":     SeverityWarn,
	"ISOLATING":             SeverityWarn,
	"ISOLATED":              SeverityWarn,
	"LOCKING_ACCOUNT":       SeverityWarn,
	"LOGIN_UNAVAILABLE":     SeverityWarn,
	"HIGH_FAILURES":         SeverityHigh,
	"ENCRYPTING":            SeverityHigh,
	"ANOMALOUS_ACCESS":      SeverityHigh,
	"HIGH_EGRESS":           SeverityHigh,
	"OFFLINE":               SeverityCritical,
	"ENCRYPTED":             SeverityCritical,
	"COMPROMISED":           SeverityCritical,
	"ANOMALOUS_ADMIN_LOGIN": SeverityCritical,
	"MITIGATING":            SeverityInfo,
	"UNDER_MITIGATION":      SeverityInfo,
	"ACCESS_REVIEW":         SeverityInfo,
	"TRAFFIC_SHAPING":       SeverityInfo,

	// Log event types
	"SYS_ISOLATION_INITIATED": SeverityInfo,
	"SYS_ISOLATION_COMPLETE":  SeverityInfo,
	"BLOCK_RULE_APPLIED":      SeverityInfo,
	"AUTH_SUCCESS":            SeverityLow,
	"WEB_ACCESS":              SeverityLow,
	"DNS_QUERY":               SeverityLow,
	"AUTH_FAILURE":            SeverityMedium,
	"FW_DENY":                 SeverityMedium,
	"SYS_STATUS_CHANGE":       SeverityInfo,
	"SERVICE_UNAVAILABLE":     SeverityWarn,
	"NETWORK_CONGESTION":      SeverityWarn,
	"DATA_EXFIL_CONFIRMED":    SeverityCritical,
	"DB_ANOMALOUS_QUERY":      SeverityHigh,
	"HR_ANOMALOUS_ACCESS":     SeverityHigh,
	"DATA_COMPROMISE_INSIDER": SeverityCritical,
	"FILE_ACCESS_ENCRYPT":     SeverityHigh,
	"SYSTEM_STATE_CRITICAL":   SeverityCritical,
	"SERVICE_SHUTDOWN_MANUAL": SeverityWarn,
	"SYSTEM_ISOLATION_MANUAL": SeverityWarn,
	"SYS_INITIAL_STATE":       SeverityInfo,
	"GENERIC_INFO":            SeverityInfo,
	"GENERIC_WARN":            SeverityWarn,
	"GENERIC_HIGH":            SeverityHigh,
	"GENERIC_CRITICAL":        SeverityCritical,
	"LOG_TEMPLATE_ERROR":      SeverityWarn,
}

// SeverityFor resolves a status word or event type to a severity, INFO when
// unknown.
func SeverityFor(keyword string) string {
	if sev, ok := severityByKeyword[keyword]; ok {
		return sev
	}
	return SeverityInfo
}

// templates maps event types to message formats. Placeholders in {braces}
// are filled from the supplied detail map, or synthesized when absent.
var templates = map[string]string{
	"AUTH_SUCCESS":            "user='{user}' src_ip='{src_ip}' domain='{domain}' status='success'",
	"AUTH_FAILURE":            "user='{user}' src_ip='{src_ip}' reason='{reason}' status='failure'",
	"FW_DENY":                 "proto='{proto}' src_ip='{src_ip}' src_port='{src_port}' dst_ip='{dst_ip}' dst_port='{dst_port}' action='deny' policy='{policy}'",
	"WEB_ACCESS":              "client_ip='{src_ip}' method='{method}' url='{url}' status='{status_code}' user_agent='{user_agent}'",
	"DNS_QUERY":               "client_ip='{src_ip}' query='{domain}' type='{qtype}' result='{result_ip}'",
	"SYS_STATUS_CHANGE":       "old_status='{old_status}' new_status='{new_status}' reason='{reason}' event_source='{event_source}'",
	"SERVICE_UNAVAILABLE":     "service='{service_name}' reason='{reason}'",
	"NETWORK_CONGESTION":      "interface='{interface}' bandwidth_util='{util}%' packets_dropped='{drops}'",
	"DATA_EXFIL_CONFIRMED":    "src_ip='{src_ip}' dst_ip='{dst_ip}' volume_mb='{volume}' protocol='{proto}' confidence='high'",
	"DB_ANOMALOUS_QUERY":      "user='{user}' src_ip='{src_ip}' target_table='{table}' query='{query_snippet}' risk_score='{risk}'",
	"HR_ANOMALOUS_ACCESS":     "user='{user}' src_ip='{src_ip}' resource='{resource}' action='{action}' policy_violation='{policy}'",
	"DATA_COMPROMISE_INSIDER": "user='{user}' evidence='{evidence}' data_type='{data_type}'",
	"FILE_ACCESS_ENCRYPT":     "user='{user}' process='{process}' file_path='{path}' action='encrypt_attempt' signature='{sig}'",
	"SYSTEM_STATE_CRITICAL":   "component='{component}' message='{message}'",
	"SERVICE_SHUTDOWN_MANUAL": "service='{service_name}' requested_by='CTO Directive ({directive})'",
	"SYSTEM_ISOLATION_MANUAL": "system='{system_name}' requested_by='CTO Directive ({directive})'",
	"SYS_INITIAL_STATE":       "system='{system_key}' status='{status}' reason='{reason}'",
	"SYS_ISOLATION_INITIATED": "system='{system_name}' reason='{reason}'",
	"SYS_ISOLATION_COMPLETE":  "system='{system_name}' result='success'",
	"BLOCK_RULE_APPLIED":      "target_ip='{ip}' direction='{direction}' device='{device}' reason='Player Action'",
	"GENERIC_INFO":            "message='{message}' details='{details}'",
	"GENERIC_WARN":            "message='{message}' details='{details}'",
	"GENERIC_HIGH":            "message='{message}' details='{details}'",
	"GENERIC_CRITICAL":        "message='{message}' details='{details}'",
	"LOG_TEMPLATE_ERROR":      "error='{error}' details='{details}'",
}

// genericBySeverity routes unknown event types to a generic template.
var genericBySeverity = map[string]string{
	SeverityLow:      "GENERIC_INFO",
	SeverityInfo:     "GENERIC_INFO",
	SeverityMedium:   "GENERIC_WARN",
	SeverityWarn:     "GENERIC_WARN",
	SeverityHigh:     "GENERIC_HIGH",
	SeverityCritical: "GENERIC_CRITICAL",
}
