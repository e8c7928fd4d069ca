// Package loggen synthesizes the simulated security log feed: template-driven
// log lines attributed to per-system device names, plus low-severity
// background noise.
package loggen

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// Entry is one synthetic log line for the player-facing feed.
type Entry struct {
	Timestamp time.Time
	Severity  string
	Source    string
	Type      string
	Message   string
	Details   map[string]any
}

// Map renders the entry as an event payload.
func (e Entry) Map() map[string]any {
	return map[string]any{
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
		"severity":  e.Severity,
		"source":    e.Source,
		"type":      e.Type,
		"message":   e.Message,
		"details":   e.Details,
	}
}

// Generator produces log entries. Not safe for concurrent use; each
// simulation task owns its own Generator.
type Generator struct {
	rng *rand.Rand
}

// New creates a Generator with a time-seeded source.
func New() *Generator {
	return NewWithRand(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
}

// NewWithRand creates a Generator with the given source (deterministic tests).
func NewWithRand(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Generate builds a log entry for the given source and event type at the
// given simulation time. Values in details override synthesized defaults;
// severityOverride (when non-empty) replaces the type-derived severity.
// Unknown event types fall back to a generic template for their severity.
func (g *Generator) Generate(simTime time.Time, sourceKey, eventType string, details map[string]any, severityOverride string) Entry {
	severity := SeverityFor(eventType)
	if severityOverride != "" {
		severity = severityOverride
	}

	tmpl, ok := templates[eventType]
	if !ok {
		generic := genericBySeverity[severity]
		if generic == "" {
			generic = "GENERIC_INFO"
		}
		tmpl = templates[generic]
		if details == nil {
			details = map[string]any{}
		}
		if _, has := details["message"]; !has {
			details["message"] = fmt.Sprintf("Unrecognized event '%s'", eventType)
		}
	}

	msg := placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		name := ph[1 : len(ph)-1]
		if details != nil {
			if v, ok := details[name]; ok {
				return fmt.Sprint(v)
			}
		}
		return g.defaultValue(name, sourceKey)
	})

	return Entry{
		Timestamp: simTime,
		Severity:  severity,
		Source:    g.pickHost(sourceKey),
		Type:      eventType,
		Message:   msg,
		Details:   details,
	}
}

// Noise returns a burst of 2-5 low-severity background entries.
func (g *Generator) Noise(simTime time.Time) []Entry {
	noiseTypes := []string{"AUTH_SUCCESS", "WEB_ACCESS", "DNS_QUERY"}
	keys := SourceKeys()
	n := 2 + g.rng.IntN(4)
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		et := noiseTypes[g.rng.IntN(len(noiseTypes))]
		details := map[string]any{}
		switch et {
		case "AUTH_SUCCESS":
			details["user"] = fmt.Sprintf("user%d", 100+g.rng.IntN(900))
		case "WEB_ACCESS":
			details["status_code"] = 200
		}
		src := keys[g.rng.IntN(len(keys))]
		entries = append(entries, g.Generate(simTime, src, et, details, ""))
	}
	return entries
}

// pickHost picks a device name for a source, expanding ".*" to a digit.
func (g *Generator) pickHost(sourceKey string) string {
	hosts, ok := sourceHosts[sourceKey]
	if !ok || len(hosts) == 0 {
		return sourceKey
	}
	host := hosts[g.rng.IntN(len(hosts))]
	if strings.Contains(host, ".*") {
		host = strings.Replace(host, ".*", fmt.Sprint(1+g.rng.IntN(9)), 1)
	}
	return host
}

// InternalIP returns a random RFC1918-style 10.x address.
func (g *Generator) InternalIP() string {
	return fmt.Sprintf("10.%d.%d.%d", 1+g.rng.IntN(254), 1+g.rng.IntN(254), 2+g.rng.IntN(253))
}

// ExternalIP returns a random public-looking address.
func (g *Generator) ExternalIP() string {
	var first int
	for {
		first = 1 + g.rng.IntN(223)
		if first != 10 && first != 127 && first != 172 && first != 192 {
			break
		}
	}
	return fmt.Sprintf("%d.%d.%d.%d", first, g.rng.IntN(256), g.rng.IntN(256), 1+g.rng.IntN(254))
}

func (g *Generator) anyIP() string {
	if g.rng.IntN(2) == 0 {
		return g.InternalIP()
	}
	return g.ExternalIP()
}

// defaultValue synthesizes a value for a template placeholder that the
// caller did not supply.
func (g *Generator) defaultValue(name, sourceKey string) string {
	switch name {
	case "src_ip":
		return g.anyIP()
	case "dst_ip":
		return g.InternalIP()
	case "result_ip":
		return g.ExternalIP()
	case "user", "reason":
		return "n/a"
	case "domain":
		return "onlineretailco.com"
	case "proto":
		return "tcp"
	case "src_port":
		return fmt.Sprint(1024 + g.rng.IntN(64512))
	case "dst_port":
		ports := []int{80, 443, 22, 3389, 445, 135}
		return fmt.Sprint(ports[g.rng.IntN(len(ports))])
	case "policy":
		return fmt.Sprintf("pol-%d", 100+g.rng.IntN(900))
	case "method":
		if g.rng.IntN(2) == 0 {
			return "GET"
		}
		return "POST"
	case "url":
		segments := []string{"api", "images", "data"}
		return fmt.Sprintf("/path/%s/%d", segments[g.rng.IntN(len(segments))], 1+g.rng.IntN(100))
	case "status_code":
		codes := []int{200, 404, 500, 401, 403}
		return fmt.Sprint(codes[g.rng.IntN(len(codes))])
	case "user_agent":
		return "Generic Bot/1.0"
	case "qtype":
		return "A"
	case "old_status", "new_status":
		return "UNKNOWN"
	case "event_source":
		return "system"
	case "service_name":
		return "unknown_service"
	case "interface":
		return "eth0"
	case "util":
		return fmt.Sprint(80 + g.rng.IntN(21))
	case "drops":
		return fmt.Sprint(100 + g.rng.IntN(9901))
	case "volume":
		return fmt.Sprint(1 + g.rng.IntN(1000))
	case "table":
		return "generic_table"
	case "query_snippet":
		return "SELECT ..."
	case "risk":
		return fmt.Sprint(50 + g.rng.IntN(51))
	case "resource":
		return "generic_resource"
	case "action":
		return "read"
	case "evidence":
		return "log anomaly"
	case "data_type":
		return "PII"
	case "process":
		return "malware.exe"
	case "path":
		return "/data/sensitive"
	case "sig":
		return "Ransom.Variant"
	case "component":
		return "kernel"
	case "message":
		return "Critical error detected"
	case "directive":
		return "Emergency Containment"
	case "system_name":
		return "unknown_system"
	case "system_key":
		return sourceKey
	case "status":
		return "N/A"
	case "ip":
		return "1.2.3.4"
	case "direction":
		return "ingress"
	case "device":
		return "firewall-01"
	case "error":
		return "unknown"
	case "details":
		return "N/A"
	default:
		return "n/a"
	}
}
