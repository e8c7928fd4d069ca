package loggen

// sourceHosts maps each monitored system to the device names its logs are
// attributed to. A ".*" suffix is replaced with a random digit at pick time.
var sourceHosts = map[string][]string{
	"Website_Public":           {"web-prod-01", "web-prod-02", "lb-ext-main", "cdn-pop-3"},
	"Customer_Database":        {"db-cust-prod-master", "db-cust-prod-replica", "db-api-svc"},
	"Auth_System":              {"dc-prod-01", "dc-prod-02", "auth-api-svc", "sso-idp-prod"},
	"Network_Segment_Gamma7":   {"fw-dmz-gamma7", "switch-dmz-g7-core", "ids-dmz-gamma7"},
	"Network_Segment_Internal": {"switch-corp-core-1", "switch-corp-access-.*", "wifi-ap-corp.*", "dhcp-srv-1"},
	"File_Servers":             {"filesrv-prod-01", "filesrv-prod-02", "filesrv-prod-.*", "nas-backup-corp"},
	"VPN_Access":               {"vpn-gw-external", "vpn-concentrator-prod", "radius-auth-vpn"},
	"Network_Edge":             {"router-edge-primary", "router-edge-secondary", "fw-edge-main", "ips-edge-main"},
	"HR_System":                {"hris-prod-app", "hris-prod-db"},
	"SOC_Console":              {"siem-prod-01", "soar-platform-01"},
	"Workstation":              {"ws-user-.*", "laptop-dev-.*"},
}

// SourceKeys returns all known source keys.
func SourceKeys() []string {
	keys := make([]string, 0, len(sourceHosts))
	for k := range sourceHosts {
		keys = append(keys, k)
	}
	return keys
}
