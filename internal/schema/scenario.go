// Package schema defines the cyber range scenario document model and its
// two-phase validator. A Scenario is only ever produced from raw generated
// JSON via Validate + Decode; it is never mutated in place afterwards.
package schema

import "encoding/json"

// NetworkType enumerates the supported network kinds.
type NetworkType string

const (
	NetworkBridge       NetworkType = "bridge"
	NetworkCustomBridge NetworkType = "custom_bridge"
	NetworkIsolated     NetworkType = "isolated"
	NetworkPublic       NetworkType = "public"
)

// HostType enumerates the supported host roles.
type HostType string

const (
	HostAttacker HostType = "attacker"
	HostVictim   HostType = "victim"
	HostWeb      HostType = "web"
	HostDB       HostType = "db"
	HostFTP      HostType = "ftp"
	HostSMB      HostType = "smb"
	HostCustom   HostType = "custom"
)

// VulnerabilityType enumerates the injectable vulnerability classes.
type VulnerabilityType string

const (
	VulnSQLInjection        VulnerabilityType = "sql_injection"
	VulnXSS                 VulnerabilityType = "xss"
	VulnCommandInjection    VulnerabilityType = "command_injection"
	VulnPathTraversal       VulnerabilityType = "path_traversal"
	VulnFileUpload          VulnerabilityType = "file_upload"
	VulnWeakCredentials     VulnerabilityType = "weak_credentials"
	VulnMisconfiguration    VulnerabilityType = "misconfiguration"
	VulnOutdatedSoftware    VulnerabilityType = "outdated_software"
	VulnPrivilegeEscalation VulnerabilityType = "privilege_escalation"
	VulnInfoDisclosure      VulnerabilityType = "info_disclosure"
	VulnCustom              VulnerabilityType = "custom"
)

// PlacementType enumerates where a flag can be planted.
type PlacementType string

const (
	PlacementFile            PlacementType = "file"
	PlacementEnv             PlacementType = "env"
	PlacementServiceResponse PlacementType = "service_response"
	PlacementDBRow           PlacementType = "db_row"
)

var (
	networkTypes = []string{
		string(NetworkBridge), string(NetworkCustomBridge),
		string(NetworkIsolated), string(NetworkPublic),
	}
	hostTypes = []string{
		string(HostAttacker), string(HostVictim), string(HostWeb),
		string(HostDB), string(HostFTP), string(HostSMB), string(HostCustom),
	}
	vulnerabilityTypes = []string{
		string(VulnSQLInjection), string(VulnXSS), string(VulnCommandInjection),
		string(VulnPathTraversal), string(VulnFileUpload), string(VulnWeakCredentials),
		string(VulnMisconfiguration), string(VulnOutdatedSoftware),
		string(VulnPrivilegeEscalation), string(VulnInfoDisclosure), string(VulnCustom),
	}
	placementTypes = []string{
		string(PlacementFile), string(PlacementEnv),
		string(PlacementServiceResponse), string(PlacementDBRow),
	}
	difficulties = []string{"easy", "medium", "hard", "expert"}
	severities   = []string{"low", "medium", "high", "critical"}
)

// Enums returns the enum vocabularies by field name, for prompt construction.
func Enums() map[string][]string {
	return map[string][]string{
		"network.type":        networkTypes,
		"host.type":           hostTypes,
		"vulnerability.type":  vulnerabilityTypes,
		"flag.placement.type": placementTypes,
		"metadata.difficulty": difficulties,
		"severity":            severities,
	}
}

// Scenario is the accepted, schema-valid lab definition document.
type Scenario struct {
	Metadata        Metadata        `json:"metadata"`
	Networks        []Network       `json:"networks"`
	Hosts           []Host          `json:"hosts"`
	Services        []Service       `json:"services"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Flags           []Flag          `json:"flags"`
	Scoring         Scoring         `json:"scoring"`
	Narrative       Narrative       `json:"narrative"`
}

// Metadata describes the scenario as a whole.
type Metadata struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Author               string   `json:"author,omitempty"`
	Version              string   `json:"version,omitempty"`
	Difficulty           string   `json:"difficulty"`
	EstimatedTimeMinutes int      `json:"estimated_time_minutes,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	LearningObjectives   []string `json:"learning_objectives,omitempty"`
}

// Network declares an isolated lab network with its subnet.
type Network struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Type   NetworkType `json:"type"`
	Subnet string      `json:"subnet"`
}

// Host declares a container host attached to one or more networks.
type Host struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Type            HostType      `json:"type"`
	BaseImage       string        `json:"base_image"`
	Networks        []HostNetwork `json:"networks"`
	Resources       *Resources    `json:"resources,omitempty"`
	Services        []string      `json:"services,omitempty"`
	Vulnerabilities []string      `json:"vulnerabilities,omitempty"`
	Flags           []string      `json:"flags,omitempty"`
}

// HostNetwork attaches a host to a declared network, optionally pinning a
// static address inside that network's subnet.
type HostNetwork struct {
	NetworkID string `json:"network_id"`
	IPAddress string `json:"ip_address,omitempty"`
}

// Resources caps a host's container resources.
type Resources struct {
	CPULimit    string `json:"cpu_limit,omitempty"`
	MemoryLimit string `json:"memory_limit,omitempty"`
}

// Service declares a network service exposed by a host.
type Service struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Version string                 `json:"version,omitempty"`
	Ports   []Port                 `json:"ports"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// Port declares a listening port for a service.
type Port struct {
	Internal int    `json:"internal"`
	Protocol string `json:"protocol,omitempty"`
}

// Vulnerability declares an injectable weakness bound to a service.
type Vulnerability struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Type              VulnerabilityType      `json:"type"`
	Severity          string                 `json:"severity"`
	Description       string                 `json:"description"`
	AffectedService   string                 `json:"affected_service"`
	ExploitationNotes string                 `json:"exploitation_notes,omitempty"`
	Remediation       string                 `json:"remediation,omitempty"`
	Setup             map[string]interface{} `json:"setup,omitempty"`
}

// Flag declares a capture objective and where its secret value is planted.
type Flag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Placement Placement `json:"placement"`
	Points    int       `json:"points"`
}

// Placement locates a flag inside the lab.
type Placement struct {
	Type     PlacementType          `json:"type"`
	HostID   string                 `json:"host_id"`
	Path     string                 `json:"path,omitempty"`
	Variable string                 `json:"variable,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Scoring declares how flag captures are totalled.
type Scoring struct {
	TotalPoints     int  `json:"total_points"`
	PassingScore    int  `json:"passing_score,omitempty"`
	TimeBonus       bool `json:"time_bonus,omitempty"`
	PenaltyForHints bool `json:"penalty_for_hints,omitempty"`
}

// Narrative frames the scenario for the student.
type Narrative struct {
	ScenarioBackground string   `json:"scenario_background"`
	AttackerRole       string   `json:"attacker_role,omitempty"`
	Objectives         []string `json:"objectives"`
	SuccessCriteria    string   `json:"success_criteria,omitempty"`
}

// Decode parses raw JSON into a typed Scenario. It assumes the document has
// already passed structural validation; callers wanting diagnostics should
// run Validate first.
func Decode(raw []byte) (*Scenario, error) {
	var s Scenario
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FlagValues returns every flag's literal secret value, in declaration order.
func (s *Scenario) FlagValues() []string {
	values := make([]string, 0, len(s.Flags))
	for _, f := range s.Flags {
		if f.Value != "" {
			values = append(values, f.Value)
		}
	}
	return values
}
