package schema

import (
	"encoding/json"
	"fmt"
	"net/netip"
)

// ValidationError reports one schema or semantic violation at a stable
// field locator such as "hosts[1].networks[0].ip_address".
type ValidationError struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Severities for ValidationError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

func (e ValidationError) String() string {
	path := e.Path
	if path == "" {
		path = "root"
	}
	if e.Severity == SeverityWarning {
		return fmt.Sprintf("[WARNING] %s: %s", path, e.Message)
	}
	return fmt.Sprintf("[ERROR] %s: %s", path, e.Message)
}

func errAt(path, format string, args ...interface{}) ValidationError {
	return ValidationError{Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

func warnAt(path, format string, args ...interface{}) ValidationError {
	return ValidationError{Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}

// HasBlocking reports whether any entry has error severity. Warnings alone
// never block acceptance.
func HasBlocking(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Messages renders each entry as a display string, preserving order.
func Messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.String()
	}
	return out
}

// Validate runs the two-phase check over a raw scenario document and returns
// the ordered list of violations. An empty list means the document is valid.
//
// Phase 1 walks the parsed JSON tree checking required fields, primitive
// types, and enum membership, tracking the path of each violation. Phase 2
// runs only when phase 1 passes, since its checks presuppose a well-typed
// document: id uniqueness, reference resolution, subnet topology, port
// ranges, cardinality minimums, and score totals.
func Validate(raw []byte) []ValidationError {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []ValidationError{errAt("", "document is not a JSON object: %v", err)}
	}

	structural := validateStructure(doc)
	if HasBlocking(structural) {
		return structural
	}

	s, err := Decode(raw)
	if err != nil {
		// Phase 1 passed but the typed decode disagrees; report rather than panic.
		return append(structural, errAt("", "document does not decode: %v", err))
	}

	return append(structural, validateSemantics(s)...)
}

// ValidateScenario checks an already-typed document, for callers editing a
// Scenario programmatically. Edits go through the same semantic pass as
// generated drafts.
func ValidateScenario(s *Scenario) []ValidationError {
	raw, err := json.Marshal(s)
	if err != nil {
		return []ValidationError{errAt("", "document does not marshal: %v", err)}
	}
	return Validate(raw)
}

// =============================================================================
// PHASE 2: SEMANTIC VALIDATION
// =============================================================================

func validateSemantics(s *Scenario) []ValidationError {
	var errs []ValidationError

	errs = append(errs, checkCardinality(s)...)
	errs = append(errs, checkUniqueIDs(s)...)
	errs = append(errs, checkReferences(s)...)
	errs = append(errs, checkTopology(s)...)
	errs = append(errs, checkPorts(s)...)
	errs = append(errs, checkScoring(s)...)
	errs = append(errs, advisoryFindings(s)...)

	return errs
}

func checkCardinality(s *Scenario) []ValidationError {
	var errs []ValidationError
	if len(s.Networks) == 0 {
		errs = append(errs, errAt("networks", "scenario must declare at least one network"))
	}
	if len(s.Hosts) == 0 {
		errs = append(errs, errAt("hosts", "scenario must declare at least one host"))
	}
	if len(s.Flags) == 0 {
		errs = append(errs, errAt("flags", "scenario must declare at least one flag"))
	}
	return errs
}

func checkUniqueIDs(s *Scenario) []ValidationError {
	var errs []ValidationError

	check := func(category string, ids []string) {
		seen := make(map[string]int, len(ids))
		for i, id := range ids {
			if first, dup := seen[id]; dup {
				errs = append(errs, errAt(fmt.Sprintf("%s[%d].id", category, i),
					"duplicate id %q (first declared at %s[%d])", id, category, first))
				continue
			}
			seen[id] = i
		}
	}

	check("networks", collectIDs(len(s.Networks), func(i int) string { return s.Networks[i].ID }))
	check("hosts", collectIDs(len(s.Hosts), func(i int) string { return s.Hosts[i].ID }))
	check("services", collectIDs(len(s.Services), func(i int) string { return s.Services[i].ID }))
	check("vulnerabilities", collectIDs(len(s.Vulnerabilities), func(i int) string { return s.Vulnerabilities[i].ID }))
	check("flags", collectIDs(len(s.Flags), func(i int) string { return s.Flags[i].ID }))

	return errs
}

func collectIDs(n int, get func(int) string) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = get(i)
	}
	return ids
}

func checkReferences(s *Scenario) []ValidationError {
	var errs []ValidationError

	networkIDs := idSet(collectIDs(len(s.Networks), func(i int) string { return s.Networks[i].ID }))
	hostIDs := idSet(collectIDs(len(s.Hosts), func(i int) string { return s.Hosts[i].ID }))
	serviceIDs := idSet(collectIDs(len(s.Services), func(i int) string { return s.Services[i].ID }))
	vulnIDs := idSet(collectIDs(len(s.Vulnerabilities), func(i int) string { return s.Vulnerabilities[i].ID }))
	flagIDs := idSet(collectIDs(len(s.Flags), func(i int) string { return s.Flags[i].ID }))

	for hi, host := range s.Hosts {
		for ni, attach := range host.Networks {
			if !networkIDs[attach.NetworkID] {
				errs = append(errs, errAt(fmt.Sprintf("hosts[%d].networks[%d].network_id", hi, ni),
					"host %q references unknown network %q", host.ID, attach.NetworkID))
			}
		}
		for si, svc := range host.Services {
			if !serviceIDs[svc] {
				errs = append(errs, errAt(fmt.Sprintf("hosts[%d].services[%d]", hi, si),
					"host %q references unknown service %q", host.ID, svc))
			}
		}
		for vi, vuln := range host.Vulnerabilities {
			if !vulnIDs[vuln] {
				errs = append(errs, errAt(fmt.Sprintf("hosts[%d].vulnerabilities[%d]", hi, vi),
					"host %q references unknown vulnerability %q", host.ID, vuln))
			}
		}
		for fi, flag := range host.Flags {
			if !flagIDs[flag] {
				errs = append(errs, errAt(fmt.Sprintf("hosts[%d].flags[%d]", hi, fi),
					"host %q references unknown flag %q", host.ID, flag))
			}
		}
	}

	for vi, vuln := range s.Vulnerabilities {
		if vuln.AffectedService != "" && !serviceIDs[vuln.AffectedService] {
			errs = append(errs, errAt(fmt.Sprintf("vulnerabilities[%d].affected_service", vi),
				"vulnerability %q references unknown service %q", vuln.ID, vuln.AffectedService))
		}
	}

	for fi, flag := range s.Flags {
		if flag.Placement.HostID != "" && !hostIDs[flag.Placement.HostID] {
			errs = append(errs, errAt(fmt.Sprintf("flags[%d].placement.host_id", fi),
				"flag %q is placed on unknown host %q", flag.ID, flag.Placement.HostID))
		}
	}

	return errs
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// checkTopology validates subnet declarations: each network subnet parses,
// subnets are pairwise non-overlapping, and each statically addressed host
// sits inside the subnet of the network it attaches to.
func checkTopology(s *Scenario) []ValidationError {
	var errs []ValidationError

	subnets := make(map[string]netip.Prefix, len(s.Networks))
	type declared struct {
		index  int
		prefix netip.Prefix
	}
	var parsed []declared

	for ni, network := range s.Networks {
		prefix, err := netip.ParsePrefix(network.Subnet)
		if err != nil {
			errs = append(errs, errAt(fmt.Sprintf("networks[%d].subnet", ni),
				"invalid CIDR subnet %q: %v", network.Subnet, err))
			continue
		}
		prefix = prefix.Masked()
		subnets[network.ID] = prefix
		parsed = append(parsed, declared{index: ni, prefix: prefix})
	}

	// Pairwise overlap: two prefixes intersect iff either contains the
	// other's base address.
	for i := 0; i < len(parsed); i++ {
		for j := i + 1; j < len(parsed); j++ {
			a, b := parsed[i], parsed[j]
			if a.prefix.Overlaps(b.prefix) {
				errs = append(errs, errAt(fmt.Sprintf("networks[%d].subnet", b.index),
					"subnet %s overlaps subnet %s declared by networks[%d]",
					b.prefix, a.prefix, a.index))
			}
		}
	}

	for hi, host := range s.Hosts {
		for ni, attach := range host.Networks {
			if attach.IPAddress == "" {
				continue
			}
			addr, err := netip.ParseAddr(attach.IPAddress)
			if err != nil {
				errs = append(errs, errAt(fmt.Sprintf("hosts[%d].networks[%d].ip_address", hi, ni),
					"invalid IP address %q: %v", attach.IPAddress, err))
				continue
			}
			prefix, ok := subnets[attach.NetworkID]
			if !ok {
				// Unknown network already reported by reference check.
				continue
			}
			if !prefix.Contains(addr) {
				errs = append(errs, errAt(fmt.Sprintf("hosts[%d].networks[%d].ip_address", hi, ni),
					"IP %s is not inside subnet %s of network %q", addr, prefix, attach.NetworkID))
			}
		}
	}

	return errs
}

func checkPorts(s *Scenario) []ValidationError {
	var errs []ValidationError
	for si, svc := range s.Services {
		for pi, port := range svc.Ports {
			if port.Internal < 1 || port.Internal > 65535 {
				errs = append(errs, errAt(fmt.Sprintf("services[%d].ports[%d].internal", si, pi),
					"port %d is outside [1,65535]", port.Internal))
			}
		}
	}
	return errs
}

func checkScoring(s *Scenario) []ValidationError {
	sum := 0
	for _, f := range s.Flags {
		sum += f.Points
	}
	if s.Scoring.TotalPoints != sum {
		return []ValidationError{errAt("scoring.total_points",
			"total_points is %d but flag points sum to %d", s.Scoring.TotalPoints, sum)}
	}
	return nil
}

// advisoryFindings produces warnings for suspicious but deployable documents.
func advisoryFindings(s *Scenario) []ValidationError {
	var warns []ValidationError

	var attackers []int
	for hi, host := range s.Hosts {
		if host.Type == HostAttacker {
			attackers = append(attackers, hi)
			if len(host.Flags) > 0 {
				warns = append(warns, warnAt(fmt.Sprintf("hosts[%d].flags", hi),
					"attacker host %q holds flags", host.ID))
			}
		}
		if len(host.Networks) == 0 {
			warns = append(warns, warnAt(fmt.Sprintf("hosts[%d].networks", hi),
				"host %q is not attached to any network", host.ID))
		}
	}
	if len(attackers) == 0 {
		warns = append(warns, warnAt("hosts", "no attacker host declared; scenario may not be solvable"))
	} else if len(attackers) > 1 {
		warns = append(warns, warnAt("hosts", "%d attacker hosts declared", len(attackers)))
	}

	used := make(map[string]bool)
	for _, host := range s.Hosts {
		for _, attach := range host.Networks {
			used[attach.NetworkID] = true
		}
	}
	for ni, network := range s.Networks {
		if !used[network.ID] {
			warns = append(warns, warnAt(fmt.Sprintf("networks[%d]", ni),
				"network %q is declared but not used by any host", network.ID))
		}
	}

	seenValues := make(map[string]int)
	for fi, flag := range s.Flags {
		if flag.Value == "" {
			continue
		}
		if first, dup := seenValues[flag.Value]; dup {
			warns = append(warns, warnAt(fmt.Sprintf("flags[%d].value", fi),
				"flag value duplicates flags[%d]", first))
			continue
		}
		seenValues[flag.Value] = fi
	}

	return warns
}
