package llm

import (
	"fmt"
	"sort"
	"strings"
)

// System prompts for the four LLM roles.

// AuthoringSystem instructs the model to emit a complete scenario document
// as pure JSON.
const AuthoringSystem = `You are an expert cybersecurity scenario designer for a cyber range platform.

Your role is to convert natural language descriptions into valid JSON scenario files.

CRITICAL RULES:
1. Output ONLY valid JSON - no explanations, no markdown, no comments
2. Use ONLY the enums provided - do not invent new values
3. All required fields must be present
4. Be creative but realistic - vulnerabilities should be authentic
5. Ensure logical consistency (e.g., services match vulnerabilities)
6. Create realistic network topologies with non-overlapping subnets
7. Place flags strategically based on objectives
8. scoring.total_points must equal the sum of all flag points

OUTPUT FORMAT:
- Pure JSON only
- No prose before or after
- Properly escaped strings

If unsure, prefer simpler scenarios that are guaranteed to be valid.`

// RepairSystem instructs the model to fix validation errors with minimal changes.
const RepairSystem = `You are a JSON repair specialist for cyber range scenarios.

Your role is to fix schema validation errors with MINIMAL changes.

CRITICAL RULES:
1. Make ONLY the changes necessary to fix the errors
2. Preserve user intent as much as possible
3. Do not add or remove major features unless required
4. Output ONLY valid JSON - no explanations
5. Use only allowed enum values
6. Ensure all references are valid (IDs must exist)

REPAIR STRATEGY:
1. Read the error messages carefully
2. Identify the minimal fix
3. Apply the fix without altering other parts
4. Output the complete, fixed JSON (not just the fixed part)`

// GuidanceSystem instructs the model to give tiered hints without spoilers.
const GuidanceSystem = `You are a helpful cybersecurity mentor guiding students through penetration testing labs.

Your role is to provide tiered hints without spoiling the learning experience.

CRITICAL RULES:
1. Never reveal flag values directly
2. Respect the hint tier level
3. Use only information from the provided scenario and lab state
4. Encourage independent thinking
5. Reference standard tools and techniques
6. If stuck, suggest methodology, not specific commands

Always explain WHY something works, not just WHAT to do.`

// ExplainerSystem instructs the model to explain a concept post-lab.
const ExplainerSystem = `You are a cybersecurity educator explaining concepts to students who just completed a lab.

Your role is to deepen understanding and connect practice to theory.

STRUCTURE:
1. What: Define the concept clearly
2. Why: Explain why it is important
3. How: Describe how it works technically
4. Risk: Discuss real-world impact
5. Defense: Explain proper mitigations

TONE: professional, detailed but accessible, balanced between attack and defense.`

// BuildAuthoringPrompt assembles the first-pass generation prompt from the
// user's request, the enum vocabularies, retrieved context, and a curated
// few-shot example.
func BuildAuthoringPrompt(description string, enums map[string][]string, retrieved string) string {
	var b strings.Builder

	b.WriteString("USER DESCRIPTION:\n")
	b.WriteString(description)
	b.WriteString("\n\n")

	b.WriteString("AVAILABLE ENUMS:\n")
	keys := make([]string, 0, len(enums))
	for k := range enums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(enums[k], ", "))
	}
	b.WriteString("\n")

	b.WriteString(`SCHEMA REQUIREMENTS:
- Must include: metadata, networks (min 1), hosts (min 1), services, vulnerabilities, flags (min 1), scoring, narrative
- All IDs must be unique within their category
- All references (network_id, service ids, host_id, affected_service) must exist
- IP addresses must be valid and inside the referenced network's subnet
- Subnets must not overlap
- Service ports must be in [1, 65535]
- scoring.total_points must equal the sum of flag points
`)

	if retrieved != "" {
		b.WriteString("\nRELATED EXAMPLES:\n")
		b.WriteString(retrieved)
		b.WriteString("\n")
	}

	b.WriteString("\nEXAMPLE SCENARIO:\n")
	b.WriteString(fewShotScenario)
	b.WriteString("\n")

	b.WriteString(`
REASONING STEPS (think through these, but only output JSON):
1. What is the main learning objective?
2. What vulnerabilities are needed?
3. What services host those vulnerabilities?
4. What network topology makes sense?
5. Where should flags be placed?

Now, generate the complete scenario JSON:`)

	return b.String()
}

// BuildRepairPrompt assembles a repair-pass prompt from the prior draft and
// its validation errors, with a minimal-change instruction.
func BuildRepairPrompt(draft string, errorMessages []string) string {
	var b strings.Builder

	b.WriteString("The following scenario JSON has validation errors:\n\n")
	b.WriteString(draft)
	b.WriteString("\n\nVALIDATION ERRORS:\n")
	for i, msg := range errorMessages {
		fmt.Fprintf(&b, "%d. %s\n", i+1, msg)
	}
	b.WriteString(`
TASK:
Fix ONLY the errors listed above. Make minimal changes.
Preserve the user's intent and all other parts of the scenario.

Output the complete, fixed JSON:`)

	return b.String()
}

// BuildHintPrompt assembles a tier-scoped hint prompt. All inputs must be
// redacted by the caller before they reach this builder.
func BuildHintPrompt(scenarioName string, objectives []string, labState, retrieved, tierName, tierInstruction, userQuestion string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SCENARIO INFO:\nName: %s\nObjectives: %s\n", scenarioName, strings.Join(objectives, ", "))
	if labState != "" {
		fmt.Fprintf(&b, "\nLAB STATE:\n%s\n", labState)
	}
	if retrieved != "" {
		fmt.Fprintf(&b, "\nREFERENCE MATERIAL:\n%s\n", retrieved)
	}
	if userQuestion != "" {
		fmt.Fprintf(&b, "\nUSER QUESTION:\n%s\n", userQuestion)
	}
	fmt.Fprintf(&b, "\nHINT TIER: %s\nINSTRUCTIONS: %s\n\nProvide a helpful hint at tier %s:", tierName, tierInstruction, tierName)

	return b.String()
}

// BuildExplainPrompt assembles a concept-explanation prompt.
func BuildExplainPrompt(topic, scenarioContext, retrieved string, recentEvents []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TOPIC: %s\n", topic)
	if scenarioContext != "" {
		fmt.Fprintf(&b, "\nCONTEXT:\n%s\n", scenarioContext)
	}
	if retrieved != "" {
		fmt.Fprintf(&b, "\nDOCUMENTATION:\n%s\n", retrieved)
	}
	if len(recentEvents) > 0 {
		b.WriteString("\nUSER ACTIONS:\n")
		for _, ev := range recentEvents {
			fmt.Fprintf(&b, "- %s\n", ev)
		}
	}
	b.WriteString(`
Provide a comprehensive explanation of this topic:
1. Definition and overview
2. How it relates to the lab they just completed
3. Technical details
4. Real-world security implications
5. Proper defenses and mitigations

Explanation:`)

	return b.String()
}

// fewShotScenario is one curated valid scenario used for few-shot learning
// in authoring prompts. Kept deliberately small and guaranteed valid.
const fewShotScenario = `{
  "metadata": {
    "name": "Basic SQLi Challenge",
    "description": "Learn SQL injection basics",
    "author": "rangecraft",
    "version": "1.0.0",
    "difficulty": "easy",
    "estimated_time_minutes": 30,
    "tags": ["web", "sqli"],
    "learning_objectives": ["Identify SQL injection", "Extract data"]
  },
  "networks": [
    {"id": "net_main", "name": "main", "type": "custom_bridge", "subnet": "172.20.0.0/16"}
  ],
  "hosts": [
    {
      "id": "host_attacker",
      "name": "attacker",
      "type": "attacker",
      "base_image": "kalilinux/kali-rolling",
      "networks": [{"network_id": "net_main", "ip_address": "172.20.0.10"}],
      "resources": {"cpu_limit": "1.0", "memory_limit": "1g"},
      "services": [],
      "vulnerabilities": [],
      "flags": []
    },
    {
      "id": "host_web",
      "name": "webserver",
      "type": "web",
      "base_image": "php:7.4-apache",
      "networks": [{"network_id": "net_main", "ip_address": "172.20.0.20"}],
      "resources": {"cpu_limit": "0.5", "memory_limit": "512m"},
      "services": ["svc_web"],
      "vulnerabilities": ["vuln_sqli"],
      "flags": ["flag_password"]
    }
  ],
  "services": [
    {
      "id": "svc_web",
      "name": "web_app",
      "type": "apache",
      "version": "2.4",
      "ports": [{"internal": 80, "protocol": "tcp"}]
    }
  ],
  "vulnerabilities": [
    {
      "id": "vuln_sqli",
      "name": "SQL Injection",
      "type": "sql_injection",
      "severity": "high",
      "description": "Login form vulnerable to SQLi",
      "affected_service": "svc_web"
    }
  ],
  "flags": [
    {
      "id": "flag_password",
      "name": "Admin Password",
      "value": "FLAG{sql_injection_success}",
      "placement": {
        "type": "db_row",
        "host_id": "host_web",
        "details": {"table": "users", "query": "SELECT password FROM users"}
      },
      "points": 100
    }
  ],
  "scoring": {"total_points": 100, "passing_score": 100},
  "narrative": {
    "scenario_background": "Test a web application for SQL injection",
    "attacker_role": "Pentester",
    "objectives": ["Find SQLi", "Extract password"],
    "success_criteria": "Capture the flag"
  }
}`
