package guide

import (
	"context"
	"fmt"
	"strings"

	"rangecraft/internal/llm"
	"rangecraft/internal/logging"
	"rangecraft/internal/schema"
)

// ExplainRequest describes one post-lab explanation ask.
type ExplainRequest struct {
	Topic        string
	Scenario     *schema.Scenario // optional, grounds the explanation in the lab
	RecentEvents []string         // optional, what the user actually did
}

// Explain generates a structured concept explanation. A scenario, when
// present, contributes context and its flag values are redacted the same
// way hints redact them.
func (g *Guide) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return "", fmt.Errorf("explain request requires a topic")
	}
	logging.Guide("Explain: topic=%q", req.Topic)

	var secrets []string
	scenarioContext := ""
	if req.Scenario != nil {
		secrets = req.Scenario.FlagValues()
		scenarioContext = Redact(scenarioSummary(req.Scenario), secrets)
	}

	retrieved := Redact(g.retrieve(ctx, req.Topic), secrets)

	events := make([]string, 0, len(req.RecentEvents))
	for _, ev := range req.RecentEvents {
		events = append(events, Redact(ev, secrets))
	}

	prompt := llm.BuildExplainPrompt(req.Topic, scenarioContext, retrieved, events)

	answer, err := g.generator.Generate(ctx, prompt, llm.GenerateOptions{
		System:      llm.ExplainerSystem,
		Temperature: g.cfg.ExplainTemperature,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(Redact(answer, secrets)), nil
}

// scenarioSummary renders the parts of a scenario an explanation can use:
// name, background, and the vulnerability list. Flag placements stay out.
func scenarioSummary(s *schema.Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", s.Metadata.Name)
	if s.Narrative.ScenarioBackground != "" {
		fmt.Fprintf(&b, "Background: %s\n", s.Narrative.ScenarioBackground)
	}
	for _, v := range s.Vulnerabilities {
		fmt.Fprintf(&b, "Vulnerability: %s (%s, %s)\n", v.Name, v.Type, v.Severity)
	}
	return b.String()
}
