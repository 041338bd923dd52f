// Package guide produces tiered in-lab hints and post-lab explanations.
// Every path that touches a scenario redacts flag values on the way into
// the prompt and again on the way out of the response.
package guide

import (
	"context"
	"fmt"
	"strings"

	"rangecraft/internal/llm"
	"rangecraft/internal/logging"
	"rangecraft/internal/schema"
)

// Generator is the slice of the generation client the guide needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)
}

// ContextProvider supplies retrieved reference material.
type ContextProvider interface {
	GetContext(ctx context.Context, query string, topK, charBudget int) (string, error)
}

// Config holds guidance tuning.
type Config struct {
	HintTemperature    float64 `yaml:"hint_temperature" json:"hint_temperature"`       // default 0.4
	ExplainTemperature float64 `yaml:"explain_temperature" json:"explain_temperature"` // default 0.3
	ContextTopK        int     `yaml:"context_top_k" json:"context_top_k"`             // default 2
	ContextChars       int     `yaml:"context_chars" json:"context_chars"`             // default 800
}

// DefaultConfig returns the default guidance tuning.
func DefaultConfig() Config {
	return Config{
		HintTemperature:    0.4,
		ExplainTemperature: 0.3,
		ContextTopK:        2,
		ContextChars:       800,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HintTemperature == 0 {
		c.HintTemperature = def.HintTemperature
	}
	if c.ExplainTemperature == 0 {
		c.ExplainTemperature = def.ExplainTemperature
	}
	if c.ContextTopK <= 0 {
		c.ContextTopK = def.ContextTopK
	}
	if c.ContextChars <= 0 {
		c.ContextChars = def.ContextChars
	}
}

// Guide answers hint and explanation requests for a running or completed
// lab. Stateless across requests.
type Guide struct {
	generator Generator
	retriever ContextProvider
	cfg       Config
}

// NewGuide wires a guide over a generation client and an optional
// retrieval assembler (nil disables retrieved reference material).
func NewGuide(g Generator, r ContextProvider, cfg Config) *Guide {
	cfg.applyDefaults()
	return &Guide{generator: g, retriever: r, cfg: cfg}
}

// HintRequest describes one hint ask.
type HintRequest struct {
	Scenario *schema.Scenario
	Tier     Tier
	LabState string // free-form progress notes, may quote scenario text
	Question string // optional user question
}

// hintFallback is returned when the model's answer still looks like it
// contains a flag value after redaction.
const hintFallback = "I can't share that detail directly. Review the scenario objectives and look again at the services you have already enumerated."

// Hint generates a single tier-bounded hint. Flag values are stripped from
// everything sent to the model, and the response is redacted again before
// it is returned; a response that still carries a flag-shaped token is
// discarded in favor of a generic fallback.
func (g *Guide) Hint(ctx context.Context, req HintRequest) (string, error) {
	if req.Scenario == nil {
		return "", fmt.Errorf("hint request requires a scenario")
	}
	if req.Tier < TierNudge || req.Tier > TierExplicit {
		req.Tier = TierNudge
	}

	secrets := req.Scenario.FlagValues()
	logging.Guide("Hint: scenario=%q tier=%s", req.Scenario.Metadata.Name, req.Tier)

	// Everything reaching the prompt is redacted, scenario text included:
	// authors paste flag literals into names and narrative objectives.
	retrieved := g.retrieve(ctx, hintQuery(req.Scenario, req.Question))
	retrieved = Redact(retrieved, secrets)
	labState := Redact(req.LabState, secrets)
	question := Redact(req.Question, secrets)
	objectives := make([]string, len(req.Scenario.Narrative.Objectives))
	for i, obj := range req.Scenario.Narrative.Objectives {
		objectives[i] = Redact(obj, secrets)
	}

	prompt := llm.BuildHintPrompt(
		Redact(req.Scenario.Metadata.Name, secrets),
		objectives,
		labState,
		retrieved,
		req.Tier.String(),
		req.Tier.Instruction(),
		question,
	)

	answer, err := g.generator.Generate(ctx, prompt, llm.GenerateOptions{
		System:      llm.GuidanceSystem,
		Temperature: g.cfg.HintTemperature,
	})
	if err != nil {
		return "", err
	}

	answer = Redact(answer, secrets)
	if LeaksFlag(answer) {
		logging.Get(logging.CategoryGuide).Warn("Hint response contained a flag-shaped token, discarded")
		return hintFallback, nil
	}
	return strings.TrimSpace(answer), nil
}

// hintQuery builds the retrieval query from the scenario's vulnerability
// vocabulary plus the user's question.
func hintQuery(s *schema.Scenario, question string) string {
	var parts []string
	for _, v := range s.Vulnerabilities {
		parts = append(parts, string(v.Type))
	}
	if question != "" {
		parts = append(parts, question)
	}
	if len(parts) == 0 {
		return s.Metadata.Description
	}
	return strings.Join(parts, " ")
}

func (g *Guide) retrieve(ctx context.Context, query string) string {
	if g.retriever == nil || query == "" {
		return ""
	}
	retrieved, err := g.retriever.GetContext(ctx, query, g.cfg.ContextTopK, g.cfg.ContextChars)
	if err != nil {
		logging.Get(logging.CategoryGuide).Warn("Retrieval failed, continuing without context: %v", err)
		return ""
	}
	return retrieved
}
