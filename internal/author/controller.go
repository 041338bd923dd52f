// Package author implements the generate→extract→validate→repair control
// loop that converts a natural-language lab request into a schema-valid
// Scenario or a well-diagnosed failure.
package author

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"rangecraft/internal/llm"
	"rangecraft/internal/logging"
	"rangecraft/internal/schema"
)

// State names one node of the repair loop's finite-state machine.
type State int

const (
	StateInit State = iota
	StateGenerate
	StateExtract
	StateValidate
	StateRepair
	StateAccept
	StateFail
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateGenerate:
		return "GENERATE"
	case StateExtract:
		return "EXTRACT"
	case StateValidate:
		return "VALIDATE"
	case StateRepair:
		return "REPAIR"
	case StateAccept:
		return "ACCEPT"
	case StateFail:
		return "FAIL"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Generator is the slice of the generation client the controller needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)
}

// ContextProvider supplies retrieved context for the authoring prompt.
type ContextProvider interface {
	GetContext(ctx context.Context, query string, topK, charBudget int) (string, error)
}

// Config bounds one authoring session.
type Config struct {
	MaxAttempts  int     `yaml:"max_attempts" json:"max_attempts"`   // generation calls per session, default 3
	ContextTopK  int     `yaml:"context_top_k" json:"context_top_k"` // retrieved docs, default 2
	ContextChars int     `yaml:"context_chars" json:"context_chars"` // context budget, default 500
	Temperature  float64 `yaml:"temperature" json:"temperature"`     // default 0.1, near-deterministic JSON
}

// DefaultConfig returns the default session bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		ContextTopK:  2,
		ContextChars: 500,
		Temperature:  0.1,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.ContextTopK <= 0 {
		c.ContextTopK = def.ContextTopK
	}
	if c.ContextChars <= 0 {
		c.ContextChars = def.ContextChars
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
}

// RepairAttempt is one append-only log entry of a failed attempt.
type RepairAttempt struct {
	Index        int                      `json:"index"`
	Draft        json.RawMessage          `json:"draft,omitempty"`
	Errors       []schema.ValidationError `json:"errors"`
	RawModelText string                   `json:"raw_model_text"`
}

// RepairExhaustedError is the terminal failure after the attempt budget is
// consumed without an accepted document.
type RepairExhaustedError struct {
	SessionID  string
	Attempts   []RepairAttempt
	LastErrors []schema.ValidationError
}

func (e *RepairExhaustedError) Error() string {
	return fmt.Sprintf("no valid scenario after %d attempts (%d errors remain)",
		len(e.Attempts), len(e.LastErrors))
}

// BackendFailedError is the terminal failure when the generation backend
// dies mid-session. It preserves the attempt history gathered so far.
type BackendFailedError struct {
	SessionID string
	State     State
	Attempts  []RepairAttempt
	Err       error
}

func (e *BackendFailedError) Error() string {
	return fmt.Sprintf("generation backend failed in %s after %d attempts: %v",
		e.State, len(e.Attempts), e.Err)
}

func (e *BackendFailedError) Unwrap() error { return e.Err }

// Result is an accepted authoring session.
type Result struct {
	SessionID string
	Scenario  *schema.Scenario
	Raw       json.RawMessage
	Attempts  int // generation calls consumed, >= 1
	Warnings  []schema.ValidationError
}

// Controller drives one or more authoring sessions. Sessions share no
// mutable state, so one controller can serve concurrent callers.
type Controller struct {
	generator Generator
	retriever ContextProvider
	cfg       Config
}

// NewController wires the repair loop over a generation client and a
// retrieval assembler.
func NewController(g Generator, r ContextProvider, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{generator: g, retriever: r, cfg: cfg}
}

// Author runs one session of the state machine:
//
//	INIT → GENERATE → EXTRACT → VALIDATE → {ACCEPT | REPAIR → GENERATE | FAIL}
//
// Validation failures (including unextractable output) consume attempt
// budget; a connection or timeout error from the backend terminates the
// session immediately, since retrying a dead backend is pointless.
func (c *Controller) Author(ctx context.Context, description string) (*Result, error) {
	sessionID := uuid.NewString()
	logging.Author("Session %s: authoring %q (budget=%d)", sessionID, truncate(description, 80), c.cfg.MaxAttempts)

	var (
		state      = StateInit
		attempts   []RepairAttempt
		prompt     string
		system     string
		rawText    string
		draft      json.RawMessage
		violations []schema.ValidationError
		calls      int
	)

	for {
		logging.AuthorDebug("Session %s: state=%s calls=%d", sessionID, state, calls)

		switch state {
		case StateInit:
			retrieved := ""
			if c.retriever != nil {
				var err error
				retrieved, err = c.retriever.GetContext(ctx, description, c.cfg.ContextTopK, c.cfg.ContextChars)
				if err != nil {
					// Retrieval is an enrichment; a failed lookup degrades
					// to an uncontextualized prompt rather than aborting.
					logging.Get(logging.CategoryAuthor).Warn("Session %s: retrieval failed: %v", sessionID, err)
					retrieved = ""
				}
			}
			prompt = llm.BuildAuthoringPrompt(description, schema.Enums(), retrieved)
			system = llm.AuthoringSystem
			state = StateGenerate

		case StateGenerate:
			text, err := c.generator.Generate(ctx, prompt, llm.GenerateOptions{
				System:      system,
				Temperature: c.cfg.Temperature,
			})
			if err != nil {
				// Connection loss, timeout, or context cancellation: the
				// backend is gone, so repairing is pointless. Terminal.
				logging.Get(logging.CategoryAuthor).Error("Session %s: backend failed: %v", sessionID, err)
				return nil, &BackendFailedError{SessionID: sessionID, State: StateGenerate, Attempts: attempts, Err: err}
			}
			calls++
			rawText = text
			state = StateExtract

		case StateExtract:
			payload, err := llm.ExtractJSON(rawText)
			if err != nil {
				// Unextractable output is routed to VALIDATE as a failing
				// result so a repair pass can still be attempted.
				draft = nil
				violations = []schema.ValidationError{{
					Path:     "",
					Message:  "output is not valid JSON",
					Severity: schema.SeverityError,
				}}
				state = StateValidate
				continue
			}
			draft = payload
			violations = nil
			state = StateValidate

		case StateValidate:
			if draft != nil {
				violations = schema.Validate(draft)
			}
			if !schema.HasBlocking(violations) {
				state = StateAccept
				continue
			}
			logging.AuthorDebug("Session %s: %d violations", sessionID, len(violations))
			state = StateRepair

		case StateRepair:
			attempts = append(attempts, RepairAttempt{
				Index:        len(attempts),
				Draft:        draft,
				Errors:       violations,
				RawModelText: rawText,
			})
			if calls >= c.cfg.MaxAttempts {
				state = StateFail
				continue
			}
			brokenDraft := string(draft)
			if brokenDraft == "" {
				brokenDraft = rawText
			}
			prompt = llm.BuildRepairPrompt(brokenDraft, blockingMessages(violations))
			system = llm.RepairSystem
			state = StateGenerate

		case StateAccept:
			scenario, err := schema.Decode(draft)
			if err != nil {
				return nil, &BackendFailedError{SessionID: sessionID, State: StateAccept, Attempts: attempts, Err: err}
			}
			logging.Author("Session %s: accepted after %d call(s), %d warning(s)", sessionID, calls, len(violations))
			return &Result{
				SessionID: sessionID,
				Scenario:  scenario,
				Raw:       draft,
				Attempts:  calls,
				Warnings:  violations,
			}, nil

		case StateFail:
			logging.Get(logging.CategoryAuthor).Error("Session %s: budget exhausted after %d attempts", sessionID, len(attempts))
			return nil, &RepairExhaustedError{
				SessionID:  sessionID,
				Attempts:   attempts,
				LastErrors: violations,
			}
		}
	}
}

// blockingMessages renders only error-severity violations for the repair
// prompt; warnings are advisory and never drive a repair pass.
func blockingMessages(errs []schema.ValidationError) []string {
	var out []string
	for _, e := range errs {
		if e.Severity == schema.SeverityError {
			out = append(out, e.String())
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
