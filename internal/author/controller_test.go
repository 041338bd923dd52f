package author

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rangecraft/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// validDoc passes both validation phases with no findings.
const validDoc = `{
  "metadata": {"name": "Lab", "description": "A lab", "difficulty": "easy"},
  "networks": [{"id": "net1", "name": "main", "type": "bridge", "subnet": "10.10.0.0/24"}],
  "hosts": [
    {"id": "h_atk", "name": "attacker", "type": "attacker", "base_image": "kali",
     "networks": [{"network_id": "net1", "ip_address": "10.10.0.5"}]},
    {"id": "h_web", "name": "web", "type": "web", "base_image": "nginx",
     "networks": [{"network_id": "net1"}], "flags": ["f1"]}
  ],
  "services": [],
  "vulnerabilities": [],
  "flags": [{"id": "f1", "name": "Flag", "value": "FLAG{x}",
             "placement": {"type": "file", "host_id": "h_web"}, "points": 10}],
  "scoring": {"total_points": 10},
  "narrative": {"scenario_background": "bg", "objectives": ["win"]}
}`

// brokenDoc fails semantic validation: the score total does not match.
var brokenDoc = strings.Replace(validDoc, `"total_points": 10`, `"total_points": 99`, 1)

type stubResponse struct {
	text string
	err  error
}

// stubGenerator replays scripted responses and records what it was asked.
type stubGenerator struct {
	responses []stubResponse
	calls     int
	prompts   []string
	systems   []string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.systems = append(s.systems, opts.System)
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("unexpected generation call %d", s.calls)
	}
	r := s.responses[s.calls]
	s.calls++
	return r.text, r.err
}

type stubRetriever struct {
	context string
	err     error
	queries []string
}

func (s *stubRetriever) GetContext(ctx context.Context, query string, topK, charBudget int) (string, error) {
	s.queries = append(s.queries, query)
	return s.context, s.err
}

func TestAuthorAcceptsFirstDraft(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{{text: validDoc}}}
	ret := &stubRetriever{context: "[scenario]\nprior lab"}
	c := NewController(gen, ret, Config{})

	result, err := c.Author(context.Background(), "easy web lab")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "Lab", result.Scenario.Metadata.Name)
	assert.Empty(t, result.Warnings)
	assert.NotEmpty(t, result.SessionID)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "easy web lab")
	assert.Contains(t, gen.prompts[0], "prior lab", "retrieved context must reach the prompt")
	assert.Equal(t, llm.AuthoringSystem, gen.systems[0])
	assert.Equal(t, []string{"easy web lab"}, ret.queries)
}

func TestAuthorRepairsInvalidDraft(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: brokenDoc},
		{text: validDoc},
	}}
	c := NewController(gen, nil, Config{})

	result, err := c.Author(context.Background(), "lab")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempts)
	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "scoring.total_points",
		"repair prompt must carry the validation error")
	assert.Contains(t, gen.prompts[1], `"total_points": 99`,
		"repair prompt must carry the broken draft")
	assert.Equal(t, llm.RepairSystem, gen.systems[1])
}

func TestAuthorExhaustsBudget(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: brokenDoc}, {text: brokenDoc}, {text: brokenDoc},
		{text: brokenDoc}, {text: brokenDoc},
	}}
	c := NewController(gen, nil, Config{MaxAttempts: 3})

	_, err := c.Author(context.Background(), "lab")

	var exhausted *RepairExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, gen.calls, "must never generate more than the budget")
	assert.Len(t, exhausted.Attempts, 3)
	assert.NotEmpty(t, exhausted.LastErrors)
	for i, attempt := range exhausted.Attempts {
		assert.Equal(t, i, attempt.Index)
		assert.NotEmpty(t, attempt.Errors)
	}
}

func TestAuthorExtractionFailureConsumesBudget(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: "I refuse to produce JSON."},
		{text: validDoc},
	}}
	c := NewController(gen, nil, Config{})

	result, err := c.Author(context.Background(), "lab")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)

	// The repair prompt carries the unparseable text as the broken draft.
	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "I refuse to produce JSON.")
	assert.Contains(t, gen.prompts[1], "output is not valid JSON")
}

func TestAuthorUnextractableEveryTime(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: "nope"}, {text: "still nope"},
	}}
	c := NewController(gen, nil, Config{MaxAttempts: 2})

	_, err := c.Author(context.Background(), "lab")

	var exhausted *RepairExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, gen.calls)
}

func TestAuthorConnectionErrorIsTerminal(t *testing.T) {
	connErr := &llm.ConnectionError{Endpoint: "http://localhost:11434", Err: errors.New("refused")}
	gen := &stubGenerator{responses: []stubResponse{
		{text: brokenDoc},
		{err: connErr},
	}}
	c := NewController(gen, nil, Config{MaxAttempts: 5})

	_, err := c.Author(context.Background(), "lab")

	var backend *BackendFailedError
	require.ErrorAs(t, err, &backend)
	assert.Equal(t, 2, gen.calls, "no further attempts after the backend dies")
	assert.Len(t, backend.Attempts, 1, "history up to the failure is preserved")
	assert.ErrorIs(t, err, connErr)
}

func TestAuthorTimeoutIsTerminal(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{err: &llm.TimeoutError{}},
	}}
	c := NewController(gen, nil, Config{})

	_, err := c.Author(context.Background(), "lab")
	var backend *BackendFailedError
	require.ErrorAs(t, err, &backend)
	assert.Equal(t, 1, gen.calls)
}

func TestAuthorRetrievalFailureDegrades(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{{text: validDoc}}}
	ret := &stubRetriever{err: errors.New("index offline")}
	c := NewController(gen, ret, Config{})

	result, err := c.Author(context.Background(), "lab")
	require.NoError(t, err, "retrieval failure must not abort authoring")
	assert.Equal(t, 1, result.Attempts)
}

func TestAuthorSurfacesWarnings(t *testing.T) {
	// Valid but with an advisory finding: no attacker host.
	noAttacker := strings.Replace(validDoc, `"type": "attacker"`, `"type": "victim"`, 1)
	gen := &stubGenerator{responses: []stubResponse{{text: noAttacker}}}
	c := NewController(gen, nil, Config{})

	result, err := c.Author(context.Background(), "lab")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts, "warnings alone must not trigger repair")
	assert.NotEmpty(t, result.Warnings)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "GENERATE", StateGenerate.String())
	assert.Equal(t, "FAIL", StateFail.String())
}
