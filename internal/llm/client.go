// Package llm wraps a local Ollama generation backend: a connectivity probe,
// a blocking generate call with bounded transport retry, prompt templates,
// and JSON extraction from raw model output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"rangecraft/internal/logging"
)

// Config holds generation client configuration.
type Config struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`       // default "http://localhost:11434"
	Model       string        `yaml:"model" json:"model"`             // default "llama3.2:latest"
	Temperature float64       `yaml:"temperature" json:"temperature"` // default 0.2, low for deterministic JSON
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`         // default 120s
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"` // transport retries, default 2
	Backoff     time.Duration `yaml:"backoff" json:"backoff"`         // initial retry backoff, default 500ms
}

// DefaultConfig returns sensible defaults for a local deployment.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:11434",
		Model:       "llama3.2:latest",
		Temperature: 0.2,
		Timeout:     120 * time.Second,
		MaxRetries:  2,
		Backoff:     500 * time.Millisecond,
	}
}

// UnmarshalYAML accepts durations in "120s" form and merges over any values
// already present, so file config layers cleanly over defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		Temperature float64 `yaml:"temperature"`
		Timeout     string  `yaml:"timeout"`
		MaxRetries  int     `yaml:"max_retries"`
		Backoff     string  `yaml:"backoff"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.BaseURL != "" {
		c.BaseURL = raw.BaseURL
	}
	if raw.Model != "" {
		c.Model = raw.Model
	}
	if raw.Temperature != 0 {
		c.Temperature = raw.Temperature
	}
	if raw.MaxRetries != 0 {
		c.MaxRetries = raw.MaxRetries
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("invalid llm timeout %q: %w", raw.Timeout, err)
		}
		c.Timeout = d
	}
	if raw.Backoff != "" {
		d, err := time.ParseDuration(raw.Backoff)
		if err != nil {
			return fmt.Errorf("invalid llm backoff %q: %w", raw.Backoff, err)
		}
		c.Backoff = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.Backoff == 0 {
		c.Backoff = def.Backoff
	}
}

// Client is a stateless request/response wrapper around the backend.
// Construction never touches the network; call CheckConnection before first
// use so startup failure is a visible control-flow branch.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient constructs a client from configuration.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		// The transport client carries no timeout of its own; each call gets
		// an explicit context deadline so no call can block indefinitely.
		http: &http.Client{},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// CheckConnection probes the backend and verifies the configured model is
// available. Fails fast with an actionable diagnostic.
func (c *Client) CheckConnection(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("Connection probe failed: %v", err)
		return &ConnectionError{Endpoint: c.cfg.BaseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ConnectionError{
			Endpoint: c.cfg.BaseURL,
			Err:      fmt.Errorf("probe returned status %d", resp.StatusCode),
		}
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return &ConnectionError{Endpoint: c.cfg.BaseURL, Err: fmt.Errorf("malformed probe response: %w", err)}
	}
	for _, m := range tags.Models {
		if m.Name == c.cfg.Model {
			logging.API("Backend reachable, model %s available", c.cfg.Model)
			return nil
		}
	}
	return fmt.Errorf("model %s not found on backend; run: ollama pull %s", c.cfg.Model, c.cfg.Model)
}

// GenerateOptions override per-call generation parameters. Zero values fall
// back to the client configuration.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate issues one blocking completion call. Transport-level connection
// failures are retried with increasing backoff up to the configured bound
// and surface as *ConnectionError when exhausted. A deadline hit surfaces as
// *TimeoutError and is never retried here.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "Generate")
	defer timer.Stop()

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.Timeout
	}

	payload := generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		System: opts.System,
		Stream: false,
		Options: generateOptions{
			Temperature: temperature,
			NumPredict:  opts.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	logging.APIDebug("Generate: model=%s temp=%.2f prompt=%d chars timeout=%s",
		c.cfg.Model, temperature, len(prompt), timeout)

	var lastErr error
	backoff := c.cfg.Backoff
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Get(logging.CategoryAPI).Warn("Transport retry %d/%d after: %v",
				attempt, c.cfg.MaxRetries, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}

		text, err := c.generateOnce(ctx, body, timeout)
		if err == nil {
			return text, nil
		}

		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			// Backend accepted the request but ran over the deadline.
			// Returned as-is so the caller can decide; not a retry case.
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}

	// A reachable backend that kept answering with errors is not a
	// connectivity problem; keep the diagnosis distinct.
	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) {
		return "", lastErr
	}
	return "", &ConnectionError{Endpoint: c.cfg.BaseURL, Err: lastErr}
}

func (c *Client) generateOnce(ctx context.Context, body []byte, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &TimeoutError{Timeout: timeout, Err: err}
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	logging.APIDebug("Generate: received %d chars", len(result.Response))
	return result.Response, nil
}
