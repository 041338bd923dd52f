package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExtractJSONFencedBlock(t *testing.T) {
	raw := "Here is the scenario you asked for:\n```json\n{\"a\": 1}\n```\nLet me know if you need changes."
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if string(got) != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"b\": [1, 2]}\n```"
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if string(got) != `{"b": [1, 2]}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONWholeText(t *testing.T) {
	raw := "  {\"name\": \"lab\", \"n\": 3}\n"
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if !json.Valid(got) {
		t.Fatalf("result is not valid JSON: %q", got)
	}
}

func TestExtractJSONBalancedSpan(t *testing.T) {
	raw := `Sure! The document is {"name": "x", "note": "braces { } in strings"} and that's all.`
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["note"] != "braces { } in strings" {
		t.Errorf("note = %q", m["note"])
	}
}

func TestExtractJSONEscapedQuotesInStrings(t *testing.T) {
	raw := `prefix {"k": "she said \"hi\" {"} suffix`
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestExtractJSONBrokenFenceFallsThrough(t *testing.T) {
	// The fenced block is truncated JSON; the balanced-span scan must not
	// rescue it, and the whole text is not JSON either.
	raw := "```json\n{\"a\": \n```"
	_, err := ExtractJSON(raw)
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("want *ExtractionError, got %v", err)
	}
	if extractErr.RawText != raw {
		t.Errorf("RawText not preserved")
	}
}

func TestExtractJSONNoPayload(t *testing.T) {
	_, err := ExtractJSON("I am sorry, I cannot produce that scenario.")
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("want *ExtractionError, got %v", err)
	}
}

func TestExtractJSONPrefersFirstValidFence(t *testing.T) {
	raw := "```\nnot json\n```\nand then\n```json\n{\"second\": true}\n```"
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if string(got) != `{"second": true}` {
		t.Errorf("got %q", got)
	}
}
