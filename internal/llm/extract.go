package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON recovers a JSON document from arbitrary generated text.
//
// Models are instructed to answer with pure JSON but frequently wrap it in
// commentary or code fences, so attempts run in this order:
//  1. the first fenced code block whose body parses as JSON
//  2. the entire text
//  3. the first balanced {...} span, tracking brace depth and ignoring
//     braces inside string literals
//
// If none succeed the result is an *ExtractionError carrying the raw text.
func ExtractJSON(raw string) (json.RawMessage, error) {
	for _, body := range fencedBlocks(raw) {
		if json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if span := balancedObject(raw); span != "" && json.Valid([]byte(span)) {
		return json.RawMessage(span), nil
	}

	return nil, &ExtractionError{RawText: raw}
}

// fencedBlocks returns the bodies of all ``` fenced blocks in order. An
// optional language tag after the opening fence is skipped.
func fencedBlocks(s string) []string {
	var blocks []string
	for {
		open := strings.Index(s, "```")
		if open == -1 {
			return blocks
		}
		rest := s[open+3:]

		// Skip the language tag line ("json", "JSON", or nothing).
		bodyStart := 0
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			bodyStart = nl + 1
		}

		closing := strings.Index(rest[bodyStart:], "```")
		if closing == -1 {
			return blocks
		}

		blocks = append(blocks, strings.TrimSpace(rest[bodyStart:bodyStart+closing]))
		s = rest[bodyStart+closing+3:]
	}
}

// balancedObject returns the first balanced top-level {...} span, or "".
// Braces inside string literals (and escaped quotes inside them) do not
// count toward nesting depth.
func balancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
