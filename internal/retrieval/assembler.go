// Package retrieval assembles bounded context strings for generation prompts
// from document index search results.
package retrieval

import (
	"context"
	"strings"
	"unicode/utf8"

	"rangecraft/internal/index"
	"rangecraft/internal/logging"
)

// Searcher is the slice of the document index the assembler needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]index.ScoredDocument, error)
}

const separator = "\n\n---\n\n"

// Assembler turns a query into a bounded context string.
type Assembler struct {
	searcher Searcher
}

// NewAssembler creates an assembler over the given searcher.
func NewAssembler(s Searcher) *Assembler {
	return &Assembler{searcher: s}
}

// GetContext retrieves up to topK documents and concatenates their contents
// in rank order, each prefixed by a short metadata tag, staying within
// charBudget. A document that would overflow the budget is dropped whole and
// assembly stops there, except the top-ranked document, which is
// hard-truncated to fit. Returns "" when the index is empty or nothing fits.
func (a *Assembler) GetContext(ctx context.Context, query string, topK, charBudget int) (string, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "GetContext")
	defer timer.Stop()

	if charBudget <= 0 {
		return "", nil
	}

	results, err := a.searcher.Search(ctx, query, topK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var parts []string
	total := 0
	for i, res := range results {
		block := tagFor(res.Document.Metadata) + res.Document.Content
		cost := len(block)
		if i > 0 {
			cost += len(separator)
		}

		if total+cost > charBudget {
			if i == 0 {
				// The best match alone overflows; hard-truncate it rather
				// than return nothing.
				parts = append(parts, truncateAtRune(block, charBudget))
			}
			break
		}

		parts = append(parts, block)
		total += cost
	}

	out := strings.Join(parts, separator)
	logging.Get(logging.CategoryRetrieval).Debug("Context for %q: %d docs, %d/%d chars",
		query, len(parts), len(out), charBudget)
	return out, nil
}

// truncateAtRune cuts s to at most n bytes, backing up over a rune that
// straddles the boundary so the result stays valid UTF-8.
func truncateAtRune(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tagFor renders the short metadata prefix for one document.
func tagFor(metadata map[string]string) string {
	t := metadata["type"]
	if t == "" {
		t = "document"
	}
	return "[" + t + "]\n"
}
