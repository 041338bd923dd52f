package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"rangecraft/internal/index"
)

// fakeSearcher returns canned results regardless of the query.
type fakeSearcher struct {
	results []index.ScoredDocument
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int) ([]index.ScoredDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func scored(content, docType string) index.ScoredDocument {
	return index.ScoredDocument{
		Document: index.Document{
			Content:  content,
			Metadata: map[string]string{"type": docType},
		},
	}
}

func TestGetContextJoinsWithSeparator(t *testing.T) {
	a := NewAssembler(&fakeSearcher{results: []index.ScoredDocument{
		scored("first doc", "scenario"),
		scored("second doc", "knowledge_base"),
	}})

	got, err := a.GetContext(context.Background(), "q", 2, 1000)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	want := "[scenario]\nfirst doc\n\n---\n\n[knowledge_base]\nsecond doc"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGetContextDefaultTag(t *testing.T) {
	a := NewAssembler(&fakeSearcher{results: []index.ScoredDocument{
		{Document: index.Document{Content: "untagged"}},
	}})

	got, err := a.GetContext(context.Background(), "q", 1, 1000)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if !strings.HasPrefix(got, "[document]\n") {
		t.Errorf("got %q", got)
	}
}

func TestGetContextDropsOverflowingDocWhole(t *testing.T) {
	a := NewAssembler(&fakeSearcher{results: []index.ScoredDocument{
		scored("short", "note"),
		scored(strings.Repeat("x", 500), "note"),
		scored("tail", "note"),
	}})

	// Budget fits the first doc but not the second; the second is dropped
	// whole and assembly stops, so the third never appears even though it
	// would fit.
	got, err := a.GetContext(context.Background(), "q", 3, 40)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if got != "[note]\nshort" {
		t.Errorf("got %q", got)
	}
}

func TestGetContextTruncatesTopDoc(t *testing.T) {
	a := NewAssembler(&fakeSearcher{results: []index.ScoredDocument{
		scored(strings.Repeat("y", 500), "note"),
	}})

	got, err := a.GetContext(context.Background(), "q", 1, 50)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if len(got) != 50 {
		t.Errorf("len = %d, want exactly the budget", len(got))
	}
}

func TestGetContextTruncationKeepsValidUTF8(t *testing.T) {
	// A multi-byte rune straddling the budget boundary is dropped whole
	// instead of leaving a dangling continuation byte.
	a := NewAssembler(&fakeSearcher{results: []index.ScoredDocument{
		scored(strings.Repeat("é", 500), "note"),
	}})

	got, err := a.GetContext(context.Background(), "q", 1, 50)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated context is not valid UTF-8: %q", got)
	}
	if len(got) == 0 || len(got) > 50 {
		t.Errorf("len = %d, want within (0, 50]", len(got))
	}
}

func TestGetContextEmptyCases(t *testing.T) {
	empty := NewAssembler(&fakeSearcher{})
	got, err := empty.GetContext(context.Background(), "q", 3, 100)
	if err != nil || got != "" {
		t.Errorf("empty index: got %q, %v", got, err)
	}

	budgetless := NewAssembler(&fakeSearcher{results: []index.ScoredDocument{scored("doc", "note")}})
	got, err = budgetless.GetContext(context.Background(), "q", 3, 0)
	if err != nil || got != "" {
		t.Errorf("zero budget: got %q, %v", got, err)
	}
}

func TestGetContextPropagatesSearchError(t *testing.T) {
	a := NewAssembler(&fakeSearcher{err: errors.New("index broken")})
	if _, err := a.GetContext(context.Background(), "q", 1, 100); err == nil {
		t.Fatal("expected search error to propagate")
	}
}
