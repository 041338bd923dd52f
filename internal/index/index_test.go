package index

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// mockEngine returns canned vectors by exact content match and a uniform
// fallback for everything else.
type mockEngine struct {
	dims    int
	vectors map[string][]float32
	failOn  string
}

func (m *mockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.failOn != "" && text == m.failOn {
		return nil, errors.New("embed failed")
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	vec := make([]float32, m.dims)
	vec[0] = 1
	return vec, nil
}

func (m *mockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEngine) Dimensions() int { return m.dims }
func (m *mockEngine) Name() string    { return "mock" }

func newTestIndex(t *testing.T, engine *mockEngine) *Index {
	t.Helper()
	ix, err := Open(":memory:", engine)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestAddAndSearchRanking(t *testing.T) {
	engine := &mockEngine{dims: 3, vectors: map[string][]float32{
		"cats are great":  {1, 0, 0},
		"dogs are loyal":  {0, 1, 0},
		"birds can fly":   {0, 0, 1},
		"tell me of cats": {0.9, 0.1, 0},
	}}
	ix := newTestIndex(t, engine)
	ctx := context.Background()

	for _, content := range []string{"cats are great", "dogs are loyal", "birds can fly"} {
		if _, err := ix.Add(ctx, content, map[string]string{"type": "note"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	results, err := ix.Search(ctx, "tell me of cats", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Document.Content != "cats are great" {
		t.Errorf("top result = %q", results[0].Document.Content)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v, %v", results[0].Score, results[1].Score)
	}
	if results[0].Document.Metadata["type"] != "note" {
		t.Errorf("metadata not restored: %v", results[0].Document.Metadata)
	}
}

func TestSearchTopKValidation(t *testing.T) {
	ix := newTestIndex(t, &mockEngine{dims: 3})
	for _, k := range []int{0, -1} {
		if _, err := ix.Search(context.Background(), "q", k); !errors.Is(err, ErrInvalidTopK) {
			t.Errorf("topK=%d: want ErrInvalidTopK, got %v", k, err)
		}
	}
}

func TestSearchTopKLargerThanCorpus(t *testing.T) {
	ix := newTestIndex(t, &mockEngine{dims: 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := ix.Add(ctx, fmt.Sprintf("doc %d", i), nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	results, err := ix.Search(ctx, "anything", 50)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want the full corpus of 3", len(results))
	}
}

func TestSearchTiesBreakByInsertionOrder(t *testing.T) {
	// All documents embed to the same vector, so every score ties.
	ix := newTestIndex(t, &mockEngine{dims: 3})
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		if _, err := ix.Add(ctx, c, nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	results, err := ix.Search(ctx, "query", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i, want := range contents {
		if results[i].Document.Content != want {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Document.Content, want)
		}
	}

	// Overwriting the first document must not move it to the back.
	id, err := ix.Add(ctx, "first", map[string]string{"v": "2"})
	if err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	results, err = ix.Search(ctx, "query", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].Document.ID != id {
		t.Errorf("overwritten document lost its insertion position")
	}
	if results[0].Document.Metadata["v"] != "2" {
		t.Errorf("overwrite did not update metadata: %v", results[0].Document.Metadata)
	}
}

func TestIdenticalContentOverwrites(t *testing.T) {
	ix := newTestIndex(t, &mockEngine{dims: 3})
	ctx := context.Background()

	id1, err := ix.Add(ctx, "same content", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	id2, err := ix.Add(ctx, "same content", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ for identical content: %s vs %s", id1, id2)
	}

	count, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestAddBatchIsAtomic(t *testing.T) {
	ix := newTestIndex(t, &mockEngine{dims: 3, failOn: "poison"})
	ctx := context.Background()

	_, err := ix.AddBatch(ctx, []Entry{
		{Content: "fine"},
		{Content: "poison"},
		{Content: "also fine"},
	})
	if err == nil {
		t.Fatal("expected batch failure")
	}

	count, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after failed batch, want 0", count)
	}
}

func TestAddBatchStoresAll(t *testing.T) {
	ix := newTestIndex(t, &mockEngine{dims: 3})
	ctx := context.Background()

	ids, err := ix.AddBatch(ctx, []Entry{
		{ID: "a", Content: "alpha"},
		{Content: "beta"},
	})
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" {
		t.Errorf("ids = %v", ids)
	}

	count, _ := ix.Count(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestClearAndStats(t *testing.T) {
	ix := newTestIndex(t, &mockEngine{dims: 3})
	ctx := context.Background()

	if _, err := ix.Add(ctx, "doc", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	stats, err := ix.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Documents != 1 || stats.Engine != "mock" || stats.Dimensions != 3 {
		t.Errorf("stats = %+v", stats)
	}

	if err := ix.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	count, _ := ix.Count(ctx)
	if count != 0 {
		t.Errorf("count = %d after Clear, want 0", count)
	}
}

func TestSearchDimensionMismatchIsError(t *testing.T) {
	engine := &mockEngine{dims: 3, vectors: map[string][]float32{
		"short query": {1, 0}, // wrong dimensionality
	}}
	ix := newTestIndex(t, engine)
	ctx := context.Background()

	if _, err := ix.Add(ctx, "stored doc", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := ix.Search(ctx, "short query", 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75, 0}
	got := decodeVector(encodeVector(vec))
	if len(got) != len(vec) {
		t.Fatalf("length %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: %v != %v", i, got[i], vec[i])
		}
	}
}
