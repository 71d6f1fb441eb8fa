package search

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func put(t *testing.T, index *Index, docs ...Document) {
	t.Helper()
	for _, doc := range docs {
		if err := index.Put(context.Background(), doc); err != nil {
			t.Fatalf("Put(%s): %v", doc.Name, err)
		}
	}
}

func ids(hits []Hit) []int64 {
	result := make([]int64, 0, len(hits))
	for _, hit := range hits {
		result = append(result, hit.ID)
	}
	return result
}

func Test_Words(t *testing.T) {
	if diff := cmp.Diff([]string{"serde", "json", "v2"}, Words("Serde-JSON_v2")); diff != "" {
		t.Errorf("words mismatch:\n%s", diff)
	}
}

func Test_FullName(t *testing.T) {
	for _, name := range []string{"serde_json", "serde-json", "SerdeJson"} {
		if FullName(name) != "serdejson" {
			t.Errorf("%s: expected serdejson, got %s", name, FullName(name))
		}
	}
}

func Test_Prefixes(t *testing.T) {
	expected := []string{"s", "se", "ser", "j", "js"}
	if diff := cmp.Diff(expected, Prefixes("ser_js")); diff != "" {
		t.Errorf("prefixes mismatch:\n%s", diff)
	}
}

func Test_Suggest_PrefixMatchesNameWords(t *testing.T) {
	index := openTestIndex(t)
	put(t, index,
		Document{ID: 1, Name: "serde"},
		Document{ID: 2, Name: "serde_json"},
		Document{ID: 3, Name: "sled"},
	)

	hits, err := index.Suggest(context.Background(), "ser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2}, ids(hits)); diff != "" {
		t.Errorf("suggestions mismatch:\n%s", diff)
	}
}

func Test_Suggest_SecondWordPrefix(t *testing.T) {
	index := openTestIndex(t)
	put(t, index, Document{ID: 1, Name: "serde"}, Document{ID: 2, Name: "serde_json"})

	hits, err := index.Suggest(context.Background(), "serde_js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int64{2}, ids(hits)); diff != "" {
		t.Errorf("suggestions mismatch:\n%s", diff)
	}
}

func Test_Search_ExactNameRanksFirst(t *testing.T) {
	index := openTestIndex(t)
	put(t, index,
		Document{ID: 1, Name: "json_tools", Description: "helpers around serde json values"},
		Document{ID: 2, Name: "serde_json", Description: "A JSON serialization file format"},
		Document{ID: 3, Name: "toml", Description: "A serde-compatible TOML decoder"},
	)

	hits, err := index.Search(context.Background(), "serde-json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 || hits[0].ID != 2 {
		t.Errorf("expected serde_json first, got %+v", hits)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not ordered by score: %+v", hits)
		}
	}
}

func Test_Search_MatchesKeywordsAndCategories(t *testing.T) {
	index := openTestIndex(t)
	put(t, index,
		Document{ID: 1, Name: "nom", Keywords: []string{"parser", "combinators"}},
		Document{ID: 2, Name: "rand", Categories: []string{"algorithms"}},
	)

	hits, err := index.Search(context.Background(), "combinators")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int64{1}, ids(hits)); diff != "" {
		t.Errorf("hits mismatch:\n%s", diff)
	}
	hits, _ = index.Search(context.Background(), "algorithms")
	if diff := cmp.Diff([]int64{2}, ids(hits)); diff != "" {
		t.Errorf("hits mismatch:\n%s", diff)
	}
}

func Test_Put_ReplacesExistingDocument(t *testing.T) {
	index := openTestIndex(t)
	put(t, index, Document{ID: 1, Name: "hello", Description: "first words"})
	put(t, index, Document{ID: 1, Name: "hello", Description: "second thoughts"})

	hits, _ := index.Search(context.Background(), "first")
	if len(hits) != 0 {
		t.Errorf("expected stale description to be gone, got %+v", hits)
	}
	hits, _ = index.Search(context.Background(), "thoughts")
	if diff := cmp.Diff([]int64{1}, ids(hits)); diff != "" {
		t.Errorf("hits mismatch:\n%s", diff)
	}
	count, err := index.Count(context.Background())
	if err != nil || count != 1 {
		t.Errorf("expected 1 document, got %d (%v)", count, err)
	}
}

func Test_Search_QuotesAreEscaped(t *testing.T) {
	index := openTestIndex(t)
	put(t, index, Document{ID: 1, Name: "hello"})
	if _, err := index.Search(context.Background(), `he"llo OR NOT`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	hits, err := index.Search(context.Background(), "  --  ")
	if err != nil || hits != nil {
		t.Errorf("expected no hits for punctuation, got %+v (%v)", hits, err)
	}
}

func Test_RemoveAndClear(t *testing.T) {
	index := openTestIndex(t)
	put(t, index, Document{ID: 1, Name: "hello"}, Document{ID: 2, Name: "world"})
	if err := index.Remove(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count, _ := index.Count(context.Background()); count != 1 {
		t.Errorf("expected 1 document, got %d", count)
	}
	if err := index.Clear(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count, _ := index.Count(context.Background()); count != 0 {
		t.Errorf("expected empty index, got %d", count)
	}
}
