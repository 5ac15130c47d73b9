package search

import (
	"math"
	"testing"
)

func catalog() []Document {
	return []Document{
		{ID: "bench", Name: "Bench Press", Description: "Barbell press", Muscles: []string{"chest", "triceps"}},
		{ID: "incline", Name: "Incline Bench Press", Description: "Press on an inclined bench", Muscles: []string{"chest", "front delts"}},
		{ID: "squat", Name: "Back Squat", Description: "Barbell squat", Muscles: []string{"quads", "glutes"}},
		{ID: "rdl", Name: "Romanian Deadlift", Description: "Hip hinge for the hamstrings", Muscles: []string{"hamstrings", "glutes"}},
		{ID: "empty", Name: "  ...  "},
	}
}

func TestOptions(t *testing.T) {
	var cfg config
	WithStopwords([]string{"  The ", "", "Ån"})(&cfg)
	for _, w := range []string{"the", "an"} {
		if _, ok := cfg.stopwords[w]; !ok {
			t.Fatalf("stopword %q missing: %v", w, cfg.stopwords)
		}
	}
	var empty config
	WithStopwords(nil)(&empty)
	if empty.stopwords != nil {
		t.Fatalf("empty stopword list should leave the set nil")
	}
	WithMaxDocs(2)(&cfg)
	WithMaxDocs(-1)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("maxDocs = %d; want 2", cfg.maxDocs)
	}
}

func TestTopK_FieldWeights(t *testing.T) {
	idx := NewIndex(catalog(), WithStopwords(DefaultStopwords))

	cases := []struct {
		query string
		ids   []string
		top   float64
	}{
		// Equal name matches: the shorter name wins the tie.
		{"bench press", []string{"bench", "incline"}, weightName},
		{"ben", []string{"bench", "incline"}, weightNamePrefix},
		// Same score and name length: lower id first.
		{"glutes", []string{"rdl", "squat"}, weightMuscle},
		// A muscle hit outranks the same word in the description.
		{"hamstrings", []string{"rdl"}, weightMuscle},
		{"barbell", []string{"bench", "squat"}, weightDescription},
		{"squat glutes", []string{"squat", "rdl"}, (weightName + weightMuscle) / 2},
	}
	for _, tc := range cases {
		got := idx.TopK(tc.query, 0)
		if len(got) != len(tc.ids) {
			t.Fatalf("%q: got %#v", tc.query, got)
		}
		for j, id := range tc.ids {
			if got[j].ID != id {
				t.Fatalf("%q: position %d = %s; want %s (%#v)", tc.query, j, got[j].ID, id, got)
			}
		}
		if math.Abs(got[0].Score-tc.top) > 1e-9 {
			t.Fatalf("%q: top score = %v; want %v", tc.query, got[0].Score, tc.top)
		}
	}
}

func TestTopK_ShortPrefixIgnored(t *testing.T) {
	idx := NewIndex(catalog())
	if got := idx.TopK("be", 5); got != nil {
		t.Fatalf("two-rune prefix matched: %#v", got)
	}
}

func TestTopK_DiacriticsAndDuplicates(t *testing.T) {
	idx := NewIndex([]Document{{ID: "dev", Name: "Développé Couché"}})
	got := idx.TopK("developpe developpe", 1)
	if len(got) != 1 || got[0].Score != weightName {
		t.Fatalf("got %#v", got)
	}
}

func TestTopK_EmptyInputs(t *testing.T) {
	idx := NewIndex(catalog(), WithStopwords(DefaultStopwords))
	for _, q := range []string{"", "   ", "!!!", "snatch", "the and of"} {
		if got := idx.TopK(q, 3); got != nil {
			t.Fatalf("query %q: want nil, got %#v", q, got)
		}
	}
	if got := NewIndex(nil).TopK("bench", 3); got != nil {
		t.Fatalf("empty index should return nil")
	}
}

func TestTopK_LimitsAndMaxDocs(t *testing.T) {
	if got := NewIndex(catalog()).TopK("chest", 1); len(got) != 1 || got[0].ID != "bench" {
		t.Fatalf("k not applied: %#v", got)
	}
	idx := NewIndex(catalog(), WithMaxDocs(1))
	if got := idx.TopK("squat", 3); got != nil {
		t.Fatalf("squat is beyond maxDocs, got %#v", got)
	}
}

func TestTopK_TiesAreDeterministic(t *testing.T) {
	docs := []Document{{ID: "b", Name: "Row"}, {ID: "a", Name: "Row"}}
	for i := 0; i < 5; i++ {
		got := NewIndex(docs).TopK("row", 2)
		if got[0].ID != "a" || got[1].ID != "b" {
			t.Fatalf("tie order unstable: %#v", got)
		}
	}
}
