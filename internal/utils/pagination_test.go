package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := map[string]struct {
		in   string
		def  int
		want int
	}{
		"empty":      {"", 20, 20},
		"number":     {"3", 1, 3},
		"negative":   {"-2", 1, -2},
		"padded":     {"007", 1, 7},
		"garbage":    {"two", 1, 1},
		"whitespace": {" 5", 9, 9},
		"overflow":   {"99999999999999999999", 4, 4},
	}
	for name, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("%s: AtoiDefault(%q, %d) = %d; want %d", name, tc.in, tc.def, got, tc.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
		wantOffset         int
	}{
		{1, 20, 1, 20, 0},
		{3, 20, 3, 20, 40},
		{0, 0, 1, 20, 0},     // defaults
		{-4, 500, 1, 100, 0}, // clamped
		{2, 100, 2, 100, 100},
	}
	for _, tc := range cases {
		p, s, off := Paginate(tc.page, tc.size, 20, 100)
		if p != tc.wantPage || s != tc.wantSize || off != tc.wantOffset {
			t.Fatalf("Paginate(%d, %d) = %d, %d, %d; want %d, %d, %d",
				tc.page, tc.size, p, s, off, tc.wantPage, tc.wantSize, tc.wantOffset)
		}
	}
	if _, s, _ := Paginate(1, 500, 20, 0); s != 500 {
		t.Fatalf("max 0 should not cap, got %d", s)
	}
}
