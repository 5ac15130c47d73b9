package search

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Développé Couché": "developpe couche",
		"SQUAT":            "squat",
		"":                 "",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  bench   press ": "Bench Press",
		"RDL":              "RDL",
		"   ":              "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Bench Press":              "bench-press",
		"  Barbell Row (Pendlay)! ": "barbell-row-pendlay",
		"Développé 90°":            "developpe-90",
		"---":                      "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
