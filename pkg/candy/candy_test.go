package candy

import (
	"errors"
	"testing"
)

func TestScoreToCount(t *testing.T) {
	tests := []struct {
		score int
		want  int
	}{
		{20, 2}, {40, 4}, {60, 6}, {80, 8}, {100, 10},
		{0, 1}, {15, 1}, {37, 1}, {-5, 1}, {120, 1}, {21, 1},
	}
	for _, tc := range tests {
		if got := ScoreToCount(tc.score); got != tc.want {
			t.Fatalf("ScoreToCount(%d) = %d, want %d", tc.score, got, tc.want)
		}
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"40", 40, false},
		{" 60 ", 60, false},
		{"80.0", 80, false},
		{"-5", -5, false},
		{"40.5", 0, true},
		{"forty", 0, true},
		{"", 0, true},
		{"NaN", 0, true},
		{"1e300", 0, true},
		{"-1e300", 0, true},
		{"1e2", 100, false},
	}
	for _, tc := range tests {
		got, err := ParseScore(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrNonNumericScore) {
				t.Fatalf("ParseScore(%q): expected ErrNonNumericScore, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseScore(%q) = %d, %v; want %d", tc.raw, got, err, tc.want)
		}
	}
}

func TestCatalogIsTotal(t *testing.T) {
	seenFields := map[string]bool{}
	for _, typ := range All() {
		d := DetailsOf(typ)
		if d.Name == "" || d.BaseScore < 0 || d.DefaultCount != 10 {
			t.Fatalf("unexpected details for %s: %#v", typ, d)
		}
		field := APIFieldName(typ)
		if field == "" || seenFields[field] {
			t.Fatalf("bad or duplicate field name %q for %s", field, typ)
		}
		seenFields[field] = true

		back, ok := TypeForField(field)
		if !ok || back != typ {
			t.Fatalf("TypeForField(%q) = %v, %v", field, back, ok)
		}
	}
	if len(seenFields) != 5 {
		t.Fatalf("expected 5 candy types, got %d", len(seenFields))
	}
}

func TestAPIFieldNames(t *testing.T) {
	want := map[Type]string{
		FiveStar:  "five_star_stock",
		MilkyBar:  "milky_bar_stock",
		DairyMilk: "dairy_milk_stock",
		Eclairs:   "eclairs_stock",
		Ferrero:   "ferro_rocher_stock",
	}
	for typ, field := range want {
		if got := APIFieldName(typ); got != field {
			t.Fatalf("APIFieldName(%s) = %q, want %q", typ, got, field)
		}
	}
}

func TestParseType(t *testing.T) {
	for _, in := range []string{"fivestar", "FIVESTAR", " 5 star "} {
		got, err := ParseType(in)
		if err != nil || got != FiveStar {
			t.Fatalf("ParseType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseType("snickers"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestCountsAreValues(t *testing.T) {
	base := Defaults()
	next, ok := base.Decrement(Eclairs)
	if !ok {
		t.Fatalf("expected decrement to succeed")
	}
	if base.Get(Eclairs) != 10 || next.Get(Eclairs) != 9 {
		t.Fatalf("decrement mutated the receiver: base=%v next=%v", base, next)
	}

	empty := Counts{}
	if _, ok := empty.Decrement(Ferrero); ok {
		t.Fatalf("decrement of empty stock should fail")
	}
	if got := empty.With(Ferrero, -3).Get(Ferrero); got != 0 {
		t.Fatalf("negative counts must clamp to 0, got %d", got)
	}

	diff := base.Diff(next)
	if len(diff) != 1 || diff[0] != Eclairs {
		t.Fatalf("unexpected diff: %v", diff)
	}
	if got := next.Percent(Eclairs); got != 90 {
		t.Fatalf("Percent = %d, want 90", got)
	}
	if got := base.Total(); got != 50 {
		t.Fatalf("Total = %d, want 50", got)
	}
}

func TestEligible(t *testing.T) {
	c := Counts{}.With(MilkyBar, 2).With(Ferrero, 1)
	got := c.Eligible()
	if len(got) != 2 || got[0] != MilkyBar || got[1] != Ferrero {
		t.Fatalf("unexpected eligible types: %v", got)
	}
}
