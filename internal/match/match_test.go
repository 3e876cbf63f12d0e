package match

import (
	"strings"
	"testing"
)

func tokens(s string) []string { return strings.Fields(s) }

func TestScore_Bounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name               string
		transcript, target []string
	}{
		{"both empty", nil, nil},
		{"empty transcript", nil, tokens("hey everybody")},
		{"empty target", tokens("hey everybody"), nil},
		{"disjoint", tokens("completely different words"), tokens("hey everybody tonight")},
		{"identical", tokens("thanks so much goodnight"), tokens("thanks so much goodnight")},
		{"transcript shorter than target", tokens("thanks so"), tokens("thanks so much goodnight")},
		{"target inside longer transcript", tokens("ok ok thanks so much goodnight you were great"), tokens("thanks so much goodnight")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tc.transcript, tc.target)
			if got < 0 || got > 1 {
				t.Errorf("Score = %v, want within [0,1]", got)
			}
		})
	}
}

func TestScore_IdentityIsOne(t *testing.T) {
	t.Parallel()

	target := tokens("my landlord thinks comedy is a hobby")
	if got := Score(target, target); got != 1 {
		t.Errorf("Score(x, x) = %v, want 1", got)
	}
}

func TestScore_EmbeddedTargetIsOne(t *testing.T) {
	t.Parallel()

	target := tokens("thanks so much goodnight")
	transcript := tokens("anyway x a b thanks so much goodnight you were great")
	if got := Score(transcript, target); got != 1 {
		t.Errorf("embedded target scored %v, want 1", got)
	}
}

func TestScore_PositionalNotBagOfWords(t *testing.T) {
	t.Parallel()

	target := tokens("a b c")

	// Shifted but order-preserving: the window starting at index 1 aligns
	// perfectly.
	if got := Score(tokens("x a b c"), target); got != 1 {
		t.Errorf("shifted transcript scored %v, want 1", got)
	}

	// Same words, scrambled order. Every window has at most one index-wise
	// hit, so a bag-of-words similarity of 1.0 must not leak through.
	if got := Score(tokens("c b a"), target); got > 1.0/3.0+1e-9 {
		t.Errorf("scrambled transcript scored %v, want <= 1/3", got)
	}
}

func TestScore_PartialWindow(t *testing.T) {
	t.Parallel()

	target := tokens("thanks so much goodnight")
	// Only the first two words spoken so far: 2 hits out of 4 target words.
	if got := Score(tokens("thanks so"), target); got != 0.5 {
		t.Errorf("Score = %v, want 0.5", got)
	}
}

func TestScore_EmptyInputs(t *testing.T) {
	t.Parallel()

	if got := Score(nil, tokens("a b")); got != 0 {
		t.Errorf("empty transcript scored %v, want 0", got)
	}
	if got := Score(tokens("a b"), nil); got != 0 {
		t.Errorf("empty target scored %v, want 0", got)
	}
}

func TestMatcher_WithWordCompare(t *testing.T) {
	t.Parallel()

	// A comparison that treats words as equal when their first letters match.
	m := New(WithWordCompare(func(a, b string) bool {
		return a != "" && b != "" && a[0] == b[0]
	}))

	got := m.Score(tokens("tanks sow mush goodnite"), tokens("thanks so much goodnight"))
	if got != 1 {
		t.Errorf("lenient compare scored %v, want 1", got)
	}

	// The window semantics stay positional even with a lenient comparison.
	if got := m.Score(tokens("goodnite mush sow tanks"), tokens("thanks so much goodnight")); got == 1 {
		t.Error("scrambled transcript must not score 1 regardless of word comparison")
	}
}

func TestPhoneticCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"night", "night", true},
		{"nite", "night", true},
		{"goodnite", "goodnight", true},
		{"landlord", "comedy", false},
		{"", "night", false},
		{"night", "", false},
	}
	for _, tt := range tests {
		if got := PhoneticCompare(tt.a, tt.b); got != tt.want {
			t.Errorf("PhoneticCompare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
