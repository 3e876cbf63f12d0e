package cue

import (
	"slices"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \n\t ", nil},
		{"punctuation only", "?!...", nil},
		{"case folding", "Hey EVERYBODY", []string{"hey", "everybody"}},
		{"punctuation to spaces", "how's it going, folks?", []string{"how", "s", "it", "going", "folks"}},
		{"diacritics folded", "café touché naïve", []string{"cafe", "touche", "naive"}},
		{"digits kept", "top 5 reasons", []string{"top", "5", "reasons"}},
		{"collapsed runs", "well --- anyway", []string{"well", "anyway"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Normalize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Hey! How's it going, São Paulo?!",
		"I—I mean... REALLY?",
		"crème brûlée at 3 a.m.",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(strings.Join(once, " "))
		if !slices.Equal(once, twice) {
			t.Errorf("Normalize not idempotent for %q: %v vs %v", in, once, twice)
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	t.Parallel()

	in := "Łódź ÅNGSTRÖM señor"
	a := Normalize(in)
	b := Normalize(in)
	if !slices.Equal(a, b) {
		t.Errorf("Normalize not deterministic: %v vs %v", a, b)
	}
}
