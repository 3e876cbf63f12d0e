package match

import "testing"

func TestConfirmed_RequiresTwoConsecutiveHits(t *testing.T) {
	t.Parallel()

	c := NewConfirmed(tokens("hey everybody how is it going"), 0.8)

	// First hit: no confirmation yet.
	conf, ok := c.Observe(tokens("hey everybody how is it going"))
	if ok {
		t.Fatal("confirmed after a single observation")
	}
	if conf != 1 {
		t.Errorf("confidence = %v, want 1", conf)
	}

	// Second consecutive hit confirms.
	if _, ok := c.Observe(tokens("hey everybody how is it going tonight")); !ok {
		t.Fatal("not confirmed after two consecutive hits")
	}
}

func TestConfirmed_MissResetsCounter(t *testing.T) {
	t.Parallel()

	c := NewConfirmed(tokens("hey everybody how is it going"), 0.8)

	if _, ok := c.Observe(tokens("hey everybody how is it going")); ok {
		t.Fatal("confirmed too early")
	}
	// A low-confidence observation in between breaks the streak.
	if conf, ok := c.Observe(tokens("something else entirely")); ok || conf >= 0.8 {
		t.Fatalf("miss observation: conf=%v ok=%v", conf, ok)
	}
	if _, ok := c.Observe(tokens("hey everybody how is it going")); ok {
		t.Fatal("confirmed without two consecutive hits")
	}
	if _, ok := c.Observe(tokens("hey everybody how is it going")); !ok {
		t.Fatal("not confirmed after the streak rebuilt")
	}
}

func TestConfirmed_ResetClearsStreak(t *testing.T) {
	t.Parallel()

	c := NewConfirmed(tokens("thanks so much goodnight"), 0.8)

	if _, ok := c.Observe(tokens("thanks so much goodnight")); ok {
		t.Fatal("confirmed too early")
	}
	c.Reset()
	if _, ok := c.Observe(tokens("thanks so much goodnight")); ok {
		t.Fatal("a hit before Reset must not count toward confirmation")
	}
	if _, ok := c.Observe(tokens("thanks so much goodnight")); !ok {
		t.Fatal("not confirmed after two post-Reset hits")
	}
}

func TestConfirmed_TailAlignmentPreferred(t *testing.T) {
	t.Parallel()

	c := NewConfirmed(tokens("thanks so much goodnight"), 0.75)

	// Growing partial transcript: the phrase accumulates at the tail behind
	// unrelated earlier speech.
	transcript := tokens("and that is why I hate airports anyway thanks so much goodnight")
	conf, _ := c.Observe(transcript)
	if conf != 1 {
		t.Errorf("tail-aligned confidence = %v, want 1", conf)
	}
}

func TestConfirmed_ConfirmationConsumesStreak(t *testing.T) {
	t.Parallel()

	c := NewConfirmed(tokens("a b c"), 0.9)

	c.Observe(tokens("a b c"))
	if _, ok := c.Observe(tokens("a b c")); !ok {
		t.Fatal("expected confirmation")
	}
	// Immediately after confirming, one more hit alone must not re-confirm.
	if _, ok := c.Observe(tokens("a b c")); ok {
		t.Fatal("re-confirmed on a single hit after a confirmation")
	}
	if _, ok := c.Observe(tokens("a b c")); !ok {
		t.Fatal("expected second confirmation after a fresh streak")
	}
}
