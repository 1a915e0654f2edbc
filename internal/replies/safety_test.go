package replies

import (
	"strings"
	"testing"
)

func TestFilterReplyDropsAbsolutePromises(t *testing.T) {
	in := "Thanks for reaching out! Your approval is guaranteed. We can start this week."
	out := FilterReply(in)
	if strings.Contains(strings.ToLower(out), "guarantee") {
		t.Fatalf("promise survived the filter: %q", out)
	}
	if !strings.Contains(out, "Thanks for reaching out!") || !strings.Contains(out, "We can start this week.") {
		t.Fatalf("clean sentences did not survive: %q", out)
	}
}

func TestFilterReplyDropsApprovalRateClaims(t *testing.T) {
	out := FilterReply("We have 100% approval rates for investors. Send us your passport copy.")
	if strings.Contains(out, "100%") {
		t.Fatalf("approval claim survived: %q", out)
	}
	if out != "Send us your passport copy." {
		t.Fatalf("expected only the clean sentence, got %q", out)
	}
}

func TestFilterReplyDropsFeeWaiverClaims(t *testing.T) {
	out := FilterReply("Good news: there are no government fees for you! Our service fee is AED 500.")
	if strings.Contains(strings.ToLower(out), "government fee") {
		t.Fatalf("fee waiver claim survived: %q", out)
	}
	if !strings.Contains(out, "AED 500") {
		t.Fatalf("legitimate fee line was lost: %q", out)
	}
}

func TestFilterReplyDropsInsiderClaims(t *testing.T) {
	out := FilterReply("Don't worry, we know someone at immigration. The normal process takes two weeks.")
	if strings.Contains(out, "immigration") {
		t.Fatalf("insider claim survived: %q", out)
	}
	if !strings.Contains(out, "two weeks") {
		t.Fatalf("clean sentence was lost: %q", out)
	}
}

func TestFilterReplyIsCaseInsensitive(t *testing.T) {
	if out := FilterReply("GUARANTEED approval for everyone!"); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestFilterReplyDropsNegatedUsesToo(t *testing.T) {
	// Negation parsing is not attempted; the word itself is off limits.
	out := FilterReply("We cannot guarantee approval. We will prepare the strongest application.")
	if strings.Contains(strings.ToLower(out), "guarantee") {
		t.Fatalf("negated promise survived: %q", out)
	}
	if !strings.Contains(out, "strongest application") {
		t.Fatalf("clean sentence was lost: %q", out)
	}
}

func TestFilterReplyKeepsCleanTextIntact(t *testing.T) {
	in := "Hello Ahmed! Your Emirates ID renewal usually takes 5 working days. Shall I send the document checklist?"
	if out := FilterReply(in); out != in {
		t.Fatalf("clean text was altered:\n in: %q\nout: %q", in, out)
	}
}

func TestFilterReplyPreservesLineStructure(t *testing.T) {
	in := "First line is fine.\nThis line is guaranteed to vanish.\nLast line stays."
	out := FilterReply(in)
	if out != "First line is fine.\nLast line stays." {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFilterReplyEmptyInput(t *testing.T) {
	if out := FilterReply(""); out != "" {
		t.Fatalf("expected empty, got %q", out)
	}
}
