package replies

import (
	"regexp"
	"strings"
)

// Denylisted phrases: absolute promises, approval-rate claims, government
// fee waivers and privileged-access claims. The customer never sees these
// regardless of which flow or objective produced the text.
var denylist = []string{
	"guarantee",
	"100% approval",
	"100% success",
	"always approved",
	"cannot be rejected",
	"no government fee",
	"government fee waived",
	"government fees waived",
	"waive the government fee",
	"skip the government fee",
	"free government fee",
	"we know someone",
	"know people at",
	"inside contact",
	"internal contact",
	"our contact at",
	"our man at",
	"connections at",
	"special relationship with",
	"pull strings",
	"fast-track through our contacts",
}

// Sentences end at . ! or ?; a newline is always a boundary.
var replySentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]*`)

// FilterReply drops every sentence that contains a denylisted phrase and
// returns what is left. The match is a plain case-insensitive substring, so
// negated uses ("we cannot guarantee") go with it; the model is instructed
// to not reach for these words at all. An empty result means nothing
// survived and the reply must not be sent.
func FilterReply(text string) string {
	if text == "" {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		var kept []string
		for _, sentence := range replySentenceRe.FindAllString(line, -1) {
			if containsDenylisted(sentence) {
				continue
			}
			if s := strings.TrimSpace(sentence); s != "" {
				kept = append(kept, s)
			}
		}
		if len(kept) > 0 {
			lines = append(lines, strings.Join(kept, " "))
		}
	}
	return strings.Join(lines, "\n")
}

func containsDenylisted(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, phrase := range denylist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
