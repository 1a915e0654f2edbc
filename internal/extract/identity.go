package extract

import (
	"regexp"
	"strings"
)

// Name introductions. The prefixes tolerate any case but the captured words
// must be capitalized, which keeps "i am interested" from becoming a name.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[Mm]y name is\s+([A-Z][a-zA-Z'.-]*(?:\s+[A-Z][a-zA-Z'.-]*){0,3})`),
	regexp.MustCompile(`\b[Tt]his is\s+([A-Z][a-zA-Z'.-]*(?:\s+[A-Z][a-zA-Z'.-]*){0,3})`),
	regexp.MustCompile(`\b[Ii] am\s+([A-Z][a-zA-Z'.-]*(?:\s+[A-Z][a-zA-Z'.-]*){0,3})`),
	regexp.MustCompile(`\b[Ii]'m\s+([A-Z][a-zA-Z'.-]*(?:\s+[A-Z][a-zA-Z'.-]*){0,3})`),
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var passportRe = regexp.MustCompile(`(?i)\bpassport\s*(?:no|number|num|#)?\.?\s*:?\s*([A-Za-z]{1,2}\s?\d{6,9})\b`)

// DetectFullName finds a self-introduction. Demonyms and service words are
// rejected so "I am Indian" and "I am Golden Visa eligible" yield nothing.
func DetectFullName(text string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if looksLikeName(candidate) {
			return candidate
		}
	}
	return ""
}

var nonNameWords = map[string]bool{
	"visa": true, "golden": true, "emirates": true, "id": true,
	"interested": true, "looking": true, "eligible": true, "here": true,
}

func looksLikeName(candidate string) bool {
	words := strings.Fields(strings.ToLower(candidate))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		w = strings.Trim(w, ".'-")
		if nonNameWords[w] {
			return false
		}
		if _, isDemonym := demonyms[w]; isDemonym {
			return false
		}
		if _, isCountry := countries[w]; isCountry {
			return false
		}
	}
	return true
}

// DetectEmail returns the first email address in the message.
func DetectEmail(text string) string {
	return emailRe.FindString(text)
}

// DetectPassportNumber finds a passport number announced next to the word
// "passport". The value is normalized to upper case with no spaces.
func DetectPassportNumber(text string) string {
	m := passportRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))
}
