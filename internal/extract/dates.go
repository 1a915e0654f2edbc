package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
)

// ExpiryDate is a document expiry mentioned with a complete calendar date.
type ExpiryDate struct {
	DocumentType string // tracked document type, "" when the sentence names none
	Date         time.Time
	Verbatim     string
}

// ExpiryHint is an expiry-flavored sentence that carries no complete
// calendar date. It is never stored as a date; it becomes a staff task to
// confirm the real one.
type ExpiryHint struct {
	DocumentType string
	Text         string
}

const maxHintLen = 200

// Date patterns. Numeric dates are day-first, which is how people here
// write them. Partial dates ("Feb 2026"), relative phrases ("next month"),
// and impossible dates are not dates and never match or survive validation.
var (
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})([./-])(\d{1,2})([./-])(\d{2,4})\b`)
	isoDateRe     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dayMonthRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+(\d{2,4})\b`)
	monthDayRe    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{2,4})\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var expiryKeywords = []string{
	"expire", "expiry", "expiration", "renew", "valid until", "valid till", "validity",
}

// Document keywords checked in order; the first match wins, so the
// multi-word forms come before the generic ones.
var documentPatterns = []struct {
	re  *regexp.Regexp
	doc string
}{
	{regexp.MustCompile(`(?i)\bemirates\s+ids?\b`), domain.DocumentEmiratesID},
	{regexp.MustCompile(`(?i)\beids?\b`), domain.DocumentEmiratesID},
	{regexp.MustCompile(`(?i)\btrade\s+licen[cs]es?\b`), domain.DocumentTradeLicense},
	{regexp.MustCompile(`(?i)\blabou?r\s+cards?\b`), domain.DocumentLabourCard},
	{regexp.MustCompile(`(?i)\bwork\s+permits?\b`), domain.DocumentLabourCard},
	{regexp.MustCompile(`(?i)\bpassports?\b`), domain.DocumentPassport},
	{regexp.MustCompile(`(?i)\blicen[cs]es?\b`), domain.DocumentTradeLicense},
	{regexp.MustCompile(`(?i)\bvisas?\b`), domain.DocumentResidenceVisa},
}

// Sentence boundaries: punctuation followed by whitespace or end of text,
// or a newline. The dots inside "10.02.2026" are followed by digits and do
// not split.
var sentenceBoundaryRe = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)

// FindExpiry scans every expiry-flavored sentence. Sentences with at least
// one complete calendar date yield ExpiryDates; sentences with none yield a
// single ExpiryHint each.
func FindExpiry(text string) ([]ExpiryDate, []ExpiryHint) {
	var dates []ExpiryDate
	var hints []ExpiryHint

	for _, sentence := range splitSentences(text) {
		if !mentionsExpiry(sentence) {
			continue
		}
		doc := detectDocument(sentence)
		matches := parseDatesIn(sentence)
		if len(matches) == 0 {
			hints = append(hints, ExpiryHint{DocumentType: doc, Text: truncate(strings.TrimSpace(sentence), maxHintLen)})
			continue
		}
		for _, m := range matches {
			dates = append(dates, ExpiryDate{DocumentType: doc, Date: m.date, Verbatim: m.verbatim})
		}
	}
	return dates, hints
}

func splitSentences(text string) []string {
	parts := sentenceBoundaryRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func mentionsExpiry(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, kw := range expiryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func detectDocument(sentence string) string {
	for _, p := range documentPatterns {
		if p.re.MatchString(sentence) {
			return p.doc
		}
	}
	return ""
}

type dateMatch struct {
	date     time.Time
	verbatim string
	start    int
	end      int
}

// parseDatesIn collects every complete calendar date in the text. Patterns
// are tried from most to least specific and overlapping spans keep the
// first match.
func parseDatesIn(text string) []dateMatch {
	var found []dateMatch

	add := func(m dateMatch) {
		for _, f := range found {
			if m.start < f.end && f.start < m.end {
				return
			}
		}
		found = append(found, m)
	}

	for _, idx := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[idx[2]:idx[3]])
		month, _ := strconv.Atoi(text[idx[4]:idx[5]])
		day, _ := strconv.Atoi(text[idx[6]:idx[7]])
		if d, ok := buildDate(year, month, day); ok {
			add(dateMatch{date: d, verbatim: text[idx[0]:idx[1]], start: idx[0], end: idx[1]})
		}
	}

	for _, idx := range numericDateRe.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[idx[2]:idx[3]])
		sep1 := text[idx[4]:idx[5]]
		month, _ := strconv.Atoi(text[idx[6]:idx[7]])
		sep2 := text[idx[8]:idx[9]]
		yearText := text[idx[10]:idx[11]]
		if sep1 != sep2 {
			continue
		}
		year, ok := expandYear(yearText)
		if !ok {
			continue
		}
		if d, ok := buildDate(year, month, day); ok {
			add(dateMatch{date: d, verbatim: text[idx[0]:idx[1]], start: idx[0], end: idx[1]})
		}
	}

	for _, idx := range dayMonthRe.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[idx[2]:idx[3]])
		month := monthsByPrefix[strings.ToLower(text[idx[4]:idx[5]])]
		year, ok := expandYear(text[idx[6]:idx[7]])
		if !ok {
			continue
		}
		if d, ok := buildDate(year, int(month), day); ok {
			add(dateMatch{date: d, verbatim: text[idx[0]:idx[1]], start: idx[0], end: idx[1]})
		}
	}

	for _, idx := range monthDayRe.FindAllStringSubmatchIndex(text, -1) {
		month := monthsByPrefix[strings.ToLower(text[idx[2]:idx[3]])]
		day, _ := strconv.Atoi(text[idx[4]:idx[5]])
		year, ok := expandYear(text[idx[6]:idx[7]])
		if !ok {
			continue
		}
		if d, ok := buildDate(year, int(month), day); ok {
			add(dateMatch{date: d, verbatim: text[idx[0]:idx[1]], start: idx[0], end: idx[1]})
		}
	}

	return found
}

// expandYear resolves two-digit years with a fixed pivot: 00-49 land in the
// 2000s, 50-99 in the 1900s. Three-digit years are garbage and rejected.
func expandYear(s string) (int, bool) {
	switch len(s) {
	case 2:
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		if n <= 49 {
			return 2000 + n, true
		}
		return 1900 + n, true
	case 4:
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// buildDate validates that the components form a real calendar day. Go
// normalizes out-of-range components (Feb 30 becomes Mar 2), so the result
// must round-trip exactly.
func buildDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
