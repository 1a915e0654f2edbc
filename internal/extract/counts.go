package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var countRe = regexp.MustCompile(`(?i)\b(\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten)\s+(visas?|depend[ae]nts?|applicants?|employees?|staff|workers?|partners?|people|persons?|kids?|child(?:ren)?|family\s+members?)\b`)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// DetectCounts finds "N <unit>" mentions like "2 visas" or "three
// dependents". Units are folded to a canonical plural and the first count
// per unit wins.
func DetectCounts(text string) map[string]int {
	matches := countRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	counts := make(map[string]int, len(matches))
	for _, m := range matches {
		n, ok := parseCount(m[1])
		if !ok || n == 0 {
			continue
		}
		unit := canonicalUnit(m[2])
		if _, exists := counts[unit]; !exists {
			counts[unit] = n
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

func parseCount(s string) (int, bool) {
	lower := strings.ToLower(s)
	if n, ok := numberWords[lower]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func canonicalUnit(unit string) string {
	u := strings.ToLower(unit)
	switch {
	case strings.HasPrefix(u, "visa"):
		return "visas"
	case strings.HasPrefix(u, "depend"):
		return "dependents"
	case strings.HasPrefix(u, "applicant"):
		return "applicants"
	case strings.HasPrefix(u, "employee"), u == "staff", strings.HasPrefix(u, "worker"):
		return "employees"
	case strings.HasPrefix(u, "partner"):
		return "partners"
	case u == "people", strings.HasPrefix(u, "person"):
		return "people"
	case strings.HasPrefix(u, "kid"), strings.HasPrefix(u, "child"):
		return "children"
	case strings.HasPrefix(u, "family"):
		return "family_members"
	default:
		return u
	}
}
