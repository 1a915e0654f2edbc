package extract

import (
	"sort"
	"strings"
	"unicode"
)

// Demonyms seen in real traffic, mapped to the canonical nationality label
// stored on contacts and leads.
var demonyms = map[string]string{
	"indian": "Indian", "pakistani": "Pakistani", "bangladeshi": "Bangladeshi",
	"filipino": "Filipino", "filipina": "Filipino", "sri lankan": "Sri Lankan",
	"nepali": "Nepali", "nepalese": "Nepali", "afghan": "Afghan",
	"egyptian": "Egyptian", "sudanese": "Sudanese", "moroccan": "Moroccan",
	"algerian": "Algerian", "tunisian": "Tunisian", "ethiopian": "Ethiopian",
	"nigerian": "Nigerian", "kenyan": "Kenyan", "ghanaian": "Ghanaian",
	"ugandan": "Ugandan", "south african": "South African",
	"emirati": "Emirati", "saudi": "Saudi", "omani": "Omani",
	"kuwaiti": "Kuwaiti", "bahraini": "Bahraini", "qatari": "Qatari",
	"yemeni": "Yemeni", "jordanian": "Jordanian", "palestinian": "Palestinian",
	"lebanese": "Lebanese", "syrian": "Syrian", "iraqi": "Iraqi",
	"iranian": "Iranian", "turkish": "Turkish",
	"british": "British", "american": "American", "canadian": "Canadian",
	"australian": "Australian", "french": "French", "german": "German",
	"italian": "Italian", "spanish": "Spanish", "russian": "Russian",
	"ukrainian": "Ukrainian", "chinese": "Chinese", "japanese": "Japanese",
	"korean": "Korean", "indonesian": "Indonesian", "malaysian": "Malaysian",
	"vietnamese": "Vietnamese", "thai": "Thai", "brazilian": "Brazilian",
	"mexican": "Mexican",
}

// Country names for the "from X" form.
var countries = map[string]string{
	"india": "Indian", "pakistan": "Pakistani", "bangladesh": "Bangladeshi",
	"philippines": "Filipino", "sri lanka": "Sri Lankan", "nepal": "Nepali",
	"afghanistan": "Afghan", "egypt": "Egyptian", "sudan": "Sudanese",
	"morocco": "Moroccan", "algeria": "Algerian", "tunisia": "Tunisian",
	"ethiopia": "Ethiopian", "nigeria": "Nigerian", "kenya": "Kenyan",
	"ghana": "Ghanaian", "uganda": "Ugandan", "south africa": "South African",
	"saudi arabia": "Saudi", "oman": "Omani", "kuwait": "Kuwaiti",
	"bahrain": "Bahraini", "qatar": "Qatari", "yemen": "Yemeni",
	"jordan": "Jordanian", "palestine": "Palestinian", "lebanon": "Lebanese",
	"syria": "Syrian", "iraq": "Iraqi", "iran": "Iranian", "turkey": "Turkish",
	"uk": "British", "united kingdom": "British", "britain": "British",
	"usa": "American", "united states": "American", "america": "American",
	"canada": "Canadian", "australia": "Australian", "france": "French",
	"germany": "German", "italy": "Italian", "spain": "Spanish",
	"russia": "Russian", "ukraine": "Ukrainian", "china": "Chinese",
	"japan": "Japanese", "south korea": "Korean", "indonesia": "Indonesian",
	"malaysia": "Malaysian", "vietnam": "Vietnamese", "thailand": "Thai",
	"brazil": "Brazilian", "mexico": "Mexican",
}

var demonymsByLength = sortKeysByLength(demonyms)
var countriesByLength = sortKeysByLength(countries)

func sortKeysByLength(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// DetectNationality finds a demonym anywhere in the message, or a country
// after "from". Longer phrases win so "south african" is not read as two
// words. Returns "" when nothing matched.
func DetectNationality(text string) string {
	lower := strings.ToLower(text)

	for _, demonym := range demonymsByLength {
		if containsPhrase(lower, demonym) {
			return demonyms[demonym]
		}
	}
	for _, country := range countriesByLength {
		if containsPhrase(lower, "from "+country) || containsPhrase(lower, "from the "+country) {
			return countries[country]
		}
	}
	return ""
}

// containsPhrase is a word-boundary substring check, so "thai" never
// matches inside "thailand".
func containsPhrase(text, phrase string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		beforeOK := i == 0 || !isWordRune(rune(text[i-1]))
		afterOK := end >= len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
