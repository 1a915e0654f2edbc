package extract

import (
	"regexp"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
)

// Service keywords checked in order. Specific phrases come before generic
// ones so "golden visa" never classifies as plain residence visa.
var servicePatterns = []struct {
	re      *regexp.Regexp
	service string
}{
	{regexp.MustCompile(`(?i)\bgolden\s+visas?\b`), domain.ServiceTypeGoldenVisa},
	{regexp.MustCompile(`(?i)\b(?:visit|tourist)\s+visas?\b`), domain.ServiceTypeVisitVisa},
	{regexp.MustCompile(`(?i)\bfamily\s+visas?\b`), domain.ServiceTypeResidenceVisa},
	{regexp.MustCompile(`(?i)\b(?:residence|residency|employment)\s+visas?\b`), domain.ServiceTypeResidenceVisa},
	{regexp.MustCompile(`(?i)\bemirates\s+ids?\b`), domain.ServiceTypeEmiratesID},
	{regexp.MustCompile(`(?i)\beid\s+renewal\b`), domain.ServiceTypeEmiratesID},
	{regexp.MustCompile(`(?i)\btrade\s+licen[cs]es?\b`), domain.ServiceTypeTradeLicense},
	{regexp.MustCompile(`(?i)\b(?:business|commercial)\s+licen[cs]es?\b`), domain.ServiceTypeTradeLicense},
	{regexp.MustCompile(`(?i)\blabou?r\s+cards?\b`), domain.ServiceTypeLabourCard},
	{regexp.MustCompile(`(?i)\bwork\s+permits?\b`), domain.ServiceTypeLabourCard},
	{regexp.MustCompile(`(?i)\battest(?:ation|ing|ed)?\b`), domain.ServiceTypeAttestation},
	{regexp.MustCompile(`(?i)\b(?:business|company)\s+(?:setup|formation)\b`), domain.ServiceTypeBusinessSetup},
	{regexp.MustCompile(`(?i)\b(?:mainland|free\s?zone)\s+(?:company|licen[cs]es?|setup)\b`), domain.ServiceTypeBusinessSetup},
	{regexp.MustCompile(`(?i)\b(?:legal\s+)?translat(?:ion|e|ing)\b`), domain.ServiceTypeTranslation},
	{regexp.MustCompile(`(?i)\blicen[cs]e\s+renewal\b`), domain.ServiceTypeTradeLicense},
	{regexp.MustCompile(`(?i)\bvisas?\b`), domain.ServiceTypeResidenceVisa},
}

// DetectServiceType classifies the message into one service type, or ""
// when nothing matched. Callers fall back to the general bucket themselves
// so that "no signal" and "general enquiry" stay distinguishable.
func DetectServiceType(text string) string {
	for _, p := range servicePatterns {
		if p.re.MatchString(text) {
			return p.service
		}
	}
	return ""
}
