// Package extract pulls structured facts out of free-form inbound message
// text: service interest, nationality, headcounts, contact identity, and
// document expiry dates. Everything here is deterministic string work; no
// model calls, no I/O. The messaging pipeline runs it on every inbound
// message and merges the result into the lead.
package extract

// Extraction is the combined result of all extractors over one message.
// Zero values mean "not found"; extractors never guess.
type Extraction struct {
	ServiceType    string
	Nationality    string
	FullName       string
	Email          string
	PassportNumber string
	Counts         map[string]int
	ExpiryDates    []ExpiryDate
	ExpiryHints    []ExpiryHint
}

// FromMessage runs every extractor over the message body.
func FromMessage(text string) Extraction {
	dates, hints := FindExpiry(text)
	return Extraction{
		ServiceType:    DetectServiceType(text),
		Nationality:    DetectNationality(text),
		FullName:       DetectFullName(text),
		Email:          DetectEmail(text),
		PassportNumber: DetectPassportNumber(text),
		Counts:         DetectCounts(text),
		ExpiryDates:    dates,
		ExpiryHints:    hints,
	}
}

// DataPatch shapes the extraction as a lead data fragment for the
// append-only merge. Contact identity and expiry dates are handled through
// their own tables and are deliberately not part of the patch.
func (e Extraction) DataPatch() map[string]any {
	patch := map[string]any{}
	if e.Nationality != "" {
		patch["nationality"] = e.Nationality
	}
	if e.PassportNumber != "" {
		patch["passportNumber"] = e.PassportNumber
	}
	if len(e.Counts) > 0 {
		counts := map[string]any{}
		for unit, n := range e.Counts {
			counts[unit] = n
		}
		patch["counts"] = counts
	}
	return patch
}

// Empty reports whether no extractor found anything.
func (e Extraction) Empty() bool {
	return e.ServiceType == "" && e.Nationality == "" && e.FullName == "" &&
		e.Email == "" && e.PassportNumber == "" && len(e.Counts) == 0 &&
		len(e.ExpiryDates) == 0 && len(e.ExpiryHints) == 0
}
