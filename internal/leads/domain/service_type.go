package domain

// Service types handled by the business. ServiceTypeGeneral is the catch-all
// used when classification finds nothing more specific; it may later be
// upgraded to a concrete type but never downgraded back to general.
const (
	ServiceTypeGoldenVisa    = "golden_visa"
	ServiceTypeResidenceVisa = "residence_visa"
	ServiceTypeVisitVisa     = "visit_visa"
	ServiceTypeEmiratesID    = "emirates_id"
	ServiceTypeTradeLicense  = "trade_license"
	ServiceTypeLabourCard    = "labour_card"
	ServiceTypeAttestation   = "attestation"
	ServiceTypeBusinessSetup = "business_setup"
	ServiceTypeTranslation   = "translation"
	ServiceTypeGeneral       = "general"
)

var knownServiceTypes = map[string]bool{
	ServiceTypeGoldenVisa:    true,
	ServiceTypeResidenceVisa: true,
	ServiceTypeVisitVisa:     true,
	ServiceTypeEmiratesID:    true,
	ServiceTypeTradeLicense:  true,
	ServiceTypeLabourCard:    true,
	ServiceTypeAttestation:   true,
	ServiceTypeBusinessSetup: true,
	ServiceTypeTranslation:   true,
	ServiceTypeGeneral:       true,
}

// IsKnownServiceType reports whether the value is one of the defined service types.
func IsKnownServiceType(s string) bool {
	return knownServiceTypes[s]
}

// Renewable document types tracked for expiry reminders.
const (
	DocumentPassport      = "passport"
	DocumentResidenceVisa = "residence_visa"
	DocumentEmiratesID    = "emirates_id"
	DocumentTradeLicense  = "trade_license"
	DocumentLabourCard    = "labour_card"
)

var knownDocumentTypes = map[string]bool{
	DocumentPassport:      true,
	DocumentResidenceVisa: true,
	DocumentEmiratesID:    true,
	DocumentTradeLicense:  true,
	DocumentLabourCard:    true,
}

// IsKnownDocumentType reports whether the value is a tracked document type.
func IsKnownDocumentType(d string) bool {
	return knownDocumentTypes[d]
}

// DocumentForServiceType maps a lead's service to the document it renews,
// used to label an expiry mention that names no document itself. Services
// with no renewable document map to "".
func DocumentForServiceType(serviceType string) string {
	switch serviceType {
	case ServiceTypeResidenceVisa, ServiceTypeGoldenVisa, ServiceTypeVisitVisa:
		return DocumentResidenceVisa
	case ServiceTypeEmiratesID:
		return DocumentEmiratesID
	case ServiceTypeTradeLicense, ServiceTypeBusinessSetup:
		return DocumentTradeLicense
	case ServiceTypeLabourCard:
		return DocumentLabourCard
	default:
		return ""
	}
}

// ServiceTypeForDocument maps an expiring document to the service that
// renews it, used when a renewal reminder needs to open a lead.
func ServiceTypeForDocument(doc string) string {
	switch doc {
	case DocumentResidenceVisa:
		return ServiceTypeResidenceVisa
	case DocumentEmiratesID:
		return ServiceTypeEmiratesID
	case DocumentTradeLicense:
		return ServiceTypeTradeLicense
	case DocumentLabourCard:
		return ServiceTypeLabourCard
	case DocumentPassport:
		return ServiceTypeGeneral
	default:
		return ServiceTypeGeneral
	}
}
