package email

const (
	subjectEscalationAlert = "Lead escalated: human follow-up needed"
	subjectJobFailedFmt    = "Outbound %s message failed"
	subjectExpiryHintAlert = "Document expiry mention needs confirmation"
)
