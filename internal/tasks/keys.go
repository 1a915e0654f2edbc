package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Task kinds. Every kind has a deterministic key builder below so retries
// and replays land on the same row.
const (
	KindReply         = "reply"
	KindConfirmExpiry = "confirm_expiry"
	KindEscalation    = "escalation"
	KindTakeover      = "takeover"
	KindRenewal       = "renewal"
	KindJobFailed     = "job_failed"
)

// Task statuses.
const (
	StatusOpen      = "open"
	StatusDone      = "done"
	StatusDismissed = "dismissed"
)

// ReplyKey identifies the obligation to answer one inbound message. Created
// when the message arrives, closed only by a verified send; if the automated
// reply dies somewhere, the open task is what staff see.
func ReplyKey(leadID uuid.UUID, providerMessageID string) string {
	return fmt.Sprintf("reply:%s:%s", leadID, providerMessageID)
}

// ConfirmExpiryKey identifies the "confirm this expiry date" task for one
// hint on one lead. The hint text is hashed so the same vague sentence never
// piles up duplicate tasks while a different one still gets its own.
func ConfirmExpiryKey(leadID uuid.UUID, hintText string) string {
	return fmt.Sprintf("confirm_expiry:%s:%s", leadID, shortHash(hintText))
}

// EscalationKey identifies the human-handoff task a qualifier flow raises
// for a lead. One per lead per flow, ever.
func EscalationKey(leadID uuid.UUID, flow string) string {
	return fmt.Sprintf("escalate:%s:%s", leadID, flow)
}

// TakeoverKey identifies the notice that automation stood down for one
// inbound message because a human owns the conversation. Keyed to the
// message so the human can see exactly what went unanswered.
func TakeoverKey(conversationID uuid.UUID, providerMessageID string) string {
	return fmt.Sprintf("takeover_reply:%s:%s", conversationID, providerMessageID)
}

// RenewalKey identifies the staff-side task for one reminder stage of one
// expiry item. Deliberately date-free: if the sweep runs twice on different
// days the stage still fires once.
func RenewalKey(expiryItemID uuid.UUID, stage string) string {
	return fmt.Sprintf("renewal:%s:%s", expiryItemID, stage)
}

// JobFailedKey identifies the follow-up task for a permanently failed
// outbound job. One per job.
func JobFailedKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job_failed:%s", jobID)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
