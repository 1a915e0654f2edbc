package outbound

// Job statuses. The row in outbound_jobs is the source of truth for where a
// job is; queue ticks only tell workers when to look.
const (
	StatusPending     = "pending"
	StatusGenerating  = "generating"
	StatusReadyToSend = "ready_to_send"
	StatusSent        = "sent"
	StatusFailed      = "failed"
)

// Job kinds.
const (
	KindReply   = "reply"
	KindRenewal = "renewal"
)

// allowedTransitions encodes the job state machine. Sent and failed are
// terminal; generating and ready_to_send fall back to pending on transient
// errors and crash recovery. Pending can fail directly when a job hits a
// terminal condition before any content exists, such as a conversation
// taken over by a human or an exhausted attempt budget.
var allowedTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusGenerating: true,
		StatusFailed:     true,
	},
	StatusGenerating: {
		StatusReadyToSend: true,
		StatusPending:     true,
		StatusFailed:      true,
	},
	StatusReadyToSend: {
		StatusSent:    true,
		StatusPending: true,
		StatusFailed:  true,
	},
	StatusSent:   {},
	StatusFailed: {},
}

// CanTransition reports whether the state machine allows moving a job from
// one status to another. Guarded SQL updates enforce the same rule; this is
// the in-process check for callers that want to fail early.
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// IsTerminal reports whether a job in this status will never run again.
func IsTerminal(status string) bool {
	return status == StatusSent || status == StatusFailed
}

// Failure reasons that are part of the contract, not prose. Staff tooling
// and tests match on these.
const (
	ReasonHumanOwned       = "human_owned"
	ReasonSessionWindow    = "session_window_closed"
	ReasonLockHeld         = "send_lock_held"
	ReasonAttemptsExceeded = "attempts_exhausted"
	ReasonSendRejected     = "send_rejected"
	ReasonSendAmbiguous    = "send_ambiguous"
)
