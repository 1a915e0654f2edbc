package outbound

import "time"

// maxBackoffShift keeps the exponent sane if attempts ever runs away.
const maxBackoffShift = 10

// RetryDelay is how long a job waits before becoming claimable again after
// a transient failure: 2^attempts seconds.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffShift {
		attempts = maxBackoffShift
	}
	return time.Duration(1<<uint(attempts)) * time.Second
}
