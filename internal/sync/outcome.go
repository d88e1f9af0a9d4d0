package sync

// Outcome classifies the result of one unit of reconciliation work. Callers
// aggregate outcomes instead of catching broad errors: only OutcomeFailed is
// retryable, everything else is final for this delivery.
type Outcome int

const (
	// OutcomeSynced means a backend write happened.
	OutcomeSynced Outcome = iota
	// OutcomeSkipped means the loop guard suppressed a self-inflicted change.
	OutcomeSkipped
	// OutcomeIgnored means the change is no-op by design (routing says it is
	// not this user's concern). Not an error.
	OutcomeIgnored
	// OutcomeDropped means a domain error: nothing exists to retry against.
	OutcomeDropped
	// OutcomeFailed means a transport error; the change is retried on the
	// next cycle or delivery.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
