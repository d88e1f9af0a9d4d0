package sync

import "time"

// ShouldSkip reports whether a change is self-inflicted and must be
// suppressed. Every write this system performs stamps the target record with
// a fresh last-synced time; if that stamp is at or after the modification
// being reacted to, the modification was our own prior write and reprocessing
// it would ping-pong forever.
//
// A zero lastModified means the source did not report a modification time
// (webhook events); such changes are never suppressed.
func ShouldSkip(lastSynced *time.Time, lastModified time.Time) bool {
	if lastSynced == nil || lastModified.IsZero() {
		return false
	}
	return !lastSynced.Before(lastModified)
}
