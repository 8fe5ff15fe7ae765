package domain

import "time"

// SessionRetention is how long a cached access code is trusted before the
// resident has to enter it again.
const SessionRetention = 7 * 24 * time.Hour

// SessionKey is the well-known storage key for the cached credential.
const SessionKey = "parking_session"

// Session caches the shared access code together with the code generation
// it was accepted under.
type Session struct {
	Code      string    `json:"code"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Expired reports whether the session is older than retention at now. A
// session without a timestamp is always expired.
func (s *Session) Expired(now time.Time, retention time.Duration) bool {
	if s == nil || s.Timestamp.IsZero() {
		return true
	}
	return now.Sub(s.Timestamp) > retention
}
