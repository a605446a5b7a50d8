package driver

import "time"

// SetPollPacing overrides the readiness poll pacing so tests can exercise
// the bounded wait loops without real-time delays.
func SetPollPacing(interval time.Duration, attempts uint64) func() {
	prevInterval, prevAttempts := pollInterval, pollAttempts
	pollInterval, pollAttempts = interval, attempts
	return func() {
		pollInterval, pollAttempts = prevInterval, prevAttempts
	}
}
