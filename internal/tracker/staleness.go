package tracker

import "time"

// isValid reports whether obs is younger than the validity window at now.
// Subtraction uses the monotonic readings of both instants.
func (t *Tracker) isValid(obs observation, now time.Time) bool {
	return now.Sub(obs.at) < t.validity
}
