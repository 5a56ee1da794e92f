package auth

import "time"

// Clock supplies the current instant for every lock and expiry comparison
// in the core, so tests can advance time deterministically.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}
