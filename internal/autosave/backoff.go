package autosave

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff is the delay before retry number attempt of a failed
// flush.
//
// attempt=0 => 2s
// attempt=1 => 4s
// attempt=2 => 8s
func ExponentialBackoff(attempt int) time.Duration {
	base := 2 * time.Second
	capDelay := time.Minute

	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * multiple)

	if delay > capDelay || delay <= 0 {
		delay = capDelay
	}

	// small jitter (0–250ms) so sessions that failed together do not retry together
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
