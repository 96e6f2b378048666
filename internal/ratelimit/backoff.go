package ratelimit

import (
	"math/rand"
	"time"
)

const maxBackoff = 60 * time.Second

// RetryWait computes how long to wait before retrying after a
// rate-limit rejection: the server's reset delta plus capped
// exponential backoff plus full jitter. The jitter spreads retries so
// that callers that hit the limit near-simultaneously do not retry in
// lockstep.
func RetryWait(attempt int, serverReset time.Duration, rng *rand.Rand) time.Duration {
	if serverReset < 0 {
		serverReset = 0
	}

	backoff := maxBackoff
	if attempt < 6 { // 2^6 > 60, saturated from here on
		backoff = time.Duration(1<<uint(attempt)) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	var jitter time.Duration
	if span := time.Duration(float64(backoff) * 0.3); span > 0 {
		if rng != nil {
			jitter = time.Duration(rng.Int63n(int64(span)))
		} else {
			jitter = time.Duration(rand.Int63n(int64(span)))
		}
	}

	return serverReset + backoff + jitter
}
