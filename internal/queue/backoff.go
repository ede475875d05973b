package queue

import "time"

// backoffLadder holds the retry delays: 30s, 2min, 10min, 1hr, 6hr.
var backoffLadder = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	time.Hour,
	6 * time.Hour,
}

// DelayForAttempt maps an attempt count to its retry delay. Attempts past
// the end of the ladder keep the maximum delay.
func DelayForAttempt(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	if attempts >= len(backoffLadder) {
		return backoffLadder[len(backoffLadder)-1]
	}

	return backoffLadder[attempts]
}
