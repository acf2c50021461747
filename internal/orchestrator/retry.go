package orchestrator

import (
	"time"
)

// backoffDelay computes the capped exponential backoff before retry number
// attempt (attempt is the count of attempts already made, so the first
// retry after one failed attempt waits base × 2^0).
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cap > 0 && delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}

// scheduleFunc defers fn by delay. The production implementation is
// time.AfterFunc; tests substitute an immediate or recording variant.
type scheduleFunc func(delay time.Duration, fn func())

func afterFuncSchedule(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}
