package presale

import "time"

// Window is the period during which transfers are accepted.
type Window struct {
	End time.Time
}

// Remaining is the time left until the end, zero once ended.
func (w Window) Remaining(now time.Time) time.Duration {
	if d := w.End.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (w Window) Ended(now time.Time) bool {
	return !now.Before(w.End)
}
