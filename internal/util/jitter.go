package util

import (
	"math"
	"math/rand/v2"
	"time"
)

// Jitter returns ttl +/- ratio*ttl, uniformly distributed. TTLs of a second or
// more are rounded to whole seconds, shorter ones to milliseconds.
func Jitter(ttl time.Duration, ratio float64) time.Duration {
	return JitterWith(ttl, ratio, rand.Float64)
}

// JitterWith is Jitter with an explicit [0,1) source.
func JitterWith(ttl time.Duration, ratio float64, float func() float64) time.Duration {
	if ttl <= 0 || ratio <= 0 {
		return ttl
	}
	delta := (float()*2 - 1) * float64(ttl) * ratio
	d := float64(ttl) + delta

	unit := float64(time.Millisecond)
	if ttl >= time.Second {
		unit = float64(time.Second)
	}
	out := time.Duration(math.Round(d/unit) * unit)
	if out <= 0 {
		return time.Duration(unit)
	}
	return out
}

// Spread returns d +/- ratio*d without rounding, never negative.
func Spread(d time.Duration, ratio float64) time.Duration {
	if d <= 0 {
		return 0
	}
	out := d + time.Duration((rand.Float64()*2-1)*float64(d)*ratio)
	if out < 0 {
		return 0
	}
	return out
}
