package agent

import "time"

// Millis is a wrapping millisecond counter.
type Millis uint32

// Since returns the time elapsed from earlier to m. Unsigned subtraction
// gives the right answer across a single wrap of the counter.
func (m Millis) Since(earlier Millis) Millis {
	return m - earlier
}

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Clock reads the counter.
type Clock interface {
	Now() Millis
}

// SystemClock counts milliseconds since it was created, on the monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a counter at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the elapsed milliseconds, truncated to 32 bits.
func (c *SystemClock) Now() Millis {
	return Millis(uint32(time.Since(c.start).Milliseconds())) // #nosec G115 -- truncation is the wrap
}

// Interval fires once per period.
type Interval struct {
	period Millis
	last   Millis
}

// NewInterval returns an interval with the given period. Negative periods
// are treated as zero; periods beyond the counter range are clamped.
func NewInterval(period time.Duration) Interval {
	ms := period.Milliseconds()
	switch {
	case ms < 0:
		ms = 0
	case ms > int64(^uint32(0)):
		ms = int64(^uint32(0))
	}
	return Interval{period: Millis(ms)} // #nosec G115 -- clamped above
}

// Reset arms the interval at now.
func (i *Interval) Reset(now Millis) {
	i.last = now
}

// Due reports whether a full period has passed since the last firing and,
// if so, re-arms at now. A zero period is due on every call.
func (i *Interval) Due(now Millis) bool {
	if now.Since(i.last) < i.period {
		return false
	}
	i.last = now
	return true
}

// Period returns the interval's period.
func (i *Interval) Period() time.Duration {
	return i.period.Duration()
}
