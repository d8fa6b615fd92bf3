package recording

import "time"

// Clock supplies time to the controller so tests can drive it.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }

// elapsedSeconds truncates to whole seconds since start.
func elapsedSeconds(now, start time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
