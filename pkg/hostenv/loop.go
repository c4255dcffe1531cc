package hostenv

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Loop is the host timer/frame-loop primitive the sync engine depends
// on: a one-shot delayed callback, a monotonic clock, and a per-frame
// tick subscription. The debounce bucket's 1-second timer and the
// discovery completion predicate's quiet-period/max-time checks are both
// expressed against this interface so a game host can drive them from
// its own render loop instead of a goroutine ticker.
type Loop interface {
	// NewTimer schedules cb to run once after delay. Cancel stops it if
	// it has not already fired; calling Cancel after it fired is a no-op.
	NewTimer(delay time.Duration, cb func()) (cancel func())
	// Now returns the loop's current monotonic time.
	Now() time.Time
	// OnFrameTick registers cb to run on every frame/tick of the loop.
	// The returned unsubscribe function stops future calls.
	OnFrameTick(cb func()) (unsubscribe func())
}

// realtimeLoop drives Loop off a real clock.Clock (benbjohnson/clock),
// the way a standalone node or the CLI runs without a host render loop:
// frame ticks are simulated at a fixed interval instead of being driven
// by a game engine.
type realtimeLoop struct {
	clk          clock.Clock
	tickInterval time.Duration
}

// defaultTickInterval is used when NewRealtimeLoop is given a
// non-positive tickInterval; a ticker cannot run at all otherwise.
const defaultTickInterval = 250 * time.Millisecond

// NewRealtimeLoop builds a Loop backed by the real wall clock, with
// OnFrameTick subscribers driven by a ticker at tickInterval. Passing a
// fake clock.Clock (clock.NewMock) from a test gives deterministic
// control over timer firing without a real sleep.
func NewRealtimeLoop(clk clock.Clock, tickInterval time.Duration) Loop {
	if clk == nil {
		clk = clock.New()
	}
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &realtimeLoop{clk: clk, tickInterval: tickInterval}
}

func (l *realtimeLoop) NewTimer(delay time.Duration, cb func()) func() {
	t := l.clk.AfterFunc(delay, cb)
	return func() { t.Stop() }
}

func (l *realtimeLoop) Now() time.Time {
	return l.clk.Now()
}

func (l *realtimeLoop) OnFrameTick(cb func()) func() {
	ticker := l.clk.Ticker(l.tickInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				cb()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
