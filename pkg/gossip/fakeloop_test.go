package gossip

import (
	"sync"
	"time"
)

// fakeTimer is one scheduled one-shot callback under a fakeLoop.
type fakeTimer struct {
	at        time.Time
	cb        func()
	fired     bool
	cancelled bool
}

// fakeLoop is a deterministic hostenv.Loop: time only advances when the
// test calls Advance, which fires every timer now due and then every
// registered frame-tick callback, in that order. No goroutines, no real
// sleeping.
type fakeLoop struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	ticks  []func()
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{now: time.Unix(1_700_000_000, 0)}
}

func (l *fakeLoop) NewTimer(d time.Duration, cb func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &fakeTimer{at: l.now.Add(d), cb: cb}
	l.timers = append(l.timers, t)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		t.cancelled = true
	}
}

func (l *fakeLoop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

func (l *fakeLoop) OnFrameTick(cb func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks = append(l.ticks, cb)
	return func() {}
}

// Advance moves the fake clock forward by d, fires every timer whose
// deadline is now due, then runs every frame-tick subscriber once.
func (l *fakeLoop) Advance(d time.Duration) {
	l.mu.Lock()
	l.now = l.now.Add(d)
	var due []*fakeTimer
	for _, t := range l.timers {
		if !t.fired && !t.cancelled && !l.now.Before(t.at) {
			t.fired = true
			due = append(due, t)
		}
	}
	ticks := append([]func(){}, l.ticks...)
	l.mu.Unlock()

	for _, t := range due {
		t.cb()
	}
	for _, cb := range ticks {
		cb()
	}
}

type fakeIdentity struct {
	name, peerID string
}

func (f fakeIdentity) PlayerName() string { return f.name }
func (f fakeIdentity) PeerID() string     { return f.peerID }
