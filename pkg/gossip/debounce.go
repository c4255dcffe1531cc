package gossip

import (
	"sync"
	"time"

	"github.com/obsidian-reach/gossipkv/pkg/hostenv"
)

// debounceKey buckets inbound messages by (messageType, peerId).
type debounceKey struct {
	msgType MessageType
	peerID  string
}

// debounceSlot is a one-shot scheduled task stored in the bucket, whose
// handler checks slot occupancy before dispatching so a stale timer
// firing after the bucket was already cleared and reused is harmless.
type debounceSlot struct {
	dispatch func()
	cancel   func()
}

// debouncer collapses duplicate broadcasts that arrive via multiple
// channels, and rate-limits a pathological peer resending the same
// message type: the first message for a bucket starts a 1-second timer
// and is the one that eventually dispatches; everything else arriving
// before the timer fires is silently dropped.
type debouncer struct {
	mu      sync.Mutex
	loop    hostenv.Loop
	delay   time.Duration
	buckets map[debounceKey]*debounceSlot

	onCoalesced func() // metrics hook, may be nil
}

func newDebouncer(loop hostenv.Loop, delay time.Duration, onCoalesced func()) *debouncer {
	return &debouncer{
		loop:        loop,
		delay:       delay,
		buckets:     make(map[debounceKey]*debounceSlot),
		onCoalesced: onCoalesced,
	}
}

// offer presents an inbound message for bucket key. If the bucket is
// already occupied, the message is dropped and offer reports false.
// Otherwise dispatch becomes the bucket's stored event, fired once the
// 1-second timer expires, and offer reports true.
func (d *debouncer) offer(msgType MessageType, peerID string, dispatch func()) bool {
	key := debounceKey{msgType, peerID}

	d.mu.Lock()
	if _, occupied := d.buckets[key]; occupied {
		d.mu.Unlock()
		if d.onCoalesced != nil {
			d.onCoalesced()
		}
		return false
	}
	slot := &debounceSlot{dispatch: dispatch}
	d.buckets[key] = slot
	d.mu.Unlock()

	slot.cancel = d.loop.NewTimer(d.delay, func() { d.fire(key, slot) })
	return true
}

func (d *debouncer) fire(key debounceKey, slot *debounceSlot) {
	d.mu.Lock()
	current, ok := d.buckets[key]
	if ok && current == slot {
		delete(d.buckets, key)
	}
	d.mu.Unlock()

	if !ok || current != slot {
		return
	}
	slot.dispatch()
}
