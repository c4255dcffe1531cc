package broker

import "sync"

// MemoryHub is the shared switchboard every MemoryBroker in the same
// simulation registers with: brokers are keyed by peer ID and broadcast
// history by channel, so more than one simulated peer can share a
// process. Each hub is an independent value created by NewMemoryHub.
type MemoryHub struct {
	mu      sync.RWMutex
	brokers map[string]*MemoryBroker
	history map[Channel][][]byte
}

func newMemoryHub() *MemoryHub {
	return &MemoryHub{
		brokers: make(map[string]*MemoryBroker),
		history: make(map[Channel][][]byte),
	}
}

// MemoryBroker is an in-process Broker: broadcasts fan out synchronously
// to every other registered broker's receiver, and unicasts look up the
// target by peer ID. It has no network dependency at all, the in-memory
// analogue of a package-level message store with a registerable
// broadcaster, generalized from one global store to one hub per
// simulated cluster.
type MemoryBroker struct {
	hub       *MemoryHub
	peerID    string
	mu        sync.RWMutex
	onBcast   ReceiverFunc
	onUnicast ReceiverFunc
}

// NewMemoryHub creates a fresh, empty hub. Every MemoryBroker sharing a
// hub can see each other's broadcasts and unicasts; brokers built from
// different hubs are isolated.
func NewMemoryHub() *MemoryHub {
	return newMemoryHub()
}

// NewMemoryBroker registers peerID on hub and returns its Broker handle.
func NewMemoryBroker(hub *MemoryHub, peerID string) *MemoryBroker {
	b := &MemoryBroker{hub: hub, peerID: peerID}
	hub.mu.Lock()
	hub.brokers[peerID] = b
	hub.mu.Unlock()
	return b
}

func (b *MemoryBroker) SendBroadcast(channel Channel, data []byte) error {
	b.hub.mu.Lock()
	b.hub.history[channel] = append(b.hub.history[channel], data)
	peers := make([]*MemoryBroker, 0, len(b.hub.brokers))
	for id, other := range b.hub.brokers {
		if id == b.peerID {
			continue
		}
		peers = append(peers, other)
	}
	b.hub.mu.Unlock()

	env := Envelope{FromPeer: b.peerID, Data: data}
	for _, other := range peers {
		other.mu.RLock()
		fn := other.onBcast
		other.mu.RUnlock()
		if fn != nil {
			fn(channel, env)
		}
	}
	return nil
}

func (b *MemoryBroker) SendUnicast(peerID string, data []byte) error {
	b.hub.mu.RLock()
	target, ok := b.hub.brokers[peerID]
	b.hub.mu.RUnlock()
	if !ok {
		return nil
	}
	target.mu.RLock()
	fn := target.onUnicast
	target.mu.RUnlock()
	if fn != nil {
		fn("", Envelope{FromPeer: b.peerID, Data: data})
	}
	return nil
}

func (b *MemoryBroker) RegisterReceiver(fn ReceiverFunc) {
	b.mu.Lock()
	b.onBcast = fn
	b.mu.Unlock()
}

func (b *MemoryBroker) RegisterUnicastReceiver(fn ReceiverFunc) {
	b.mu.Lock()
	b.onUnicast = fn
	b.mu.Unlock()
}

func (b *MemoryBroker) Close() error {
	b.hub.mu.Lock()
	delete(b.hub.brokers, b.peerID)
	b.hub.mu.Unlock()
	return nil
}

// History returns every payload ever broadcast on channel across the
// whole hub, oldest first. Test-only convenience.
func (h *MemoryHub) History(channel Channel) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([][]byte, len(h.history[channel]))
	copy(out, h.history[channel])
	return out
}

var _ Broker = (*MemoryBroker)(nil)
