package gossip

import (
	"sync"
	"time"
)

// discoveredPeer is one entry in the discovery directory.
type discoveredPeer struct {
	PeerID     string
	PlayerName string
	KnownClock uint64
	IsNew      bool
}

// DiscoveredPeer is the read-only view handed back by Engine.DiscoveredPeers.
type DiscoveredPeer struct {
	PeerID     string
	PlayerName string
	KnownClock uint64
}

// discoveryState tracks one in-flight or completed discovery round: the
// directory of every peer ever heard from, and the quiet-period/max-time
// bookkeeping the completion predicate evaluates on every loop tick.
type discoveryState struct {
	mu sync.Mutex

	quietPeriod time.Duration
	maxTime     time.Duration

	directory map[string]*discoveredPeer

	active             bool
	completedOnce      bool
	discoveryStartTime time.Time
	lastResponseTime   time.Time
}

func newDiscoveryState(quietPeriod, maxTime time.Duration) *discoveryState {
	return &discoveryState{
		quietPeriod: quietPeriod,
		maxTime:     maxTime,
		directory:   make(map[string]*discoveredPeer),
	}
}

// start marks a fresh discovery round beginning at now.
func (d *discoveryState) start(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	d.discoveryStartTime = now
	d.lastResponseTime = now
}

// recordResponse inserts or updates peerID's directory entry. It reports
// whether the peer was newly seen.
func (d *discoveryState) recordResponse(peerID, playerName string, clock uint64, now time.Time) (isNew bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastResponseTime = now
	p, ok := d.directory[peerID]
	if !ok {
		p = &discoveredPeer{PeerID: peerID, IsNew: true}
		d.directory[peerID] = p
		isNew = true
	}
	p.KnownClock = clock
	p.PlayerName = playerName
	return isNew
}

// checkCompletion evaluates the completion predicate on a loop tick.
// It reports (fired, isInitial): fired is true exactly once per
// completed round, transitioning active back to false.
func (d *discoveryState) checkCompletion(now time.Time) (fired bool, isInitial bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return false, false
	}
	quiet := now.Sub(d.lastResponseTime) >= d.quietPeriod
	expired := now.Sub(d.discoveryStartTime) >= d.maxTime
	if !quiet && !expired {
		return false, false
	}
	d.active = false
	isInitial = !d.completedOnce
	d.completedOnce = true
	return true, isInitial
}

// snapshotTargets returns the peer IDs a snapshot request with no
// explicit target should unicast to: every peer that is new (the isNew
// flag is cleared as a side effect) or whose last-known clock exceeds
// ours.
func (d *discoveryState) snapshotTargets(localClock uint64) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var targets []string
	for _, p := range d.directory {
		if p.IsNew {
			p.IsNew = false
			targets = append(targets, p.PeerID)
			continue
		}
		if p.KnownClock > localClock {
			targets = append(targets, p.PeerID)
		}
	}
	return targets
}

// peers returns a stable snapshot of the discovery directory.
func (d *discoveryState) peers() []DiscoveredPeer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DiscoveredPeer, 0, len(d.directory))
	for _, p := range d.directory {
		out = append(out, DiscoveredPeer{PeerID: p.PeerID, PlayerName: p.PlayerName, KnownClock: p.KnownClock})
	}
	return out
}

// peerIDForPlayerName looks up the peer ID last reported under playerName,
// for metadata lookups keyed by an application-level player identifier
// rather than the gossip peer ID.
func (d *discoveryState) peerIDForPlayerName(playerName string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.directory {
		if p.PlayerName == playerName {
			return p.PeerID, true
		}
	}
	return "", false
}
