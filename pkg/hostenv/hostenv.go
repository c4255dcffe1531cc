// Package hostenv models the primitives the core consumes rather than
// implements itself: process identity, channel-group membership
// queries, and the host's timer/frame-loop. A game client embedding
// this module supplies its own; this package's defaults make the
// module usable standalone (CLI, tests, demos).
package hostenv

import (
	"os"

	"github.com/google/uuid"
)

// Identity supplies the two session-stable facts the sync engine and
// store need about the local process: a display name and a peer ID. A
// peer ID of the literal "=" is never returned by a correct Identity; it
// collides with the store's peer-shorthand marker.
type Identity interface {
	PlayerName() string
	PeerID() string
}

// defaultIdentity generates a peer ID once, at construction, and holds it
// for the session's lifetime; a fresh uuid on every call would break the
// store's "peerId must be stable for the session" requirement.
type defaultIdentity struct {
	playerName string
	peerID     string
}

// NewDefaultIdentity builds an Identity from the local hostname (falling
// back to "player" if unavailable) and a freshly generated UUID peer ID,
// for CLI and demo use where no host environment supplies its own.
func NewDefaultIdentity() Identity {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "player"
	}
	return defaultIdentity{playerName: name, peerID: uuid.NewString()}
}

func (d defaultIdentity) PlayerName() string { return d.playerName }
func (d defaultIdentity) PeerID() string     { return d.peerID }

// Environment answers the channel-group membership queries that gate
// broadcast targeting: GUILD iff InGuild, RAID iff InRaid, PARTY iff
// InGroup, SHOUT iff not InInstance.
type Environment interface {
	InGuild() bool
	InRaid() bool
	InGroup() bool
	InInstance() bool
}

// StaticEnvironment is a fixed-answer Environment, useful for a
// standalone node (no guild/raid/group, never in an instance, so SHOUT
// is always eligible) and for tests that want to pin specific answers.
type StaticEnvironment struct {
	Guild, Raid, Group, Instance bool
}

func (s StaticEnvironment) InGuild() bool    { return s.Guild }
func (s StaticEnvironment) InRaid() bool     { return s.Raid }
func (s StaticEnvironment) InGroup() bool    { return s.Group }
func (s StaticEnvironment) InInstance() bool { return s.Instance }

// AlwaysShout is the default Environment for a standalone node: never in
// any instanced group, so only SHOUT ever fires.
var AlwaysShout = StaticEnvironment{}
