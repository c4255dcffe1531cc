package gossip

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obsidian-reach/gossipkv/pkg/broker"
	"github.com/obsidian-reach/gossipkv/pkg/hostenv"
	"github.com/obsidian-reach/gossipkv/pkg/metrics"
	"github.com/obsidian-reach/gossipkv/pkg/store"
	"github.com/obsidian-reach/gossipkv/pkg/valueenc"
)

// Config governs one Engine's behavior: which channels it may use and
// how aggressively it runs peer discovery, separate from the
// table/schema side of database creation.
type Config struct {
	Channels             []broker.Channel
	DiscoveryQuietPeriod time.Duration
	DiscoveryMaxTime     time.Duration
	OnDiscoveryComplete  func(isInitial bool)
}

// DefaultConfig returns the documented defaults: all four channels,
// a 1-second discovery quiet period, a 3-second discovery max time.
func DefaultConfig() Config {
	return Config{
		Channels:             []broker.Channel{broker.ChannelGuild, broker.ChannelRaid, broker.ChannelParty, broker.ChannelShout},
		DiscoveryQuietPeriod: time.Second,
		DiscoveryMaxTime:     3 * time.Second,
	}
}

// Engine is the anti-entropy sync engine: it owns no data of its own
// (the store does), but drives discovery, digest exchange, and row
// transfer over a Broker, gated by the host environment's channel
// membership queries.
type Engine struct {
	store    *store.Store
	br       broker.Broker
	identity hostenv.Identity
	env      hostenv.Environment
	loop     hostenv.Loop
	enc      valueenc.Encoder
	metrics  *metrics.Recorder
	logger   *logrus.Logger
	cfg      Config

	debouncer *debouncer
	discovery *discoveryState

	stopTick func()
}

// New wires an Engine from its dependencies. recorder and logger may be
// nil. The caller must call Close to release the engine's frame-tick
// subscription.
func New(st *store.Store, br broker.Broker, identity hostenv.Identity, env hostenv.Environment, loop hostenv.Loop, enc valueenc.Encoder, recorder *metrics.Recorder, logger *logrus.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if enc == nil {
		enc = valueenc.NewJSONEncoder()
	}
	e := &Engine{
		store:     st,
		br:        br,
		identity:  identity,
		env:       env,
		loop:      loop,
		enc:       enc,
		metrics:   recorder,
		logger:    logger,
		cfg:       cfg,
		discovery: newDiscoveryState(cfg.DiscoveryQuietPeriod, cfg.DiscoveryMaxTime),
	}
	e.debouncer = newDebouncer(loop, time.Second, recorder.DebounceCoalesced)

	br.RegisterReceiver(e.handleBroadcast)
	br.RegisterUnicastReceiver(e.handleUnicast)
	e.stopTick = loop.OnFrameTick(e.tick)
	return e
}

// Close unsubscribes the engine's frame-tick handler. It does not close
// the underlying broker; the caller owns that.
func (e *Engine) Close() {
	if e.stopTick != nil {
		e.stopTick()
	}
}

func (e *Engine) tick() {
	fired, isInitial := e.discovery.checkCompletion(e.loop.Now())
	if !fired {
		return
	}
	e.metrics.DiscoveryCompleted()
	e.metrics.SetDiscoveredPeers(len(e.discovery.peers()))
	if e.cfg.OnDiscoveryComplete != nil {
		invokeContained(func() { e.cfg.OnDiscoveryComplete(isInitial) })
	}
}

// invokeContained runs fn, recovering any panic so a misbehaving host
// callback cannot take down the engine's dispatch loop.
func invokeContained(fn func()) {
	defer func() { recover() }()
	fn()
}

// eligibleChannels returns the configured channels this peer may
// currently broadcast on: GUILD iff in a guild, RAID iff in a raid,
// PARTY iff in a group, SHOUT iff not in an instance.
func (e *Engine) eligibleChannels() []broker.Channel {
	var out []broker.Channel
	for _, ch := range e.cfg.Channels {
		var eligible bool
		switch ch {
		case broker.ChannelGuild:
			eligible = e.env.InGuild()
		case broker.ChannelRaid:
			eligible = e.env.InRaid()
		case broker.ChannelParty:
			eligible = e.env.InGroup()
		case broker.ChannelShout:
			eligible = !e.env.InInstance()
		}
		if eligible {
			out = append(out, ch)
		}
	}
	return out
}

func (e *Engine) broadcast(msgType MessageType, payload any) {
	data, err := e.encodeEnvelope(msgType, payload)
	if err != nil {
		e.logger.Warnf("gossip: encode %s: %v", msgType, err)
		return
	}
	for _, ch := range e.eligibleChannels() {
		if err := e.br.SendBroadcast(ch, data); err != nil {
			e.logger.Debugf("gossip: broadcast %s on %s: %v", msgType, ch, err)
		}
	}
}

func (e *Engine) unicast(peerID string, msgType MessageType, payload any) {
	data, err := e.encodeEnvelope(msgType, payload)
	if err != nil {
		e.logger.Warnf("gossip: encode %s: %v", msgType, err)
		return
	}
	if err := e.br.SendUnicast(peerID, data); err != nil {
		e.logger.Debugf("gossip: unicast %s to %s: %v", msgType, peerID, err)
	}
}

func (e *Engine) encodeEnvelope(msgType MessageType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := e.enc.Encode(payload)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return e.enc.Encode(Envelope{Type: msgType, PeerID: e.identity.PeerID(), Data: raw})
}

// DiscoverPeers broadcasts a PeerDiscoveryRequest on every eligible
// channel and starts a fresh discovery round.
func (e *Engine) DiscoverPeers() {
	now := e.loop.Now()
	e.discovery.start(now)
	e.broadcast(MsgPeerDiscoveryRequest, nil)
}

// DiscoveredPeers returns the current discovery directory.
func (e *Engine) DiscoveredPeers() []DiscoveredPeer {
	return e.discovery.peers()
}

// RequestSnapshot unicasts a SnapshotRequest. If target is empty, it
// instead targets every peer the discovery directory marks as new or
// ahead of our local clock.
func (e *Engine) RequestSnapshot(target string) {
	if target != "" {
		e.unicast(target, MsgSnapshotRequest, nil)
		return
	}
	for _, peerID := range e.discovery.snapshotTargets(e.store.Clock()) {
		e.unicast(peerID, MsgSnapshotRequest, nil)
	}
}

// SyncNow broadcasts a fresh Digest of every declared table, the
// mechanism anti-entropy convergence runs on outside of discovery.
func (e *Engine) SyncNow() {
	d := buildDigest(e.store, e.store.TableNames())
	e.metrics.DigestSent()
	e.broadcast(MsgDigest, d)
}

func (e *Engine) handleBroadcast(channel broker.Channel, env broker.Envelope) {
	e.ingest(env.Data)
}

func (e *Engine) handleUnicast(_ broker.Channel, env broker.Envelope) {
	e.ingest(env.Data)
}

// ingest decodes the envelope and hands it to the debouncer; a malformed
// envelope or one from ourselves is a network-data error, logged and
// dropped.
func (e *Engine) ingest(data []byte) {
	var env Envelope
	if !e.enc.Decode(data, &env) {
		e.logger.Warnf("gossip: malformed envelope dropped")
		return
	}
	if env.PeerID == e.identity.PeerID() {
		return
	}
	e.debouncer.offer(env.Type, env.PeerID, func() { e.dispatch(env) })
}

func (e *Engine) dispatch(env Envelope) {
	switch env.Type {
	case MsgPeerDiscoveryRequest:
		e.onPeerDiscoveryRequest(env)
	case MsgPeerDiscoveryResponse:
		e.onPeerDiscoveryResponse(env)
	case MsgSnapshotRequest:
		e.onSnapshotRequest(env)
	case MsgSnapshotResponse:
		e.onSnapshotResponse(env)
	case MsgDigest:
		e.onDigest(env)
	case MsgRequestRows:
		e.onRequestRows(env)
	case MsgRows:
		e.onRows(env)
	default:
		e.logger.Warnf("gossip: unknown message code %d from %s", env.Type, env.PeerID)
	}
}

func (e *Engine) onPeerDiscoveryRequest(env Envelope) {
	payload := peerDiscoveryResponsePayload{Clock: e.store.Clock(), PlayerName: e.identity.PlayerName()}
	e.unicast(env.PeerID, MsgPeerDiscoveryResponse, payload)
}

func (e *Engine) onPeerDiscoveryResponse(env Envelope) {
	var payload peerDiscoveryResponsePayload
	if !e.enc.Decode(env.Data, &payload) {
		e.logger.Warnf("gossip: malformed PeerDiscoveryResponse from %s", env.PeerID)
		return
	}
	e.discovery.recordResponse(env.PeerID, payload.PlayerName, payload.Clock, e.loop.Now())
}

// PeerIDForPlayerName looks up the gossip peer ID last associated with a
// player name in the discovery directory.
func (e *Engine) PeerIDForPlayerName(playerName string) (string, bool) {
	return e.discovery.peerIDForPlayerName(playerName)
}

func (e *Engine) onSnapshotRequest(env Envelope) {
	e.unicast(env.PeerID, MsgSnapshotResponse, buildFullExport(e.store))
}

func (e *Engine) onSnapshotResponse(env Envelope) {
	var payload snapshotResponsePayload
	if !e.enc.Decode(env.Data, &payload) {
		e.logger.Warnf("gossip: malformed SnapshotResponse from %s", env.PeerID)
		return
	}
	e.mergeIncoming(payload.Tables)
}

func (e *Engine) onDigest(env Envelope) {
	var payload digestPayload
	if !e.enc.Decode(env.Data, &payload) {
		e.logger.Warnf("gossip: malformed Digest from %s", env.PeerID)
		return
	}
	e.metrics.DigestReceived()
	missing := missingRows(e.store, payload)
	if len(missing) == 0 {
		return
	}
	e.unicast(env.PeerID, MsgRequestRows, requestRowsPayload{Tables: missing})
}

func (e *Engine) onRequestRows(env Envelope) {
	var payload requestRowsPayload
	if !e.enc.Decode(env.Data, &payload) {
		e.logger.Warnf("gossip: malformed RequestRows from %s", env.PeerID)
		return
	}
	rows := buildRows(e.store, payload.Tables)
	if len(rows.Tables) == 0 {
		return
	}
	e.unicast(env.PeerID, MsgRows, rows)
}

func (e *Engine) onRows(env Envelope) {
	var payload rowsPayload
	if !e.enc.Decode(env.Data, &payload) {
		e.logger.Warnf("gossip: malformed Rows from %s", env.PeerID)
		return
	}
	e.mergeIncoming(payload.Tables)
}

func (e *Engine) mergeIncoming(tables map[string]map[string]WireRow) {
	merged, warnings := applyWireRows(e.store, tables)
	for _, w := range warnings {
		e.logger.Warnf("%s", w)
		e.metrics.RowRejected()
	}
	for i := 0; i < merged; i++ {
		e.metrics.RowMerged()
	}
}
