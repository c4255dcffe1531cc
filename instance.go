// Package gossipkv is an embeddable, peer-to-peer replicated key-value
// database: tables of schema-validated rows converge across peers
// through anti-entropy gossip (digest exchange, row transfer, and
// best-effort discovery) rather than a central server or consensus
// protocol. It is designed to run inside a host that only offers
// best-effort broadcast/whisper messaging and a frame-driven event loop,
// with sensible standalone defaults (libp2p transport, a realtime clock,
// a generated peer identity) for everything else.
package gossipkv

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/obsidian-reach/gossipkv/pkg/broker"
	"github.com/obsidian-reach/gossipkv/pkg/codec"
	"github.com/obsidian-reach/gossipkv/pkg/gossip"
	"github.com/obsidian-reach/gossipkv/pkg/hostenv"
	"github.com/obsidian-reach/gossipkv/pkg/store"
	"github.com/obsidian-reach/gossipkv/pkg/valueenc"
)

// Instance is one live database: a table registry with its Lamport
// clock, and the sync engine that gossips it against its peers.
type Instance struct {
	clusterID string
	identity  hostenv.Identity

	store  *store.Store
	engine *gossip.Engine

	br        broker.Broker
	ownBroker bool
}

func newInstance(cfg DatabaseConfig) (*Instance, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	identity := cfg.Identity
	if identity == nil {
		identity = hostenv.NewDefaultIdentity()
	}
	env := cfg.Environment
	if env == nil {
		env = hostenv.AlwaysShout
	}
	loop := cfg.Loop
	if loop == nil {
		loop = hostenv.NewRealtimeLoop(nil, 0)
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = valueenc.NewJSONEncoder()
	}

	br := cfg.Broker
	ownBroker := false
	if br == nil {
		listenAddr := cfg.BrokerListenAddr
		if listenAddr == "" {
			listenAddr = "/ip4/0.0.0.0/tcp/0"
		}
		discoveryTag := cfg.BrokerDiscoveryTag
		if discoveryTag == "" {
			discoveryTag = cfg.ClusterID
		}
		lp, err := broker.NewLibP2PBroker(listenAddr, cfg.Namespace, discoveryTag, logger)
		if err != nil {
			return nil, fmt.Errorf("gossipkv: start broker for cluster %q: %w", cfg.ClusterID, err)
		}
		br = lp
		ownBroker = true
	}

	st := store.NewStore(cfg.OnChange, logger)

	gossipCfg := gossip.DefaultConfig()
	if cfg.Channels != nil {
		gossipCfg.Channels = cfg.Channels
	}
	if cfg.DiscoveryQuietPeriod > 0 {
		gossipCfg.DiscoveryQuietPeriod = cfg.DiscoveryQuietPeriod
	}
	if cfg.DiscoveryMaxTime > 0 {
		gossipCfg.DiscoveryMaxTime = cfg.DiscoveryMaxTime
	}
	gossipCfg.OnDiscoveryComplete = cfg.OnDiscoveryComplete

	engine := gossip.New(st, br, identity, env, loop, enc, cfg.Metrics, logger, gossipCfg)

	return &Instance{
		clusterID: cfg.ClusterID,
		identity:  identity,
		store:     st,
		engine:    engine,
		br:        br,
		ownBroker: ownBroker,
	}, nil
}

// Close stops the sync engine's frame-tick subscription and, if this
// instance built its own broker (DatabaseConfig.Broker was left nil),
// closes it.
func (inst *Instance) Close() error {
	inst.engine.Close()
	if inst.ownBroker {
		return inst.br.Close()
	}
	return nil
}

// NewTable declares a table on this database.
func (inst *Instance) NewTable(cfg TableConfig) error {
	return inst.store.NewTable(store.TableDescriptor{
		Name:     cfg.Name,
		KeyType:  cfg.KeyType,
		Schema:   cfg.Schema,
		Validate: cfg.Validate,
		OnChange: cfg.OnChange,
	})
}

// NewTableFromYAML declares a table from a YAML schema document (see
// store.SchemaFromYAML for the document shape), letting an embedding
// application check a schema into a file instead of building it
// programmatically.
func (inst *Instance) NewTableFromYAML(doc []byte) error {
	desc, err := store.SchemaFromYAML(doc)
	if err != nil {
		return err
	}
	return inst.store.NewTable(desc)
}

// Insert writes data at key only if no live row currently exists there.
func (inst *Instance) Insert(table string, key any, data map[string]any) (bool, error) {
	return inst.store.Insert(table, key, data, inst.identity.PeerID(), nil)
}

// Set applies a local write, creating or overwriting the row at key.
func (inst *Instance) Set(table string, key any, data map[string]any) (bool, error) {
	return inst.store.Set(table, key, data, inst.identity.PeerID(), nil)
}

// Update feeds fn the row's current data and writes back its result.
func (inst *Instance) Update(table string, key any, fn store.UpdateFunc) (bool, error) {
	return inst.store.Update(table, key, fn, inst.identity.PeerID(), nil)
}

// Get returns the row's current data, or (nil, false) if absent.
func (inst *Instance) Get(table string, key any) (map[string]any, bool, error) {
	return inst.store.Get(table, key)
}

// HasKey reports whether a live row exists at key.
func (inst *Instance) HasKey(table string, key any) (bool, error) {
	return inst.store.HasKey(table, key)
}

// Delete writes a tombstone at key.
func (inst *Instance) Delete(table string, key any) (bool, error) {
	return inst.store.Delete(table, key, inst.identity.PeerID(), nil)
}

// Subscribe registers cb for change notifications on table. Unsubscribe
// by calling Close on the returned Subscription.
func (inst *Instance) Subscribe(table string, cb store.ChangeFunc) (*store.Subscription, error) {
	return inst.store.Subscribe(table, cb)
}

// Keys enumerates every key with a live row in table.
func (inst *Instance) Keys(table string) ([]any, error) {
	return inst.store.Keys(table)
}

// Serialize renders the named tables (or every table, if none are named)
// into the positional textual wire format.
func (inst *Instance) Serialize(tableNames ...string) (string, error) {
	return codec.Serialize(inst.store, tableNames...)
}

// Deserialize parses the positional textual wire format and merges its
// rows into this database. Every table it references must already be
// declared via NewTable.
func (inst *Instance) Deserialize(text string) ([]string, error) {
	return codec.Deserialize(inst.store, text)
}

// DiscoverPeers starts a fresh peer-discovery round.
func (inst *Instance) DiscoverPeers() {
	inst.engine.DiscoverPeers()
}

// GetDiscoveredPeers returns the current discovery directory.
func (inst *Instance) GetDiscoveredPeers() []gossip.DiscoveredPeer {
	return inst.engine.DiscoveredPeers()
}

// RequestSnapshot unicasts a full-export request to target, or to every
// peer the discovery directory considers new or ahead of our clock when
// target is empty.
func (inst *Instance) RequestSnapshot(target string) {
	inst.engine.RequestSnapshot(target)
}

// SyncNow broadcasts a fresh digest of every declared table.
func (inst *Instance) SyncNow() {
	inst.engine.SyncNow()
}

// GetPeerID returns this database's local peer ID.
func (inst *Instance) GetPeerID() string {
	return inst.identity.PeerID()
}

// GetPeerIDFromGUID looks up the gossip peer ID last reported by a peer
// identifying itself under playerName (its application-level GUID). It
// reports false if no discovered peer currently claims that name.
func (inst *Instance) GetPeerIDFromGUID(playerName string) (string, bool) {
	return inst.engine.PeerIDForPlayerName(playerName)
}

// GetSchema returns the named table's declared schema together with its
// field names. When sorted is true the field names come back in
// lexicographic order (the order the codec walks positionally);
// otherwise they come back in map iteration order.
func (inst *Instance) GetSchema(table string, sorted bool) (fields []string, schema store.Schema, ok bool) {
	desc, declared := inst.store.TableDescriptor(table)
	if !declared {
		return nil, nil, false
	}
	if sorted {
		fields = desc.Schema.FieldNames()
	} else {
		for name := range desc.Schema {
			fields = append(fields, name)
		}
	}
	return fields, desc.Schema, true
}
