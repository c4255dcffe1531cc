package gossipkv

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obsidian-reach/gossipkv/pkg/broker"
	"github.com/obsidian-reach/gossipkv/pkg/hostenv"
	"github.com/obsidian-reach/gossipkv/pkg/metrics"
	"github.com/obsidian-reach/gossipkv/pkg/store"
	"github.com/obsidian-reach/gossipkv/pkg/valueenc"
)

// DatabaseConfig declares a database at Create time. ClusterID and
// Namespace are required; everything else has a usable default.
type DatabaseConfig struct {
	// ClusterID identifies this database in the global registry. Must be
	// 1-16 characters; Create rejects anything outside that range or a
	// duplicate of an already-live cluster ID.
	ClusterID string
	// Namespace scopes the broker's topics/protocols so unrelated
	// clusters sharing the same physical network never see each other's
	// traffic. Must be non-empty.
	Namespace string

	// Channels this database may broadcast and listen on. Defaults to
	// all four (GUILD, RAID, PARTY, SHOUT) when left nil.
	Channels []broker.Channel
	// DiscoveryQuietPeriod and DiscoveryMaxTime govern the discovery
	// completion predicate. Default to 1s and 3s respectively when zero.
	DiscoveryQuietPeriod time.Duration
	DiscoveryMaxTime     time.Duration

	// OnChange fires after any local write or accepted merge, across
	// every table, in addition to a table's own OnChange.
	OnChange func(table string, key any, data map[string]any)
	// OnDiscoveryComplete fires once per completed discovery round.
	// isInitial is true only for the first round this database ever ran.
	OnDiscoveryComplete func(isInitial bool)

	// Identity supplies the local peer ID and player name. Defaults to
	// hostenv.NewDefaultIdentity() when nil.
	Identity hostenv.Identity
	// Environment answers the channel-membership queries that gate
	// broadcast targeting. Defaults to hostenv.AlwaysShout when nil.
	Environment hostenv.Environment
	// Loop drives timers and frame ticks. Defaults to a realtime loop
	// backed by the system clock when nil.
	Loop hostenv.Loop
	// Encoder frames envelope payloads. Defaults to JSON when nil.
	Encoder valueenc.Encoder
	// Metrics records operational counters. A nil Metrics is valid; every
	// Recorder method is then a no-op.
	Metrics *metrics.Recorder
	// Logger receives structured log output. Defaults to
	// logrus.StandardLogger() when nil.
	Logger *logrus.Logger

	// Broker is the transport this database gossips over. If nil, a
	// libp2p-backed broker is constructed from BrokerListenAddr and
	// BrokerDiscoveryTag; supply an explicit Broker (e.g.
	// broker.NewMemoryBroker) for tests or single-process simulation.
	Broker broker.Broker
	// BrokerListenAddr is the libp2p multiaddr to listen on when Broker
	// is nil. Defaults to "/ip4/0.0.0.0/tcp/0" (an ephemeral port).
	BrokerListenAddr string
	// BrokerDiscoveryTag namespaces the mDNS discovery tag when Broker is
	// nil. Defaults to ClusterID.
	BrokerDiscoveryTag string
}

// TableConfig declares one table within a database.
type TableConfig struct {
	Name     string
	KeyType  store.KeyType
	Schema   store.Schema
	Validate store.ValidateFunc
	OnChange store.ChangeFunc
}
