package broker

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// whisperProtocol is the libp2p stream protocol used for unicast
// deliveries, dialed directly to the target peer rather than routed
// through gossipsub.
const whisperProtocol = protocol.ID("/gossipkv/whisper/1.0.0")

// LibP2PBroker backs Broker with a libp2p host: gossipsub for the four
// broadcast channels and a direct stream protocol for unicast, with mDNS
// for LAN peer discovery. Grounded on core/network.go's NewNode/Broadcast/
// Subscribe shape, generalized from one topic-per-call to the fixed
// channel set this module needs.
type LibP2PBroker struct {
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger

	topicMu sync.Mutex
	topics  map[Channel]*pubsub.Topic

	recvMu      sync.RWMutex
	onBroadcast ReceiverFunc
	onUnicast   ReceiverFunc

	namespace string
}

// NewLibP2PBroker creates a libp2p host listening on listenAddr, joins
// the four broadcast channel topics (named gossipkv/<namespace>/<channel>),
// and starts mDNS discovery under discoveryTag.
func NewLibP2PBroker(listenAddr, namespace, discoveryTag string, logger *logrus.Logger) (*LibP2PBroker, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("broker: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("broker: create pubsub: %w", err)
	}

	b := &LibP2PBroker{
		host:      h,
		pubsub:    ps,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		topics:    make(map[Channel]*pubsub.Topic),
		namespace: namespace,
	}

	h.SetStreamHandler(whisperProtocol, b.handleIncomingStream)

	for _, ch := range []Channel{ChannelGuild, ChannelRaid, ChannelParty, ChannelShout} {
		if err := b.joinAndListen(ch); err != nil {
			b.Close()
			return nil, err
		}
	}

	if _, err := mdns.NewMdnsService(h, discoveryTag, (*mdnsNotifee)(b)).Start(); err != nil {
		b.logger.Warnf("broker: mDNS discovery failed to start: %v", err)
	}

	return b, nil
}

func (b *LibP2PBroker) topicName(ch Channel) string {
	return fmt.Sprintf("gossipkv/%s/%s", b.namespace, ch)
}

func (b *LibP2PBroker) joinAndListen(ch Channel) error {
	t, err := b.pubsub.Join(b.topicName(ch))
	if err != nil {
		return fmt.Errorf("broker: join channel %s: %w", ch, err)
	}
	b.topicMu.Lock()
	b.topics[ch] = t
	b.topicMu.Unlock()

	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("broker: subscribe channel %s: %w", ch, err)
	}
	go b.readLoop(ch, sub)
	return nil
}

func (b *LibP2PBroker) readLoop(ch Channel, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(b.ctx)
		if err != nil {
			b.logger.Debugf("broker: channel %s subscription closed: %v", ch, err)
			return
		}
		if msg.GetFrom() == b.host.ID() {
			continue
		}
		b.recvMu.RLock()
		fn := b.onBroadcast
		b.recvMu.RUnlock()
		if fn != nil {
			fn(ch, Envelope{FromPeer: msg.GetFrom().String(), Data: msg.Data})
		}
	}
}

func (b *LibP2PBroker) SendBroadcast(ch Channel, data []byte) error {
	b.topicMu.Lock()
	t, ok := b.topics[ch]
	b.topicMu.Unlock()
	if !ok {
		return fmt.Errorf("broker: channel %s not joined", ch)
	}
	if err := t.Publish(b.ctx, data); err != nil {
		return fmt.Errorf("broker: publish channel %s: %w", ch, err)
	}
	return nil
}

func (b *LibP2PBroker) SendUnicast(peerID string, data []byte) error {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return fmt.Errorf("broker: malformed peer id %q: %w", peerID, err)
	}
	s, err := b.host.NewStream(b.ctx, pid, whisperProtocol)
	if err != nil {
		return fmt.Errorf("broker: dial whisper stream to %s: %w", peerID, err)
	}
	defer s.Close()
	if _, err := s.Write(data); err != nil {
		return fmt.Errorf("broker: write whisper stream to %s: %w", peerID, err)
	}
	return nil
}

func (b *LibP2PBroker) handleIncomingStream(s network.Stream) {
	defer s.Close()
	reader := bufio.NewReader(s)
	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	b.recvMu.RLock()
	fn := b.onUnicast
	b.recvMu.RUnlock()
	if fn != nil {
		fn("", Envelope{FromPeer: s.Conn().RemotePeer().String(), Data: data})
	}
}

func (b *LibP2PBroker) RegisterReceiver(fn ReceiverFunc) {
	b.recvMu.Lock()
	b.onBroadcast = fn
	b.recvMu.Unlock()
}

func (b *LibP2PBroker) RegisterUnicastReceiver(fn ReceiverFunc) {
	b.recvMu.Lock()
	b.onUnicast = fn
	b.recvMu.Unlock()
}

func (b *LibP2PBroker) Close() error {
	b.cancel()
	return b.host.Close()
}

// PeerID returns this broker's libp2p peer ID as a string, the identity
// SendUnicast on another LibP2PBroker dials to reach this one. It is
// separate from the gossip peer ID, which comes from the hostenv.Identity.
func (b *LibP2PBroker) PeerID() string {
	return b.host.ID().String()
}

// mdnsNotifee adapts LibP2PBroker to mdns.Notifee without exposing the
// method on the broker's own public surface.
type mdnsNotifee LibP2PBroker

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	b := (*LibP2PBroker)(n)
	if info.ID == b.host.ID() {
		return
	}
	if err := b.host.Connect(b.ctx, info); err != nil {
		b.logger.Warnf("broker: failed to connect to discovered peer %s: %v", info.ID, err)
		return
	}
	b.logger.Infof("broker: connected to peer %s via mDNS", info.ID)
}

var _ Broker = (*LibP2PBroker)(nil)
