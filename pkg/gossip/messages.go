// Package gossip implements the anti-entropy sync engine: envelope
// framing, the (messageType, peerId) debounce bucket, peer discovery,
// digest exchange, and row/snapshot transfer, all driven over a
// broker.Broker and a store.Store. It knows the wire shapes; it does not
// know how bytes actually reach another process.
package gossip

import "encoding/json"

// MessageType is the envelope's wire-level message code.
type MessageType int

const (
	MsgPeerDiscoveryRequest  MessageType = 1
	MsgPeerDiscoveryResponse MessageType = 2
	MsgSnapshotRequest       MessageType = 3
	MsgSnapshotResponse      MessageType = 4
	MsgDigest                MessageType = 5
	MsgRequestRows           MessageType = 6
	MsgRows                  MessageType = 7
)

func (t MessageType) String() string {
	switch t {
	case MsgPeerDiscoveryRequest:
		return "PeerDiscoveryRequest"
	case MsgPeerDiscoveryResponse:
		return "PeerDiscoveryResponse"
	case MsgSnapshotRequest:
		return "SnapshotRequest"
	case MsgSnapshotResponse:
		return "SnapshotResponse"
	case MsgDigest:
		return "Digest"
	case MsgRequestRows:
		return "RequestRows"
	case MsgRows:
		return "Rows"
	default:
		return "Unknown"
	}
}

// Envelope is the single wire shape every message travels in: a type
// code, the sender's peer ID, and an opaque payload. data is nil for
// messages that carry no payload (PeerDiscoveryRequest, SnapshotRequest
// with no target encoded in the envelope itself).
type Envelope struct {
	Type   MessageType     `json:"type"`
	PeerID string          `json:"peerId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// WireVersion is a row's version metadata as it travels on the wire.
type WireVersion struct {
	Clock     uint64 `json:"clock"`
	Peer      string `json:"peer"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// WireRow is a single row as it travels in a Rows or SnapshotResponse
// payload. Data is omitted for tombstones.
type WireRow struct {
	Data    map[string]any `json:"data,omitempty"`
	Version WireVersion    `json:"version"`
}

// peerDiscoveryResponsePayload carries the responder's local clock and
// player name, so a discovery directory entry can be looked up later by
// either identifier.
type peerDiscoveryResponsePayload struct {
	Clock      uint64 `json:"clock"`
	PlayerName string `json:"playerName"`
}

// digestPayload is {clock, tables: {tableName: {key: version}}}.
type digestPayload struct {
	Clock  uint64                            `json:"clock"`
	Tables map[string]map[string]WireVersion `json:"tables"`
}

// requestRowsPayload is a per-table set of missing keys.
type requestRowsPayload struct {
	Tables map[string][]string `json:"tables"`
}

// rowsPayload and snapshotResponsePayload share the same shape: a
// per-table map of key to row.
type rowsPayload struct {
	Tables map[string]map[string]WireRow `json:"tables"`
}

type snapshotResponsePayload struct {
	Clock  uint64                        `json:"clock"`
	Tables map[string]map[string]WireRow `json:"tables"`
}
