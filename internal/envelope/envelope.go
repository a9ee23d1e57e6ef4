// Package envelope implements the wire protocol for the murmur chat relay.
//
// Every message a peer or broker puts on the wire is one Envelope: a
// tagged union with a variant Kind and a payload specific to that kind.
// Envelopes are self-describing MessagePack values, so decoding never
// needs an out-of-band schema, and they are bounded to FrameSize bytes
// so that a single TCP Read can always recover exactly one of them.
//
// Key Features:
// - Tagged-union envelope taxonomy matching the relay's five variants
// - Fixed framing budget (320 bytes) shared by every participant
// - MessagePack codec that preserves variant tag and field order
// - Strict encode-time size assertion: oversize envelopes never reach the wire
//
// Called by: internal/broker, internal/session, cmd/broker, cmd/peer
// Calls: github.com/vmihailenco/msgpack/v5
package envelope

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Size budget constants: max_id_len + max_id_len + max_payload_len.
const (
	// MaxIdentityLen bounds a peer-chosen identity string. The original
	// Rust source derives this as 32 - size_of::<String>(); Go strings
	// carry no equivalent header to subtract, so this module uses the
	// clean packet-budget value directly.
	MaxIdentityLen = 32

	// MaxPayloadLen bounds a Message envelope's ciphertext field.
	MaxPayloadLen = 256

	// FrameSize is the fixed read-buffer size every connection uses.
	// One TCP Read is expected to return at most one encoded envelope.
	FrameSize = MaxIdentityLen + MaxIdentityLen + MaxPayloadLen
)

// PublicKeySize is the width of an X25519 public key.
const PublicKeySize = 32

// Kind discriminates the envelope taxonomy.
type Kind uint8

const (
	// KindMessage carries an opaque ciphertext envelope between peers.
	KindMessage Kind = iota
	// KindNewConnection announces a peer (join, or rekey under the same id).
	KindNewConnection
	// KindDisconnect announces a peer's departure.
	KindDisconnect
	// KindPeerList is the full directory snapshot sent to a joining peer.
	KindPeerList
	// kindRemoveConnection is synthesized by a broker reader task on EOF
	// or read error. It never appears on the wire — see Encode.
	kindRemoveConnection
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "Message"
	case KindNewConnection:
		return "NewConnection"
	case KindDisconnect:
		return "Disconnect"
	case KindPeerList:
		return "PeerList"
	case kindRemoveConnection:
		return "InternalRemoveConnection"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// PeerListEntry is one row of a PeerList snapshot.
type PeerListEntry struct {
	ID        string            `msgpack:"id"`
	PublicKey [PublicKeySize]byte `msgpack:"public_key"`
}

// Envelope is the wire-level tagged union. Only the fields relevant to
// Kind are populated; the rest are left at their zero value. This
// mirrors the original Rust `enum Protocol` more closely than a Go
// interface-per-variant would, and keeps the MessagePack encoding
// compact and self-describing (map keys double as field presence).
type Envelope struct {
	Kind Kind `msgpack:"kind"`

	// KindMessage fields.
	From       string `msgpack:"from,omitempty"`
	To         string `msgpack:"to,omitempty"`
	Ciphertext []byte `msgpack:"ciphertext,omitempty"`

	// KindNewConnection / KindDisconnect fields.
	ID        string              `msgpack:"id,omitempty"`
	PublicKey [PublicKeySize]byte `msgpack:"public_key,omitempty"`

	// KindPeerList field.
	Peers []PeerListEntry `msgpack:"peers,omitempty"`
}

// ErrDecode wraps any failure to recover an envelope from a frame:
// truncated buffer, corrupt MessagePack, or an unrecognized variant.
var ErrDecode = errors.New("envelope: decode error")

// ErrOversize is returned by Encode when the serialized envelope would
// not fit in a single FrameSize frame. This is a programming error,
// surfaced as an error rather than a panic because Encode is reachable
// from attacker-controlled plaintext lengths.
var ErrOversize = errors.New("envelope: encoded size exceeds frame budget")

// NewMessage builds a Message envelope. Callers are responsible for
// encrypting the payload before calling this constructor — the
// envelope layer only carries bytes, it knows nothing about keys.
func NewMessage(from, to string, ciphertext []byte) *Envelope {
	return &Envelope{Kind: KindMessage, From: from, To: to, Ciphertext: ciphertext}
}

// NewConnection builds a NewConnection envelope (join or rekey).
func NewConnection(id string, pubKey [PublicKeySize]byte) *Envelope {
	return &Envelope{Kind: KindNewConnection, ID: id, PublicKey: pubKey}
}

// NewDisconnect builds a Disconnect envelope.
func NewDisconnect(id string) *Envelope {
	return &Envelope{Kind: KindDisconnect, ID: id}
}

// NewPeerList builds a PeerList snapshot envelope.
func NewPeerList(peers []PeerListEntry) *Envelope {
	return &Envelope{Kind: KindPeerList, Peers: peers}
}

// Validate checks that an envelope's fields are consistent with its
// declared Kind and within the protocol's size limits. It does not check
// wire-size (Encode does that); it catches malformed construction
// before an envelope is ever serialized or acted on.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindMessage:
		if e.From == "" || e.To == "" {
			return fmt.Errorf("%w: message missing from/to", ErrDecode)
		}
		if len(e.From) > MaxIdentityLen || len(e.To) > MaxIdentityLen {
			return fmt.Errorf("%w: identity exceeds %d bytes", ErrDecode, MaxIdentityLen)
		}
		if len(e.Ciphertext) > MaxPayloadLen {
			return fmt.Errorf("%w: ciphertext exceeds %d bytes", ErrDecode, MaxPayloadLen)
		}
	case KindNewConnection, KindDisconnect:
		if e.ID == "" {
			return fmt.Errorf("%w: missing id", ErrDecode)
		}
		if len(e.ID) > MaxIdentityLen {
			return fmt.Errorf("%w: identity exceeds %d bytes", ErrDecode, MaxIdentityLen)
		}
	case KindPeerList:
		for _, p := range e.Peers {
			if len(p.ID) > MaxIdentityLen {
				return fmt.Errorf("%w: identity exceeds %d bytes", ErrDecode, MaxIdentityLen)
			}
		}
	case kindRemoveConnection:
		// No fields; always valid in-process.
	default:
		return fmt.Errorf("%w: unknown variant %d", ErrDecode, e.Kind)
	}
	return nil
}

// Encode serializes the envelope to MessagePack and asserts it fits in
// a single frame. kindRemoveConnection MUST NOT appear on the wire;
// encoding it is a programming error.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Kind == kindRemoveConnection {
		return nil, fmt.Errorf("envelope: %s must not be encoded to the wire", e.Kind)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal failed: %w", err)
	}
	if len(data) > FrameSize {
		return nil, fmt.Errorf("%w: %d bytes > %d byte frame", ErrOversize, len(data), FrameSize)
	}
	return data, nil
}

// Decode recovers one envelope from the first N bytes of a frame.
// Truncated or corrupt input, or an unrecognized variant, is reported
// via ErrDecode; the caller (broker reader task) logs and keeps
// reading rather than closing the connection.
func Decode(frame []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(frame, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if e.Kind == kindRemoveConnection {
		return nil, fmt.Errorf("%w: wire frame claims internal-only variant", ErrDecode)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
