// Package session implements the peer-client side of the murmur
// protocol: a single TCP connection to the broker carrying two
// logical channels (outbound user messages/control, inbound directory
// updates and ciphertext), and the per-remote-peer chat state machine
// that rides on top of it.
//
// Key Features:
// - Directory of per-peer Chat state (Unknown/Known/Rekeyed/Gone)
// - Shared-secret derivation and retention across rekeys
// - Outbound/inbound queues served by Conn's own background
//   writer/reader goroutines
//
// Called by: cmd/peer
// Calls: internal/envelope, internal/crypto, net
package session

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/quietwire/murmur/internal/crypto"
	"github.com/quietwire/murmur/internal/envelope"
)

// State is a remote peer's position in the chat state machine.
type State int

const (
	// Unknown means the peer has never appeared in a PeerList or
	// NewConnection; there is no Chat entry for it.
	Unknown State = iota
	// Known means a shared secret has been derived from the peer's
	// most recently observed public key.
	Known
	// Rekeyed means a later NewConnection for the same id carried a
	// different public key; the shared secret was replaced and the
	// message log retained.
	Rekeyed
	// Gone means a Disconnect removed the peer; its Chat is dropped.
	Gone
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Known:
		return "Known"
	case Rekeyed:
		return "Rekeyed"
	case Gone:
		return "Gone"
	default:
		return "Invalid"
	}
}

// Draft is the message a user is composing before sending. Appends
// past MaxDraftLen are rejected rather than truncated — a no-op, not
// an error, matching the original source's id_handler pattern of
// silently refusing a keystroke once a field is at capacity
// (encrypter-client/src/events/handlers.rs).
type Draft struct {
	text string
}

// MaxDraftLen bounds a composed plaintext message so that, once
// padded to the AES block size, it still fits inside a Message
// envelope's MaxPayloadLen ciphertext field.
const MaxDraftLen = envelope.MaxPayloadLen

// Append adds s to the draft if doing so would not exceed
// MaxDraftLen. It reports whether the append happened.
func (d *Draft) Append(s string) bool {
	if len(d.text)+len(s) > MaxDraftLen {
		return false
	}
	d.text += s
	return true
}

// String returns the draft's current contents.
func (d *Draft) String() string {
	return d.text
}

// Reset clears the draft, typically after it has been sent.
func (d *Draft) Reset() {
	d.text = ""
}

// Chat holds the conversation and key material for one remote peer.
// It mirrors the original source's chat.rs Chat struct (shared_key +
// messages), generalized to also track State transitions explicitly.
type Chat struct {
	PeerID    string
	PublicKey [envelope.PublicKeySize]byte
	Secret    crypto.SharedSecret
	Messages  []string
	State     State
}

// Directory is the peer-client's local view of the chat roster: one
// Chat per known remote peer, plus which chat (if any) is currently
// selected. It is intended to be owned by a single goroutine (the
// REPL's cooperative step function in cmd/peer), matching the
// lock-free-by-single-ownership convention internal/directory uses on
// the broker side.
type Directory struct {
	identity *crypto.Identity
	chats    map[string]*Chat
	selected string
	hasSel   bool
}

// NewDirectory returns an empty peer-client directory bound to the
// given local identity, used to derive shared secrets on Observe.
func NewDirectory(identity *crypto.Identity) *Directory {
	return &Directory{
		identity: identity,
		chats:    make(map[string]*Chat),
	}
}

// Observe records that a public key was seen for peerID, either
// creating a new Known Chat or, if the key differs from what was
// already on file, transitioning the existing Chat to Rekeyed while
// retaining its message log.
func (d *Directory) Observe(peerID string, pubKey [envelope.PublicKeySize]byte) error {
	secret, err := d.identity.DeriveSharedSecret(pubKey)
	if err != nil {
		return fmt.Errorf("session: deriving shared secret for %s: %w", peerID, err)
	}

	existing, ok := d.chats[peerID]
	if !ok {
		d.chats[peerID] = &Chat{PeerID: peerID, PublicKey: pubKey, Secret: secret, State: Known}
		return nil
	}

	if existing.PublicKey == pubKey {
		return nil
	}

	existing.PublicKey = pubKey
	existing.Secret = secret
	existing.State = Rekeyed
	return nil
}

// Forget removes peerID's Chat entirely, driven by a Disconnect. If
// peerID was the currently selected chat, selection is cleared,
// standing in for the original TUI's chat-list navigation drop.
func (d *Directory) Forget(peerID string) {
	delete(d.chats, peerID)
	if d.hasSel && d.selected == peerID {
		d.selected = ""
		d.hasSel = false
	}
}

// Get returns the Chat for peerID, if known.
func (d *Directory) Get(peerID string) (*Chat, bool) {
	c, ok := d.chats[peerID]
	return c, ok
}

// Select marks peerID as the active chat. It is a no-op on the
// directory's key material; selection only affects Selected().
func (d *Directory) Select(peerID string) error {
	if _, ok := d.chats[peerID]; !ok {
		return fmt.Errorf("session: cannot select unknown peer %s", peerID)
	}
	d.selected = peerID
	d.hasSel = true
	return nil
}

// Selected returns the currently selected peer id, if any.
func (d *Directory) Selected() (string, bool) {
	return d.selected, d.hasSel
}

// Peers returns every known peer id, in no particular order.
func (d *Directory) Peers() []string {
	out := make([]string, 0, len(d.chats))
	for id := range d.chats {
		out = append(out, id)
	}
	return out
}

// Encrypt encrypts plaintext for the named peer under its current
// shared secret. Returns an error if the peer is not Known/Rekeyed.
func (d *Directory) Encrypt(peerID string, plaintext []byte) ([]byte, error) {
	c, ok := d.chats[peerID]
	if !ok {
		return nil, fmt.Errorf("session: no shared secret for unknown peer %s", peerID)
	}
	return crypto.Encrypt(c.Secret, plaintext)
}

// Decrypt decrypts ciphertext received from the named peer and
// appends the recovered (zero-padded) plaintext to its message log.
// No length field accompanies the plaintext, so trailing zero bytes
// are retained verbatim rather than trimmed.
func (d *Directory) Decrypt(peerID string, ciphertext []byte) (string, error) {
	c, ok := d.chats[peerID]
	if !ok {
		log.Printf("session: dropping ciphertext for unknown peer %s (missing decryption key)", peerID)
		return "", fmt.Errorf("session: no shared secret for unknown peer %s", peerID)
	}
	plaintext, err := crypto.Decrypt(c.Secret, ciphertext)
	if err != nil {
		return "", fmt.Errorf("session: decrypting message from %s: %w", peerID, err)
	}
	rendered := string(plaintext)
	c.Messages = append(c.Messages, rendered)
	return rendered, nil
}

// Conn is the peer-client's single TCP connection to the broker, with
// an outbound send queue and an inbound receive queue multiplexed on
// top of it as a pair of in-process queues drained by background
// goroutines. Two background goroutines do the actual I/O; callers
// never touch the socket directly.
type Conn struct {
	netConn net.Conn
	outbox  chan *envelope.Envelope
	inbox   chan *envelope.Envelope
	errs    chan error

	writeDone chan struct{}
	closeOnce sync.Once
}

// Dial connects to the broker at addr and starts the reader/writer
// goroutines. The caller must call Send to announce its identity
// (a KindNewConnection envelope) before any other traffic is
// meaningful to the broker.
func Dial(addr string) (*Conn, error) {
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dialing broker at %s: %w", addr, err)
	}

	c := &Conn{
		netConn:   netConn,
		outbox:    make(chan *envelope.Envelope, 32),
		inbox:     make(chan *envelope.Envelope, 32),
		errs:      make(chan error, 2),
		writeDone: make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Send enqueues env for delivery to the broker. Never blocks the
// caller on network I/O; the writer goroutine does that.
func (c *Conn) Send(env *envelope.Envelope) {
	c.outbox <- env
}

// Inbox is the channel of envelopes received from the broker. It is
// closed when the reader goroutine exits; cmd/peer drains it from its
// receiveLoop goroutine.
func (c *Conn) Inbox() <-chan *envelope.Envelope {
	return c.inbox
}

// Errs reports transport-level failures from either direction. A
// received error means the connection is no longer usable.
func (c *Conn) Errs() <-chan error {
	return c.errs
}

// Close tears down the connection and stops both I/O goroutines. It
// first closes the outbox and waits for the writer goroutine to drain
// whatever was already queued (an explicit Disconnect envelope sent
// just before Close, say) so a graceful shutdown is not racing its own
// final write against the socket closing underneath it.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.outbox)
		<-c.writeDone
		err = c.netConn.Close()
	})
	return err
}

func (c *Conn) writeLoop() {
	defer close(c.writeDone)
	w := bufio.NewWriter(c.netConn)
	for env := range c.outbox {
		data, err := env.Encode()
		if err != nil {
			c.errs <- fmt.Errorf("session: encode error: %w", err)
			continue
		}
		if _, err := w.Write(data); err != nil {
			c.errs <- fmt.Errorf("session: write error: %w", err)
			return
		}
		if err := w.Flush(); err != nil {
			c.errs <- fmt.Errorf("session: flush error: %w", err)
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.inbox)

	var frame [envelope.FrameSize]byte
	for {
		n, err := c.netConn.Read(frame[:])
		if err != nil {
			c.errs <- fmt.Errorf("session: read error: %w", err)
			return
		}
		if n == 0 {
			continue
		}
		env, err := envelope.Decode(frame[:n])
		if err != nil {
			log.Printf("session: decode error: %v", err)
			continue
		}
		c.inbox <- env
	}
}
