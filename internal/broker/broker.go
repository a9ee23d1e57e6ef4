// Package broker implements the central relay for the murmur chat
// system. The broker never holds a private key and never decrypts a
// message; it only moves encrypted envelopes between connected peers
// and maintains the directory that maps a peer identity to its live
// connection.
//
// Key Features:
// - TCP accept loop handing each connection to its own reader goroutine
// - A single directory-owning event handler goroutine, the
//   serialization point that makes directory mutation race-free
//   without any mutex
// - Fan-out of join/disconnect notifications to the directory, and
//   forwarding of each message to its single recipient
//
// Called by: cmd/broker
// Calls: internal/envelope, internal/directory
package broker

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/quietwire/murmur/internal/directory"
	"github.com/quietwire/murmur/internal/envelope"
)

// Service is the broker's TCP acceptor plus its single event handler.
// The zero value is not ready for use; call New.
type Service struct {
	listenAddr string
	debug      bool

	listener net.Listener
	events   chan netEvent
	dir      *directory.Directory

	closeOnce sync.Once
	done      chan struct{}
}

// New returns a Service ready to Run on listenAddr.
func New(listenAddr string, debug bool) *Service {
	return &Service{
		listenAddr: listenAddr,
		debug:      debug,
		events:     make(chan netEvent, 256),
		dir:        directory.New(),
		done:       make(chan struct{}),
	}
}

// netEvent is the tagged union the single event handler goroutine
// consumes. Exactly one goroutine ever reads from the channel these
// are sent on, which is what makes directory mutation race-free
// without locking.
type netEvent interface {
	isNetEvent()
}

type joinEvent struct {
	id     string
	pubKey [envelope.PublicKeySize]byte
	conn   net.Conn
	addr   net.Addr
}

type disconnectEvent struct {
	id string
}

type removeConnEvent struct {
	addr net.Addr
}

type messageEvent struct {
	env *envelope.Envelope
}

func (joinEvent) isNetEvent()       {}
func (disconnectEvent) isNetEvent() {}
func (removeConnEvent) isNetEvent() {}
func (messageEvent) isNetEvent()    {}

// Run binds the listen address, starts the event handler goroutine,
// and accepts connections until the listener is closed. Accept errors
// are logged and do not stop the loop; the loop only returns once the
// listener itself is closed (via Close).
func (s *Service) Run() error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("broker: listen on %s: %w", s.listenAddr, err)
	}
	s.listener = listener

	if s.debug {
		log.Printf("Broker: listening on %s", s.listenAddr)
	}

	go s.run()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			log.Printf("Broker: accept error: %v", err)
			continue
		}
		connID := uuid.New().String()
		log.Printf("Broker: new connection %s from %s", connID, conn.RemoteAddr())
		go s.readLoop(connID, conn)
	}
}

// Close stops accepting new connections. It does not forcibly close
// existing peer connections; those wind down as their reader
// goroutines hit EOF or error.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	return err
}

// readLoop is the per-connection reader task. It reads a fixed-size
// frame per Read call — this protocol is deliberately not
// length-prefixed or reassembled across reads, one envelope per read —
// decodes it, and posts the corresponding event.
// Decode failures are logged and the loop continues; read errors or
// EOF post a removeConnEvent and the goroutine exits. The reader owns
// no directory state — it only produces events.
func (s *Service) readLoop(connID string, conn net.Conn) {
	defer conn.Close()

	var frame [envelope.FrameSize]byte
	for {
		n, err := conn.Read(frame[:])
		if err != nil {
			s.events <- removeConnEvent{addr: conn.RemoteAddr()}
			return
		}
		if n == 0 {
			s.events <- removeConnEvent{addr: conn.RemoteAddr()}
			return
		}

		env, err := envelope.Decode(frame[:n])
		if err != nil {
			log.Printf("Broker: decode error from %s (%s): %v", connID, conn.RemoteAddr(), err)
			continue
		}

		switch env.Kind {
		case envelope.KindNewConnection:
			s.events <- joinEvent{id: env.ID, pubKey: env.PublicKey, conn: conn, addr: conn.RemoteAddr()}
		case envelope.KindDisconnect:
			s.events <- disconnectEvent{id: env.ID}
		case envelope.KindMessage:
			s.events <- messageEvent{env: env}
		default:
			if s.debug {
				log.Printf("Broker: ignoring unsupported variant %s from %s (%s)", env.Kind, connID, conn.RemoteAddr())
			}
		}
	}
}

// run is the single event handler goroutine: the one place the
// directory is ever mutated. s.events is never closed, so run keeps
// draining it for the life of the process; Close does not stop it.
func (s *Service) run() {
	for ev := range s.events {
		switch e := ev.(type) {
		case joinEvent:
			s.handleJoin(e)
		case disconnectEvent:
			s.handleDisconnect(e.id)
		case removeConnEvent:
			s.handleRemoveConn(e.addr)
		case messageEvent:
			s.handleMessage(e.env)
		}
	}
}

// handleJoin implements the join ordering refinement: existing peers
// are notified of the newcomer BEFORE the newcomer is
// inserted into the directory, so the newcomer never receives its own
// join notification; the newcomer's subsequent PeerList snapshot,
// built after insertion, is the authoritative picture including itself.
func (s *Service) handleJoin(e joinEvent) {
	newcomer := envelope.NewConnection(e.id, e.pubKey)

	// Exclude e.id itself from the pre-insert snapshot: for a genuine
	// newcomer it is not present yet anyway, but for a rekey (same id,
	// same underlying connection, new public key) the old entry is
	// still present and must not be notified of its own rekey.
	existing := make([]*directory.Entry, 0, s.dir.Len())
	for _, entry := range s.dir.Snapshot() {
		if entry.ID != e.id {
			existing = append(existing, entry)
		}
	}
	s.fanOut(newcomer, existing)

	s.dir.Insert(&directory.Entry{ID: e.id, Conn: e.conn, PublicKey: e.pubKey, Addr: e.addr})

	peers := make([]envelope.PeerListEntry, 0, s.dir.Len())
	for _, entry := range s.dir.Snapshot() {
		peers = append(peers, envelope.PeerListEntry{ID: entry.ID, PublicKey: entry.PublicKey})
	}
	s.sendTo(e.conn, envelope.NewPeerList(peers))

	if s.debug {
		log.Printf("Broker: %s joined (%d peers now known)", e.id, s.dir.Len())
	}
}

func (s *Service) handleDisconnect(id string) {
	entry, ok := s.dir.RemoveByID(id)
	if !ok {
		return
	}
	s.fanOut(envelope.NewDisconnect(id), s.dir.Snapshot())
	if s.debug {
		log.Printf("Broker: %s disconnected from %s", id, entry.Addr)
	}
}

func (s *Service) handleRemoveConn(addr net.Addr) {
	entry, ok := s.dir.RemoveByAddr(addr)
	if !ok {
		return
	}
	s.fanOut(envelope.NewDisconnect(entry.ID), s.dir.Snapshot())
	if s.debug {
		log.Printf("Broker: connection from %s (%s) dropped", addr, entry.ID)
	}
}

func (s *Service) handleMessage(env *envelope.Envelope) {
	entry, ok := s.dir.Get(env.To)
	if !ok {
		log.Printf("Broker: dropping message from %s to unknown peer %s", env.From, env.To)
		return
	}
	s.sendTo(entry.Conn, env)
}

// fanOut writes env to every peer in peers concurrently, one
// short-lived goroutine per peer joined with a WaitGroup before
// returning. A write failure to one peer is logged and does not affect
// delivery to the others; fan-out does not wait for acknowledgement
// beyond the write itself.
func (s *Service) fanOut(env *envelope.Envelope, peers []*directory.Entry) {
	if len(peers) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(p *directory.Entry) {
			defer wg.Done()
			s.sendTo(p.Conn, env)
		}(peer)
	}
	wg.Wait()
}

func (s *Service) sendTo(conn net.Conn, env *envelope.Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Printf("Broker: encode error for %s: %v", env.Kind, err)
		return
	}
	w := bufio.NewWriter(conn)
	if _, err := w.Write(data); err != nil {
		log.Printf("Broker: write error to %s: %v", conn.RemoteAddr(), err)
		return
	}
	if err := w.Flush(); err != nil {
		log.Printf("Broker: flush error to %s: %v", conn.RemoteAddr(), err)
	}
}
