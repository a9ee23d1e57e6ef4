// Package directory implements the broker's peer directory: the
// authoritative record of every connected peer, indexed twice — by
// identity and by remote socket address — so that a reader task which
// only knows a socket address (an EOF, say) can still resolve the
// identity to remove.
//
// Directory is owned by exactly one goroutine in internal/broker (the
// event handler). It has no internal locking: this system's
// single-producer event loop, not mutual exclusion, is what keeps the
// directory race-free.
//
// Called by: internal/broker
// Calls: net (for the net.Addr key type only)
package directory

import (
	"errors"
	"fmt"
	"log"
	"net"
)

// Entry is one peer directory entry.
type Entry struct {
	ID        string
	Conn      net.Conn
	PublicKey [32]byte
	Addr      net.Addr
}

// ErrInconsistent is logged (never returned to a caller that can act
// on it) when the two indices disagree. It indicates a bug; recovery
// is best-effort.
var ErrInconsistent = errors.New("directory: primary/secondary index mismatch")

// Directory is the broker's bijective two-index peer map. The zero
// value is not ready for use; call New.
type Directory struct {
	byID   map[string]*Entry
	byAddr map[string]string // addr.String() -> id
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{
		byID:   make(map[string]*Entry),
		byAddr: make(map[string]string),
	}
}

// Insert adds or replaces a peer entry. A second join for an identity
// already present overwrites the old entry in both indices rather than
// being rejected, matching a bare map-assignment's semantics.
//
// If the identity previously mapped to a different address (e.g. the
// same peer rejoined from a new socket), the stale address mapping is
// removed first so the bijection invariant holds.
func (d *Directory) Insert(e *Entry) {
	if old, exists := d.byID[e.ID]; exists {
		delete(d.byAddr, old.Addr.String())
	}
	d.byID[e.ID] = e
	d.byAddr[e.Addr.String()] = e.ID
}

// RemoveByID removes a peer entry by identity. Reports whether an
// entry was removed.
func (d *Directory) RemoveByID(id string) (*Entry, bool) {
	e, exists := d.byID[id]
	if !exists {
		return nil, false
	}
	delete(d.byID, id)
	if mappedID, ok := d.byAddr[e.Addr.String()]; !ok || mappedID != id {
		// Secondary index never pointed back here, or pointed somewhere
		// else. Log; best-effort recovery below, never returned to the
		// caller.
		log.Printf("directory: %v", fmt.Errorf("%w: addr %s for id %s", ErrInconsistent, e.Addr, id))
	}
	delete(d.byAddr, e.Addr.String())
	return e, true
}

// RemoveByAddr removes a peer entry by remote socket address, the
// lookup a reader task performs when all it has is the socket that
// just hit EOF or a read error.
func (d *Directory) RemoveByAddr(addr net.Addr) (*Entry, bool) {
	id, exists := d.byAddr[addr.String()]
	if !exists {
		return nil, false
	}
	e, ok := d.byID[id]
	if !ok {
		// Secondary index pointed at an id with no primary entry.
		// Best-effort: drop the stale secondary mapping and report
		// nothing removed.
		log.Printf("directory: %v", fmt.Errorf("%w: addr %s pointed at missing id %s", ErrInconsistent, addr, id))
		delete(d.byAddr, addr.String())
		return nil, false
	}
	delete(d.byID, id)
	delete(d.byAddr, addr.String())
	return e, true
}

// Get looks up a peer entry by identity.
func (d *Directory) Get(id string) (*Entry, bool) {
	e, ok := d.byID[id]
	return e, ok
}

// Snapshot returns every currently-directory peer. The returned slice
// is a copy; callers may range over it without racing the handler's
// next mutation (the handler never runs concurrently with a caller of
// Snapshot in this design, but Snapshot is built defensively so that
// invariant is not load-bearing).
func (d *Directory) Snapshot() []*Entry {
	out := make([]*Entry, 0, len(d.byID))
	for _, e := range d.byID {
		out = append(out, e)
	}
	return out
}

// Len reports the number of peers currently in the directory.
func (d *Directory) Len() int {
	return len(d.byID)
}

// CheckBijection reports whether every primary entry has exactly one
// secondary entry pointing back, and vice versa. It is intended for
// tests, not production control flow.
func (d *Directory) CheckBijection() error {
	if len(d.byID) != len(d.byAddr) {
		return fmt.Errorf("%w: %d primary entries, %d secondary entries", ErrInconsistent, len(d.byID), len(d.byAddr))
	}
	for id, e := range d.byID {
		mappedID, ok := d.byAddr[e.Addr.String()]
		if !ok || mappedID != id {
			return fmt.Errorf("%w: id %s has no matching secondary entry", ErrInconsistent, id)
		}
	}
	for addr, id := range d.byAddr {
		e, ok := d.byID[id]
		if !ok || e.Addr.String() != addr {
			return fmt.Errorf("%w: addr %s has no matching primary entry", ErrInconsistent, addr)
		}
	}
	return nil
}
