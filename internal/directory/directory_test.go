package directory

import (
	"net"
	"testing"
)

func addr(s string) net.Addr {
	a, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestInsertAndBijection(t *testing.T) {
	d := New()
	d.Insert(&Entry{ID: "alice", Addr: addr("127.0.0.1:1")})
	d.Insert(&Entry{ID: "bob", Addr: addr("127.0.0.1:2")})

	if err := d.CheckBijection(); err != nil {
		t.Fatalf("bijection broken: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
}

func TestRemoveByAddrKeepsBijection(t *testing.T) {
	d := New()
	a := addr("127.0.0.1:1")
	d.Insert(&Entry{ID: "alice", Addr: a})
	d.Insert(&Entry{ID: "bob", Addr: addr("127.0.0.1:2")})

	removed, ok := d.RemoveByAddr(a)
	if !ok || removed.ID != "alice" {
		t.Fatalf("RemoveByAddr: got %+v, %v", removed, ok)
	}
	if err := d.CheckBijection(); err != nil {
		t.Fatalf("bijection broken after removal: %v", err)
	}
	if _, ok := d.Get("alice"); ok {
		t.Fatal("alice should no longer be present")
	}
}

func TestRemoveByIDKeepsBijection(t *testing.T) {
	d := New()
	d.Insert(&Entry{ID: "alice", Addr: addr("127.0.0.1:1")})

	removed, ok := d.RemoveByID("alice")
	if !ok || removed.ID != "alice" {
		t.Fatalf("RemoveByID: got %+v, %v", removed, ok)
	}
	if err := d.CheckBijection(); err != nil {
		t.Fatalf("bijection broken after removal: %v", err)
	}
}

func TestInsertOverwritesOnIdentityCollision(t *testing.T) {
	// A second join with the same id overwrites the directory entry;
	// this is retained, not rejected.
	d := New()
	first := addr("127.0.0.1:1")
	second := addr("127.0.0.1:2")
	d.Insert(&Entry{ID: "alice", Addr: first})
	d.Insert(&Entry{ID: "alice", Addr: second})

	if err := d.CheckBijection(); err != nil {
		t.Fatalf("bijection broken after rekey-by-collision: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (old entry must not linger)", d.Len())
	}
	e, ok := d.Get("alice")
	if !ok || e.Addr.String() != second.String() {
		t.Fatalf("expected alice to now map to %s, got %+v", second, e)
	}
}
