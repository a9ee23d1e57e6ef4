package envelope

import (
	"bytes"
	"testing"
)

func TestRoundTripWireVariants(t *testing.T) {
	pub := [PublicKeySize]byte{1, 2, 3}
	cases := []*Envelope{
		NewMessage("alice", "bob", bytes.Repeat([]byte{0xAB}, 16)),
		NewConnection("alice", pub),
		NewDisconnect("alice"),
		NewPeerList([]PeerListEntry{{ID: "alice", PublicKey: pub}, {ID: "bob", PublicKey: pub}}),
	}

	for _, want := range cases {
		encoded, err := want.Encode()
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", want.Kind, err)
		}
		if len(encoded) > FrameSize {
			t.Fatalf("Encode(%s) produced %d bytes, want <= %d", want.Kind, len(encoded), FrameSize)
		}

		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", want.Kind, err)
		}
		if got.Kind != want.Kind || got.From != want.From || got.To != want.To ||
			!bytes.Equal(got.Ciphertext, want.Ciphertext) || got.ID != want.ID ||
			got.PublicKey != want.PublicKey || len(got.Peers) != len(want.Peers) {
			t.Fatalf("round trip mismatch for %s: got %+v, want %+v", want.Kind, got, want)
		}
	}
}

func TestEncodeRejectsInternalVariant(t *testing.T) {
	e := &Envelope{Kind: kindRemoveConnection}
	if _, err := e.Encode(); err == nil {
		t.Fatal("expected Encode to reject kindRemoveConnection")
	}
}

func TestEncodeRejectsOversizeCiphertext(t *testing.T) {
	e := NewMessage("alice", "bob", bytes.Repeat([]byte{0}, MaxPayloadLen+1))
	if _, err := e.Encode(); err == nil {
		t.Fatal("expected Encode to reject oversize ciphertext")
	}
}

func TestEncodeRejectsOversizeIdentity(t *testing.T) {
	longID := string(bytes.Repeat([]byte{'a'}, MaxIdentityLen+1))
	e := NewDisconnect(longID)
	if _, err := e.Encode(); err == nil {
		t.Fatal("expected Encode to reject oversize identity")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected Decode to reject garbage input")
	}
}

func TestFrameSizeBudget(t *testing.T) {
	if FrameSize != 320 {
		t.Fatalf("FrameSize = %d, want 320 (32+32+256 per spec)", FrameSize)
	}
}
