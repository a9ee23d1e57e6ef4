package session

import (
	"strings"
	"testing"

	"github.com/quietwire/murmur/internal/crypto"
)

func newTestIdentity(t *testing.T, seed byte) *crypto.Identity {
	t.Helper()
	// internal/crypto's LocalIdentity is process-wide and cached, so
	// every call returns the same identity and seed is unused; these
	// tests only ever need one local identity.
	id, err := crypto.LocalIdentity()
	if err != nil {
		t.Fatalf("LocalIdentity: %v", err)
	}
	return id
}

func TestDraftRejectsOversizeAppend(t *testing.T) {
	var d Draft
	longChunk := strings.Repeat("a", MaxDraftLen)
	if ok := d.Append(longChunk); !ok {
		t.Fatal("expected appending exactly MaxDraftLen chars to succeed")
	}
	if ok := d.Append("x"); ok {
		t.Fatal("expected appending beyond MaxDraftLen to be a no-op")
	}
	if d.String() != longChunk {
		t.Fatalf("draft contents changed after rejected append: got len %d, want %d", len(d.String()), len(longChunk))
	}
}

func TestDraftResetClearsContent(t *testing.T) {
	var d Draft
	d.Append("hello")
	d.Reset()
	if d.String() != "" {
		t.Fatalf("expected empty draft after Reset, got %q", d.String())
	}
	if ok := d.Append(strings.Repeat("b", MaxDraftLen)); !ok {
		t.Fatal("expected full-capacity append to succeed after Reset")
	}
}

func TestObserveThenRekeyRetainsMessageLog(t *testing.T) {
	id := newTestIdentity(t, 1)
	dir := NewDirectory(id)

	var keyA1 [32]byte
	copy(keyA1[:], "alice-key-one")
	if err := dir.Observe("alice", keyA1); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	chat, ok := dir.Get("alice")
	if !ok || chat.State != Known {
		t.Fatalf("expected alice to be Known, got %+v", chat)
	}
	chat.Messages = append(chat.Messages, "hi")

	var keyA2 [32]byte
	copy(keyA2[:], "alice-key-two")
	if err := dir.Observe("alice", keyA2); err != nil {
		t.Fatalf("Observe (rekey) failed: %v", err)
	}

	chat, ok = dir.Get("alice")
	if !ok || chat.State != Rekeyed {
		t.Fatalf("expected alice to be Rekeyed, got %+v", chat)
	}
	if len(chat.Messages) != 1 || chat.Messages[0] != "hi" {
		t.Fatalf("expected message log retained across rekey, got %+v", chat.Messages)
	}
	if chat.PublicKey != keyA2 {
		t.Fatal("expected public key replaced with the rekeyed value")
	}
}

func TestForgetClearsSelectionWhenRemovingSelectedChat(t *testing.T) {
	id := newTestIdentity(t, 2)
	dir := NewDirectory(id)

	var key [32]byte
	copy(key[:], "bob-key")
	if err := dir.Observe("bob", key); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if err := dir.Select("bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	dir.Forget("bob")

	if _, ok := dir.Get("bob"); ok {
		t.Fatal("expected bob's chat to be gone")
	}
	if _, ok := dir.Selected(); ok {
		t.Fatal("expected selection cleared after forgetting the selected chat")
	}
}

func TestEncryptDecryptRoundTripThroughDirectory(t *testing.T) {
	alice := newTestIdentity(t, 3)
	dirAlice := NewDirectory(alice)

	// Use a fixed peer key, independent of any other process-wide
	// identity, so this test is self-contained.
	var bobKey [32]byte
	copy(bobKey[:], "bob-static-key-for-test")
	if err := dirAlice.Observe("bob", bobKey); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	ciphertext, err := dirAlice.Encrypt("bob", []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	plaintext, err := dirAlice.Decrypt("bob", ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !strings.HasPrefix(plaintext, "hello") {
		t.Fatalf("expected decrypted text to start with %q, got %q", "hello", plaintext)
	}
}
