// Package crypto implements the relay's key agreement and symmetric
// cipher: X25519 Diffie-Hellman for deriving a per-pair shared secret,
// and AES-256 in ECB mode for encrypting chat payloads under that
// secret.
//
// ECB mode is a deliberate, documented weakness carried over from the
// original design rather than an oversight: every 16-byte plaintext
// block encrypts to the same ciphertext block under a given key, and
// block boundaries are visible in the ciphertext. This package does
// not "fix" that — doing so would change the wire format peers rely on.
//
// Called by: internal/session, cmd/peer
// Calls: crypto/aes, crypto/cipher, crypto/rand, golang.org/x/crypto/curve25519
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the width of an X25519 key (public or private) and of the
// derived shared secret, which doubles as the AES-256 key.
const KeySize = 32

// blockSize is the AES block size; ECB mode encrypts one block at a time.
const blockSize = aes.BlockSize

// SharedSecret is a per-pair key derived from one side's private key
// and the other side's public key. It is used directly as an AES-256
// key, matching the original source's use of the raw X25519 output as
// the cipher key rather than running it through a KDF.
type SharedSecret [KeySize]byte

// Identity is this process's long-lived X25519 keypair. The relay's
// design generates one keypair per running process rather than per
// peer connection; a broker never holds one because it never decrypts.
type Identity struct {
	private [KeySize]byte
	public  [KeySize]byte
}

var (
	identityOnce sync.Once
	identity     *Identity
	identityErr  error
)

// LocalIdentity returns this process's X25519 keypair, generating and
// caching it on first use. Generation failure is treated as a fatal
// misconfiguration (no system entropy source) and returned to the
// caller rather than panicking, so cmd/peer can log and exit cleanly.
func LocalIdentity() (*Identity, error) {
	identityOnce.Do(func() {
		var priv [KeySize]byte
		if _, err := rand.Read(priv[:]); err != nil {
			identityErr = fmt.Errorf("crypto: generating private key: %w", err)
			return
		}
		pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
		if err != nil {
			identityErr = fmt.Errorf("crypto: deriving public key: %w", err)
			return
		}
		id := &Identity{private: priv}
		copy(id.public[:], pub)
		identity = id
	})
	return identity, identityErr
}

// PublicKey returns the identity's public key, safe to publish on the
// wire in a NewConnection envelope.
func (id *Identity) PublicKey() [KeySize]byte {
	return id.public
}

// DeriveSharedSecret runs X25519 scalar multiplication between this
// identity's private key and a peer's public key, producing the
// symmetric key used to encrypt traffic exchanged with that peer.
// Diffie-Hellman commutativity means both sides derive the same
// SharedSecret independently.
func (id *Identity) DeriveSharedSecret(peerPublic [KeySize]byte) (SharedSecret, error) {
	raw, err := curve25519.X25519(id.private[:], peerPublic[:])
	if err != nil {
		return SharedSecret{}, fmt.Errorf("crypto: deriving shared secret: %w", err)
	}
	var secret SharedSecret
	copy(secret[:], raw)
	return secret, nil
}

// padToBlock zero-pads plaintext up to the next 16-byte boundary. The
// padding is not removed on decrypt: trailing
// zero bytes are left in the recovered plaintext, matching the
// original source's behavior, so callers that care about exact
// message length must trim it themselves.
func padToBlock(plaintext []byte) []byte {
	rem := len(plaintext) % blockSize
	if rem == 0 {
		return plaintext
	}
	padded := make([]byte, len(plaintext)+(blockSize-rem))
	copy(padded, plaintext)
	return padded
}

// Encrypt pads plaintext to a multiple of the AES block size and
// encrypts it block-by-block under ECB mode with the given secret.
//
// Go's crypto/cipher package deliberately has no ECB mode (its docs
// call unauthenticated ECB "insecure", and rightly so) so there is no
// stdlib cipher.BlockMode to reach for; this loop is the hand-rolled
// equivalent of what that missing mode would do.
func Encrypt(secret SharedSecret, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(secret[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: building AES cipher: %w", err)
	}

	padded := padToBlock(plaintext)
	ciphertext := make([]byte, len(padded))
	for i := 0; i < len(padded); i += blockSize {
		block.Encrypt(ciphertext[i:i+blockSize], padded[i:i+blockSize])
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt. The returned plaintext is exactly
// len(ciphertext) bytes, including any trailing zero padding Encrypt
// introduced; ciphertext whose length isn't a multiple of the AES
// block size is rejected.
func Decrypt(secret SharedSecret, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d not a multiple of block size %d", len(ciphertext), blockSize)
	}
	block, err := aes.NewCipher(secret[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: building AES cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += blockSize {
		block.Decrypt(plaintext[i:i+blockSize], ciphertext[i:i+blockSize])
	}
	return plaintext, nil
}
