package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// CartTokenBytes is the entropy of a guest cart session token.
const CartTokenBytes = 32

// NewCartToken returns a fresh opaque guest cart token (64 hex chars).
func NewCartToken() (string, error) {
	b := make([]byte, CartTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate cart token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidCartToken reports whether s has the shape of a token from NewCartToken.
func ValidCartToken(s string) bool {
	if len(s) != CartTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// CartTokenHasher turns a guest token into the key the cart is stored under,
// so a leaked carts table does not hand out usable session cookies.
type CartTokenHasher struct {
	key []byte
}

// NewCartTokenHasher creates a hasher keyed with secret (at most 64 bytes are used).
func NewCartTokenHasher(secret string) *CartTokenHasher {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	return &CartTokenHasher{key: key}
}

// Hash returns the hex keyed BLAKE2b-256 digest of token.
func (h *CartTokenHasher) Hash(token string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// only possible with a key longer than 64 bytes, which NewCartTokenHasher prevents
		panic(err)
	}
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
