package dhtserver

import (
	"crypto/sha1"
	"sync"
	"time"
)

// tokenLen is the length of a get_peers token: the first 2 bytes of
// SHA1(secret || peer_ip).
const tokenLen = 2

// tokenSecrets holds a DHT server's current and previous 20-byte secrets.
// A token issued just before rotation must still validate afterward, so
// Check tries both.
type tokenSecrets struct {
	mu       sync.Mutex
	current  []byte
	previous []byte
}

func newTokenSecrets(initial []byte) *tokenSecrets {
	return &tokenSecrets{current: initial}
}

// Rotate replaces the current secret with next, demoting the old current
// to previous. Called every 300s by the server's secret-rotation ticker.
func (t *tokenSecrets) Rotate(next []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.previous = t.current
	t.current = next
}

// For computes the token for peerIP under the current secret.
func (t *tokenSecrets) For(peerIP []byte) []byte {
	t.mu.Lock()
	secret := t.current
	t.mu.Unlock()
	return tokenFor(secret, peerIP)
}

// Check reports whether token is valid for peerIP under either the current
// or previous secret.
func (t *tokenSecrets) Check(token, peerIP []byte) bool {
	t.mu.Lock()
	current, previous := t.current, t.previous
	t.mu.Unlock()

	if tokensEqual(token, tokenFor(current, peerIP)) {
		return true
	}
	if previous != nil && tokensEqual(token, tokenFor(previous, peerIP)) {
		return true
	}
	return false
}

func tokenFor(secret, peerIP []byte) []byte {
	h := sha1.New()
	h.Write(secret)
	h.Write(peerIP)
	sum := h.Sum(nil)
	return sum[:tokenLen]
}

func tokensEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// secretRotationPeriod is how often a server mints a new token secret.
const secretRotationPeriod = 300 * time.Second
