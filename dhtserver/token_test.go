package dhtserver

import "testing"

func TestTokenValidatesUnderCurrentSecret(t *testing.T) {
	ts := newTokenSecrets([]byte("secret-epoch-0"))
	ip := []byte{203, 0, 113, 7}

	tok := ts.For(ip)
	if !ts.Check(tok, ip) {
		t.Error("Check() = false for a token just issued under the current secret")
	}
}

func TestTokenValidatesUnderPreviousSecret(t *testing.T) {
	ts := newTokenSecrets([]byte("secret-epoch-0"))
	ip := []byte{203, 0, 113, 7}

	tok := ts.For(ip)
	ts.Rotate([]byte("secret-epoch-1"))

	if !ts.Check(tok, ip) {
		t.Error("Check() = false for a token from the immediately preceding epoch, want true")
	}
}

func TestTokenRejectedTwoEpochsBack(t *testing.T) {
	ts := newTokenSecrets([]byte("secret-epoch-0"))
	ip := []byte{203, 0, 113, 7}

	tok := ts.For(ip)
	ts.Rotate([]byte("secret-epoch-1"))
	ts.Rotate([]byte("secret-epoch-2"))

	if ts.Check(tok, ip) {
		t.Error("Check() = true for a token two rotations old, want false")
	}
}

func TestTokenRejectedForDifferentIP(t *testing.T) {
	ts := newTokenSecrets([]byte("secret-epoch-0"))
	tok := ts.For([]byte{203, 0, 113, 7})

	if ts.Check(tok, []byte{203, 0, 113, 8}) {
		t.Error("Check() = true for a token bound to a different IP, want false")
	}
}
