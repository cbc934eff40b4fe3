package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Fingerprint is the content address of one (task, prompt, candidate) triple.
type Fingerprint Hash

func (f Fingerprint) String() string { return Hash(f).String() }
func (f Fingerprint) IsEmpty() bool  { return Hash(f).IsEmpty() }

// ComputeFingerprint digests task, trimmed prompt and trimmed candidate,
// separated by NUL bytes. The task name is not trimmed.
func ComputeFingerprint(taskName, prompt, candidate string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(taskName))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(candidate)))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
