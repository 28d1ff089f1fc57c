// Package token derives the unguessable webhook tokens that identify a line.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// digestBytes is the portion of the digest kept for the webhook token.
// 24 bytes encode to 32 URL-safe characters.
const digestBytes = 24

// Derive computes the webhook token for a line: a BLAKE2b-256 digest of the
// DID keyed with the install secret, truncated and base64url-encoded. Stable
// for a given secret, fixed length, and not predictable from the DID alone.
func Derive(did, installSecret string) string {
	h, err := blake2b.New256([]byte(installSecret))
	if err != nil {
		// Only reachable with a key above blake2b's 64-byte limit; install
		// secrets are 32 hex characters.
		panic(fmt.Sprintf("token: derive: %v", err))
	}
	h.Write([]byte(did))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:digestBytes])
}

// NewInstallSecret generates the per-install secret that keys token
// derivation. It is generated once, persisted, and never exposed in URLs,
// logs or errors. Rotating it rotates every webhook URL.
func NewInstallSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
