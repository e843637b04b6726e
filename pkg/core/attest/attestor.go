// Package attest models the trusted compute boundary. The attestor signs a
// canonical encoding of each match decision with Ed25519 so a settlement
// verifier can check the decision without re-running the matching engine. The
// local signer stands in for a real enclave or threshold-signing service; the
// protocol shape (canonical message, sign, verify, unavailable) is what a
// production boundary must keep.
package attest

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"

	"github.com/fairlend/fairlend/pkg/core"
)

// Attestation is a signed match decision. Message is the canonical encoding,
// Signature the Ed25519 signature over it, Timestamp the epoch-millisecond
// instant baked into the message.
type Attestation struct {
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// CanonicalMessage builds the byte string a verifier recomputes
// independently. The layout is fixed:
//
//	raw bytes of lendOrderID || raw bytes of borrowOrderID ||
//	score as u64 little-endian || epoch-ms timestamp as u64 little-endian
func CanonicalMessage(lendOrderID, borrowOrderID string, score int64, tsMillis int64) []byte {
	msg := make([]byte, 0, len(lendOrderID)+len(borrowOrderID)+16)
	msg = append(msg, lendOrderID...)
	msg = append(msg, borrowOrderID...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(score))
	msg = binary.LittleEndian.AppendUint64(msg, uint64(tsMillis))
	return msg
}

// Attestor holds the signing key of the attestation authority. A nil Attestor
// is valid and represents an unprovisioned enclave: every Sign call fails
// with ErrEnclaveUnavailable.
type Attestor struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates an attestor with a fresh random key.
func Generate() (*Attestor, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate attestor key: %w", err)
	}
	return &Attestor{priv: priv, pub: pub}, nil
}

// FromSeed deterministically derives the attestor from a 32-byte seed.
func FromSeed(seed []byte) (*Attestor, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("attestor seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Attestor{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// FromSeedHex derives the attestor from a hex-encoded seed, the form the
// key arrives in from configuration.
func FromSeedHex(seedHex string) (*Attestor, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode attestor seed: %w", err)
	}
	return FromSeed(seed)
}

// PublicKey returns the verification key for out-of-band registration with a
// settlement verifier.
func (a *Attestor) PublicKey() []byte {
	if a == nil || a.pub == nil {
		return nil
	}
	out := make([]byte, len(a.pub))
	copy(out, a.pub)
	return out
}

// SeedHex exports the signing seed. Keep it out of logs.
func (a *Attestor) SeedHex() string {
	if a == nil || a.priv == nil {
		return ""
	}
	return hex.EncodeToString(a.priv.Seed())
}

// Sign produces an attestation over the match decision. The context carries
// the caller's timeout: in a deployment where the enclave is remote, a
// deadline hit here must resolve to "no match committed", so expiry is
// reported as ErrEnclaveUnavailable.
func (a *Attestor) Sign(ctx context.Context, lendOrderID, borrowOrderID string, score int64, tsMillis int64) (Attestation, error) {
	if a == nil || a.priv == nil {
		return Attestation{}, core.ErrEnclaveUnavailable
	}
	if err := ctx.Err(); err != nil {
		return Attestation{}, fmt.Errorf("%w: %v", core.ErrEnclaveUnavailable, err)
	}
	msg := CanonicalMessage(lendOrderID, borrowOrderID, score, tsMillis)
	return Attestation{
		Message:   msg,
		Signature: ed25519.Sign(a.priv, msg),
		Timestamp: tsMillis,
	}, nil
}

// Verify checks an attestation signature against a public key. Malformed
// input of any shape yields false, never a panic.
func Verify(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
