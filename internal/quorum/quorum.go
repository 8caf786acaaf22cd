// Package quorum implements detached ed25519 signing and M-of-N threshold
// verification over canonicalized byte messages.
//
// Keys travel as hex strings in configuration and signature bundles: public
// keys are 32 bytes, secret keys are either a 32-byte seed or a 64-byte
// full private key (seed plus public half).
package quorum

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/syncforge/syncforge/internal/canon"
)

// ErrInvalidSignature is returned by VerifyEnvelope when the envelope's
// detached signature does not verify.
var ErrInvalidSignature = errors.New("INVALID_SIGNATURE")

// SignatureEntry is one (public key, signature) pair in a signed bundle.
type SignatureEntry struct {
	Key string `json:"key"`
	Sig string `json:"sig"`
}

// KeyPair holds a parsed signing key and its public half.
type KeyPair struct {
	Public ed25519.PublicKey
	Secret ed25519.PrivateKey
}

// ParseSecretKey parses a hex-encoded ed25519 secret. A 32-byte value is
// treated as a seed, a 64-byte value as a full private key.
func ParseSecretKey(secretHex string) (*KeyPair, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(secretHex))
	if err != nil {
		return nil, fmt.Errorf("decode secret key hex: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		sk := ed25519.NewKeyFromSeed(raw)
		return &KeyPair{Public: sk.Public().(ed25519.PublicKey), Secret: sk}, nil
	case ed25519.PrivateKeySize:
		sk := ed25519.PrivateKey(raw)
		return &KeyPair{Public: sk.Public().(ed25519.PublicKey), Secret: sk}, nil
	default:
		return nil, fmt.Errorf("invalid ed25519 secret key length %d", len(raw))
	}
}

// ParseSecretKeys parses a comma-separated list of hex secrets, skipping
// empty elements.
func ParseSecretKeys(csv string) ([]*KeyPair, error) {
	var out []*KeyPair
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kp, err := ParseSecretKey(part)
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, nil
}

// SplitKeyList splits a comma-separated hex key list into its non-empty,
// trimmed elements without decoding them.
func SplitKeyList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Sign produces a deterministic detached signature over message.
func Sign(message []byte, secret ed25519.PrivateKey) []byte {
	return ed25519.Sign(secret, message)
}

// Verify reports whether sig is a valid detached signature of message
// under pub.
func Verify(message, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// VerifyQuorum reports whether at least threshold distinct valid
// (public key, signature) pairs exist for message.
//
// Candidate public keys are deduplicated case-insensitively. Signatures are
// processed in input order; each signature scans the candidate keys until
// one verifies, that (key, signature) pair is consumed, and the scan moves
// to the next signature. A key may validate several distinct signatures,
// but the exact same pair never counts twice. threshold <= 0 never passes.
func VerifyQuorum(message []byte, sigsHex, pubkeysHex []string, threshold int) bool {
	if threshold <= 0 {
		return false
	}

	keys := make([]string, 0, len(pubkeysHex))
	keySet := make(map[string]struct{}, len(pubkeysHex))
	for _, pk := range pubkeysHex {
		pk = strings.ToLower(strings.TrimSpace(pk))
		if pk == "" {
			continue
		}
		if _, dup := keySet[pk]; dup {
			continue
		}
		keySet[pk] = struct{}{}
		keys = append(keys, pk)
	}

	seen := make(map[string]struct{})
	valid := 0

	for _, sigHex := range sigsHex {
		sig, err := hex.DecodeString(strings.TrimSpace(sigHex))
		if err != nil {
			continue
		}
		for _, pkHex := range keys {
			pairKey := pkHex + ":" + strings.ToLower(strings.TrimSpace(sigHex))
			if _, consumed := seen[pairKey]; consumed {
				continue
			}
			pk, err := hex.DecodeString(pkHex)
			if err != nil {
				continue
			}
			if Verify(message, sig, pk) {
				valid++
				seen[pairKey] = struct{}{}
				break
			}
		}
		if valid >= threshold {
			return true
		}
	}
	return valid >= threshold
}

// SignObject canonicalizes obj and signs it with every given key, returning
// one SignatureEntry per key.
func SignObject(obj any, keys []*KeyPair) ([]SignatureEntry, error) {
	msg, err := canon.Marshal(obj)
	if err != nil {
		return nil, err
	}
	out := make([]SignatureEntry, 0, len(keys))
	for _, kp := range keys {
		out = append(out, SignatureEntry{
			Key: hex.EncodeToString(kp.Public),
			Sig: hex.EncodeToString(Sign(msg, kp.Secret)),
		})
	}
	return out, nil
}

// VerifyEnvelope checks the detached signature of a signed envelope: the
// envelope is canonicalized with its "signature" field removed and verified
// against pub.
func VerifyEnvelope(envelope map[string]any, pub ed25519.PublicKey) error {
	sigHex, _ := envelope["signature"].(string)
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return ErrInvalidSignature
	}

	unsigned := make(map[string]any, len(envelope))
	for k, v := range envelope {
		if k == "signature" {
			continue
		}
		unsigned[k] = v
	}
	msg, err := canon.Marshal(unsigned)
	if err != nil {
		return err
	}
	if !Verify(msg, sig, pub) {
		return ErrInvalidSignature
	}
	return nil
}
