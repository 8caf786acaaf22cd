// Package bootstrap verifies the build manifest before the engine starts
// serving. A manifest records the build's hash signed by one or more
// release keys; a failed check is fatal.
package bootstrap

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/syncforge/syncforge/internal/quorum"
)

// ErrBuildTampered is returned when the manifest's signatures do not verify.
var ErrBuildTampered = errors.New("BUILD_TAMPERED")

// manifest is the on-disk build manifest shape. Signatures may be a single
// hex string or a list of hex strings / {sig} objects.
type manifest struct {
	Hash       string            `json:"hash"`
	Signature  string            `json:"signature,omitempty"`
	Signatures []json.RawMessage `json:"signatures,omitempty"`
}

// Config selects the verification mode: a key quorum when PublicKeys and
// Threshold are set, otherwise a single key.
type Config struct {
	Path         string
	SinglePubHex string
	PublicKeys   []string
	Threshold    int
}

// VerifyManifest checks the build manifest against the configured keys.
// The signed message is the manifest's hash field taken as raw bytes.
func VerifyManifest(cfg Config) error {
	raw, err := os.ReadFile(cfg.Path)
	if err != nil {
		return fmt.Errorf("read build manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode build manifest: %w", err)
	}

	msg := []byte(m.Hash)

	if len(cfg.PublicKeys) > 0 && cfg.Threshold > 0 {
		sigs := collectSigs(&m)
		if !quorum.VerifyQuorum(msg, sigs, cfg.PublicKeys, cfg.Threshold) {
			return ErrBuildTampered
		}
		return nil
	}

	if cfg.SinglePubHex == "" {
		return errors.New("no manifest verification key configured")
	}
	pub, err := hex.DecodeString(cfg.SinglePubHex)
	if err != nil {
		return fmt.Errorf("decode manifest public key: %w", err)
	}
	sig, err := hex.DecodeString(m.Signature)
	if err != nil {
		return ErrBuildTampered
	}
	if !quorum.Verify(msg, sig, pub) {
		return ErrBuildTampered
	}
	return nil
}

// collectSigs gathers signature hex strings from the signatures list
// (string or {sig} elements), falling back to the single signature field.
func collectSigs(m *manifest) []string {
	var out []string
	for _, raw := range m.Signatures {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Sig string `json:"sig"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Sig != "" {
			out = append(out, obj.Sig)
		}
	}
	if len(out) == 0 && m.Signature != "" {
		out = append(out, m.Signature)
	}
	return out
}
