// Package attestation defines per-registry trust decisions and resolves the
// current decision from signed or plain sources.
package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/syncforge/syncforge/internal/quorum"
)

// Decisions a registry can carry.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// FarFuture is the validity horizon for decisions with no expiry.
const FarFuture = "2999-01-01T00:00:00Z"

// Epoch is the already-expired validity used for deny decisions.
const Epoch = "1970-01-01T00:00:00.000Z"

// Attestation is one registry's trust decision plus verification metadata.
type Attestation struct {
	Decision   string `json:"decision"`
	ValidUntil string `json:"valid_until"`
	Head       string `json:"head,omitempty"`
	Entries    int64  `json:"entries,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Allowed reports whether the decision admits writes.
func (a *Attestation) Allowed() bool {
	return a != nil && a.Decision == DecisionAllow
}

// DefaultAllow is the decision used when no attestation source yields one.
func DefaultAllow() *Attestation {
	return &Attestation{Decision: DecisionAllow, ValidUntil: FarFuture}
}

// Bundle is a signed attestation map. The signatures cover the canonical
// encoding of the whole Att map as a single message, not each registry
// individually, so the map is kept raw until its quorum has been checked.
type Bundle struct {
	Att        json.RawMessage `json:"att"`
	Signatures []BundleSig     `json:"signatures"`
}

// BundleSig is one signature in a bundle. The wire form is either a
// {key, sig} object or a bare hex string.
type BundleSig struct {
	Key string
	Sig string
}

// UnmarshalJSON accepts both bundle signature forms.
func (b *BundleSig) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		b.Sig = bare
		return nil
	}
	var entry quorum.SignatureEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Errorf("decode bundle signature: %w", err)
	}
	b.Key = entry.Key
	b.Sig = entry.Sig
	return nil
}

// MarshalJSON emits the {key, sig} object form.
func (b BundleSig) MarshalJSON() ([]byte, error) {
	return json.Marshal(quorum.SignatureEntry{Key: b.Key, Sig: b.Sig})
}

// SigHexes returns the bundle's signature hex strings in input order.
func (b *Bundle) SigHexes() []string {
	out := make([]string, 0, len(b.Signatures))
	for _, s := range b.Signatures {
		if s.Sig != "" {
			out = append(out, s.Sig)
		}
	}
	return out
}
