package attestation

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/syncforge/syncforge/internal/canon"
	"github.com/syncforge/syncforge/internal/quorum"
	"go.uber.org/zap"
)

// ErrQuorumFailed marks a signed source whose signatures did not reach the
// configured threshold. It never surfaces to admission callers: a failed
// quorum degrades to the plain source, it does not produce a deny.
var ErrQuorumFailed = errors.New("ATTESTATION_SIGNATURE_QUORUM_FAILED")

// FetcherConfig locates attestation sources and the keys that gate the
// signed one.
type FetcherConfig struct {
	SignedPath string
	PlainPath  string
	PublicKeys []string // hex-encoded ed25519 public keys
	Threshold  int
}

// Fetcher resolves the current trust decision for a registry.
type Fetcher struct {
	cfg    FetcherConfig
	logger *zap.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	return &Fetcher{cfg: cfg, logger: logger}
}

// Fetch returns the registry's attestation. Resolution order:
//
//  1. The signed bundle, when public keys and a positive threshold are
//     configured and the bundle's quorum verifies.
//  2. The plain attestation file.
//  3. A default allow with a far-future validity.
//
// Any failure in a source (missing file, bad JSON, failed quorum) discards
// that source and falls through; deny can only ever come from an actual
// attestation entry.
func (f *Fetcher) Fetch(registry string) *Attestation {
	if len(f.cfg.PublicKeys) > 0 && f.cfg.Threshold > 0 && f.cfg.SignedPath != "" {
		if att, err := f.fetchSigned(registry); err == nil && att != nil {
			return att
		} else if err != nil {
			f.logger.Debug("signed attestation source unusable",
				zap.String("registry", registry),
				zap.Error(err),
			)
		}
	}

	if f.cfg.PlainPath != "" {
		if att := f.fetchPlain(registry); att != nil {
			return att
		}
	}

	return DefaultAllow()
}

// Allowed reports whether the registry's resolved decision admits writes.
func (f *Fetcher) Allowed(registry string) bool {
	return f.Fetch(registry).Allowed()
}

func (f *Fetcher) fetchSigned(registry string) (*Attestation, error) {
	raw, err := os.ReadFile(f.cfg.SignedPath)
	if err != nil {
		return nil, err
	}

	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, err
	}

	// The message is the canonical form of the att map as signed.
	var attMap any
	if err := json.Unmarshal(bundle.Att, &attMap); err != nil {
		return nil, err
	}
	msg, err := canon.Marshal(attMap)
	if err != nil {
		return nil, err
	}

	if !quorum.VerifyQuorum(msg, bundle.SigHexes(), f.cfg.PublicKeys, f.cfg.Threshold) {
		return nil, ErrQuorumFailed
	}

	var atts map[string]*Attestation
	if err := json.Unmarshal(bundle.Att, &atts); err != nil {
		return nil, err
	}
	return atts[registry], nil
}

func (f *Fetcher) fetchPlain(registry string) *Attestation {
	raw, err := os.ReadFile(f.cfg.PlainPath)
	if err != nil {
		return nil
	}
	var atts map[string]*Attestation
	if err := json.Unmarshal(raw, &atts); err != nil {
		f.logger.Debug("plain attestation source unreadable", zap.Error(err))
		return nil
	}
	return atts[registry]
}
