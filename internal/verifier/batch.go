// Package verifier rebuilds every registry's audit chain from scratch and
// re-certifies it.
//
// The verifier's output is the attestation fetcher's input: an intact chain
// yields an allow decision that gates future writes; a broken one yields a
// deny that stops them. Signing the emitted map with a quorum of keys closes
// the trust loop.
package verifier

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syncforge/syncforge/internal/attestation"
	"github.com/syncforge/syncforge/internal/auditlog"
	"github.com/syncforge/syncforge/internal/canon"
	"github.com/syncforge/syncforge/internal/quorum"
	"go.uber.org/zap"
)

// mismatchReason is the reason reported for any broken chain, whatever the
// position or nature of the break.
const mismatchReason = "audit chain mismatch"

// BatchVerify replays the whole ledger and emits one attestation per
// registry. A registry's chain is replayed from an empty previous hash;
// the first linkage or self-hash mismatch marks it broken. Entries after a
// break are still counted, but the reported head freezes at the last hash
// observed when the break was found. A store error aborts the entire run;
// nothing partial is emitted.
func BatchVerify(ctx context.Context, ledger auditlog.Ledger) (map[string]*attestation.Attestation, error) {
	out := make(map[string]*attestation.Attestation)

	var (
		current  string
		prevHash []byte
		head     []byte
		count    int64
		intact   bool
	)

	flush := func() {
		if current == "" {
			return
		}
		att := &attestation.Attestation{
			Entries: count,
			Head:    hex.EncodeToString(head),
		}
		if intact {
			att.Decision = attestation.DecisionAllow
			att.ValidUntil = attestation.FarFuture
		} else {
			att.Decision = attestation.DecisionDeny
			att.ValidUntil = attestation.Epoch
			att.Reason = mismatchReason
		}
		out[current] = att
	}

	err := ledger.ScanAll(ctx, func(e *auditlog.Entry) error {
		if e.Registry != current {
			flush()
			current = e.Registry
			prevHash = nil
			head = nil
			count = 0
			intact = true
		}

		count++
		if !intact {
			// Past the break: count for reporting, freeze the head.
			return nil
		}

		if !bytes.Equal(e.HashPrev, prevHash) {
			intact = false
			head = e.HashSelf
			return nil
		}

		// Decode with UseNumber so integer digits survive the round trip;
		// a float64 decode would round large integers and re-canonicalize
		// honest material to different bytes than were hashed at append.
		dec := json.NewDecoder(bytes.NewReader(e.Material))
		dec.UseNumber()
		var m any
		if err := dec.Decode(&m); err != nil {
			intact = false
			head = e.HashSelf
			return nil
		}
		canonical, err := canon.Marshal(m)
		if err != nil {
			intact = false
			head = e.HashSelf
			return nil
		}

		expected := canon.Digest(append(append([]byte{}, prevHash...), canonical...))
		if !bytes.Equal(e.HashSelf, expected) {
			intact = false
			head = e.HashSelf
			return nil
		}

		prevHash = e.HashSelf
		head = e.HashSelf
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}

	flush()
	return out, nil
}

// WritePlain writes the attestation map as indented JSON, creating parent
// directories as needed.
func WritePlain(path string, atts map[string]*attestation.Attestation) error {
	return writeJSON(path, atts)
}

// SignBundle canonicalizes the attestation map and signs it with every key,
// returning the distributable bundle.
func SignBundle(atts map[string]*attestation.Attestation, keys []*quorum.KeyPair) (*attestation.Bundle, error) {
	entries, err := quorum.SignObject(atts, keys)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(atts)
	if err != nil {
		return nil, err
	}

	bundle := &attestation.Bundle{Att: raw}
	for _, e := range entries {
		bundle.Signatures = append(bundle.Signatures, attestation.BundleSig{Key: e.Key, Sig: e.Sig})
	}
	return bundle, nil
}

// WriteSigned writes a signed bundle as indented JSON.
func WriteSigned(path string, bundle *attestation.Bundle) error {
	return writeJSON(path, bundle)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Run executes one full verification pass: replay, plain output, and the
// signed bundle when signing keys are present.
func Run(ctx context.Context, ledger auditlog.Ledger, plainPath, signedPath string, keys []*quorum.KeyPair, logger *zap.Logger) (map[string]*attestation.Attestation, error) {
	atts, err := BatchVerify(ctx, ledger)
	if err != nil {
		return nil, err
	}

	if plainPath != "" {
		if err := WritePlain(plainPath, atts); err != nil {
			return nil, err
		}
	}

	if len(keys) > 0 && signedPath != "" {
		bundle, err := SignBundle(atts, keys)
		if err != nil {
			return nil, err
		}
		if err := WriteSigned(signedPath, bundle); err != nil {
			return nil, err
		}
		logger.Info("signed attestation bundle written",
			zap.String("path", signedPath),
			zap.Int("signatures", len(bundle.Signatures)),
		)
	}

	logger.Info("attestations emitted", zap.Int("registries", len(atts)))
	return atts, nil
}
