// Package admission orchestrates the write-admission pipeline: commit
// intent check, nonce replay protection, attestation gating, sequencing and
// the hash-chained ledger append.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncforge/syncforge/internal/auditlog"
	"github.com/syncforge/syncforge/internal/intent"
	"github.com/syncforge/syncforge/internal/nonce"
	"github.com/syncforge/syncforge/internal/sequencer"
	"go.uber.org/zap"
)

// Errors terminal to a single admission attempt.
var (
	// ErrInvalidIntent covers a missing intent, a non-pending intent, and
	// an intent that does not authorize the target registry.
	ErrInvalidIntent = errors.New("INVALID_COMMIT_INTENT")

	// ErrAttestationDeny means the registry's current trust decision is
	// not allow. The request's nonce is consumed before this check, so a
	// retry with the same nonce fails as a replay even though nothing was
	// written.
	ErrAttestationDeny = errors.New("ATTESTATION_DENY")
)

// Request is one write admission request.
type Request struct {
	IntentID string `json:"intent_id"`
	Registry string `json:"registry"`
	ActorID  string `json:"actor_id"`
	Nonce    string `json:"nonce"`
	Payload  any    `json:"payload"`
}

// Result is the successful outcome of an admission.
type Result struct {
	Seq int64 `json:"seq"`
}

// AttestationGate resolves the current trust decision for a registry.
type AttestationGate interface {
	Allowed(registry string) bool
}

// Pipeline admits one write request at a time per call. All dependencies
// are injected explicitly; the pipeline holds no global state.
type Pipeline struct {
	intents intent.Store
	window  *nonce.Window
	gate    AttestationGate
	seq     sequencer.Sequencer
	ledger  auditlog.Ledger
	logger  *zap.Logger
}

// New creates a Pipeline.
func New(
	intents intent.Store,
	window *nonce.Window,
	gate AttestationGate,
	seq sequencer.Sequencer,
	ledger auditlog.Ledger,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		intents: intents,
		window:  window,
		gate:    gate,
		seq:     seq,
		ledger:  ledger,
		logger:  logger,
	}
}

// Admit runs the admission state machine for req:
//
//  1. The named intent must be pending and authorize the registry.
//  2. The (actor, nonce) pair must be fresh; it is consumed here and stays
//     consumed whatever happens next.
//  3. The registry's attestation must be allow.
//  4. The sequencer issues the write's seq.
//  5. The ledger appends the chained entry.
//  6. The intent transitions to complete; any failure in 5 or 6 instead
//     transitions it to incomplete and re-raises the failure.
func (p *Pipeline) Admit(ctx context.Context, req Request) (*Result, error) {
	in, err := p.intents.Get(ctx, req.IntentID)
	if err != nil {
		if errors.Is(err, intent.ErrNotFound) {
			return nil, ErrInvalidIntent
		}
		return nil, fmt.Errorf("load intent: %w", err)
	}
	if !in.Authorizes(req.Registry) {
		return nil, ErrInvalidIntent
	}

	if err := p.window.Remember(req.ActorID, req.Nonce); err != nil {
		return nil, err
	}

	if !p.gate.Allowed(req.Registry) {
		p.logger.Warn("write denied by attestation",
			zap.String("registry", req.Registry),
			zap.String("intent_id", req.IntentID),
		)
		return nil, ErrAttestationDeny
	}

	seq, err := p.seq.Next(ctx, req.Registry)
	if err != nil {
		return nil, err
	}

	if err := p.append(ctx, req, seq); err != nil {
		if ferr := p.intents.SetStatus(ctx, req.IntentID, intent.StatusIncomplete); ferr != nil {
			p.logger.Error("intent finalization failed after append error",
				zap.String("intent_id", req.IntentID),
				zap.Error(ferr),
			)
		}
		return nil, err
	}

	p.logger.Info("write admitted",
		zap.String("registry", req.Registry),
		zap.String("intent_id", req.IntentID),
		zap.Int64("seq", seq),
	)
	return &Result{Seq: seq}, nil
}

// append performs the ledger append and the complete transition as one
// logical step for error handling: a failure in either leaves the intent
// incomplete.
func (p *Pipeline) append(ctx context.Context, req Request, seq int64) error {
	if _, err := p.ledger.Append(ctx, req.Registry, "write", seq, req.Payload); err != nil {
		return err
	}
	if err := p.intents.SetStatus(ctx, req.IntentID, intent.StatusComplete); err != nil {
		return fmt.Errorf("finalize intent: %w", err)
	}
	return nil
}

// Reconcile re-derives an intent's status from ledger presence. The append
// and the status update are separate durable writes; a crash between them
// leaves an incomplete intent whose entry actually committed. Callers that
// observe an unknown outcome re-check here rather than resubmitting.
func (p *Pipeline) Reconcile(ctx context.Context, intentID, registry string, seq int64) error {
	in, err := p.intents.Get(ctx, intentID)
	if err != nil {
		return err
	}
	if in.Status == intent.StatusComplete {
		return nil
	}

	present, err := p.ledger.HasSeq(ctx, registry, seq)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	p.logger.Info("reconciled intent from ledger presence",
		zap.String("intent_id", intentID),
		zap.String("registry", registry),
		zap.Int64("seq", seq),
	)
	return p.intents.SetStatus(ctx, intentID, intent.StatusComplete)
}
