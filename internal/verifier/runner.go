package verifier

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/syncforge/syncforge/internal/auditlog"
	"github.com/syncforge/syncforge/internal/quorum"
	"go.uber.org/zap"
)

var forgeVerifyRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forge_verify_runs_total",
	Help: "Batch verification runs by outcome.",
}, []string{"result"})

// RunnerConfig controls the in-process periodic verification loop.
type RunnerConfig struct {
	Interval   time.Duration
	PlainPath  string
	SignedPath string
}

// Runner re-runs batch verification on an interval so the attestation files
// the admission gate reads stay current without an external scheduler.
type Runner struct {
	ledger auditlog.Ledger
	keys   []*quorum.KeyPair
	cfg    RunnerConfig
	logger *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(ledger auditlog.Ledger, keys []*quorum.KeyPair, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Runner{ledger: ledger, keys: keys, cfg: cfg, logger: logger}
}

// Start runs the verification loop until stop is closed. A closed channel
// broadcasts to every receiver, so the loop and the caller's own shutdown
// wait never race over a single delivered value.
func (r *Runner) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
			if _, err := Run(ctx, r.ledger, r.cfg.PlainPath, r.cfg.SignedPath, r.keys, r.logger); err != nil {
				forgeVerifyRunsTotal.WithLabelValues("failure").Inc()
				r.logger.Error("periodic verification failed", zap.Error(err))
			} else {
				forgeVerifyRunsTotal.WithLabelValues("success").Inc()
			}
			cancel()
		case <-stop:
			return
		}
	}
}
