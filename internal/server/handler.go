// Package server exposes the admission pipeline and the audit chain over
// HTTP. The registry-configuration CRUD surface of the wider platform is a
// separate service; this is only the write/attestation surface.
package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/syncforge/syncforge/internal/admission"
	"github.com/syncforge/syncforge/internal/auditlog"
	"github.com/syncforge/syncforge/internal/nonce"
	"github.com/syncforge/syncforge/internal/sequencer"
	"go.uber.org/zap"
)

// Handler serves write admission and read-only audit endpoints.
type Handler struct {
	pipeline *admission.Pipeline
	ledger   auditlog.Ledger
	logger   *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(pipeline *admission.Pipeline, ledger auditlog.Ledger, logger *zap.Logger) *Handler {
	return &Handler{pipeline: pipeline, ledger: ledger, logger: logger}
}

// Register mounts the routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/write", h.Write)
	a := rg.Group("/audit")
	{
		a.GET("/:registry", h.Overview)
		a.GET("/:registry/entries", h.Entries)
	}
}

// Write handles POST /write — runs one request through the admission
// pipeline.
func (h *Handler) Write(c *gin.Context) {
	var req admission.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.IntentID == "" || req.Registry == "" || req.ActorID == "" || req.Nonce == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "intent_id, registry, actor_id and nonce are required"})
		return
	}

	result, err := h.pipeline.Admit(c.Request.Context(), req)
	if err != nil {
		status, code := admissionStatus(err)
		RecordAdmission(code)
		if status == http.StatusInternalServerError {
			h.logger.Error("write admission failed",
				zap.String("registry", req.Registry),
				zap.Error(err),
			)
		}
		c.JSON(status, gin.H{"error": code})
		return
	}

	RecordAdmission("ok")
	c.JSON(http.StatusOK, gin.H{"ok": true, "seq": result.Seq})
}

// admissionStatus maps a pipeline error to an HTTP status and a stable
// error code for the response body.
func admissionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, admission.ErrInvalidIntent):
		return http.StatusConflict, "INVALID_COMMIT_INTENT"
	case errors.Is(err, nonce.ErrReplay):
		return http.StatusConflict, "REPLAY"
	case errors.Is(err, admission.ErrAttestationDeny):
		return http.StatusForbidden, "ATTESTATION_DENY"
	case errors.Is(err, sequencer.ErrMissing):
		return http.StatusUnprocessableEntity, "SEQUENCER_MISSING"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// entryView is the JSON shape of one audit entry, hashes hex-encoded.
type entryView struct {
	Registry string          `json:"registry"`
	AuditSeq int64           `json:"audit_seq"`
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload"`
	HashPrev string          `json:"hash_prev"`
	HashSelf string          `json:"hash_self"`
}

func viewOf(e *auditlog.Entry) entryView {
	return entryView{
		Registry: e.Registry,
		AuditSeq: e.AuditSeq,
		Action:   e.Action,
		Payload:  e.Material,
		HashPrev: hex.EncodeToString(e.HashPrev),
		HashSelf: hex.EncodeToString(e.HashSelf),
	}
}

// Overview handles GET /audit/:registry — chain length and current head.
func (h *Handler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	registry := c.Param("registry")

	count, err := h.ledger.Count(ctx, registry)
	if err != nil {
		h.logger.Error("audit count", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	head := ""
	tail, err := h.ledger.Tail(ctx, registry)
	if err != nil {
		h.logger.Error("audit tail", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger head"})
		return
	}
	if tail != nil {
		head = hex.EncodeToString(tail.HashSelf)
	}

	c.JSON(http.StatusOK, gin.H{
		"registry": registry,
		"entries":  count,
		"head":     head,
	})
}

// Entries handles GET /audit/:registry/entries — a page of chain entries.
func (h *Handler) Entries(c *gin.Context) {
	ctx := c.Request.Context()
	registry := c.Param("registry")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.ledger.Entries(ctx, registry, limit, offset)
	if err != nil {
		h.logger.Error("audit entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, viewOf(e))
	}
	c.JSON(http.StatusOK, gin.H{
		"registry": registry,
		"entries":  views,
		"limit":    limit,
		"offset":   offset,
	})
}
