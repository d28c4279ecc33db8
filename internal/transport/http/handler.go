// Package httptransport is the thin HTTP layer over the reconciler. The
// callers are the two platforms' database hooks and operators, never end
// users; all business logic stays in the services.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"enrollsync/internal/platform/middleware"
	"enrollsync/internal/reconcile"
	"enrollsync/internal/registration"
	"enrollsync/pkg/domain"
	dErrors "enrollsync/pkg/domain-errors"
	"enrollsync/pkg/platform/httputil"
)

// ReconcileService is what the handlers need from the reconciler.
type ReconcileService interface {
	Sweep(ctx context.Context, orgID domain.OrgID) (*reconcile.SweepResult, error)
	HandleStatusChange(ctx context.Context, change reconcile.StatusChange) error
}

type Handler struct {
	reconciler ReconcileService
	logger     *slog.Logger
}

func NewHandler(reconciler ReconcileService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{reconciler: reconciler, logger: logger}
}

// Register mounts the trigger routes. The webhook secret covers both the
// hook and the manual sweep; health and metrics stay open on the root
// router for probes and scrapers.
func (h *Handler) Register(r chi.Router, webhookSecret string) {
	triggers := chi.NewRouter()
	triggers.Use(middleware.RequireWebhookSecret(webhookSecret, h.logger))
	triggers.Post("/hooks/registration", h.handleStatusChange)
	triggers.Post("/sweep/{orgID}", h.handleSweep)

	r.Mount("/", triggers)
}

// statusChangePayload is the hook body the platforms send on a row change.
// Before/After carry the status column of the old and new row state.
type statusChangePayload struct {
	RegistrationID string `json:"registration_id"`
	Before         string `json:"before"`
	After          string `json:"after"`
	ReviewedBy     string `json:"reviewed_by"`
	ReviewedAt     string `json:"reviewed_at"`
	Reason         string `json:"reason"`
}

func (h *Handler) handleStatusChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var payload statusChangePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WarnContext(ctx, "invalid trigger payload",
			"request_id", requestID, "error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	recID, err := domain.ParseRegistrationID(payload.RegistrationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reviewedAt := time.Now().UTC()
	if payload.ReviewedAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.ReviewedAt)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "reviewed_at must be RFC 3339"))
			return
		}
		reviewedAt = parsed
	}

	change := reconcile.StatusChange{
		RegistrationID: recID,
		Before:         registration.Status(payload.Before),
		After:          registration.Status(payload.After),
		ReviewedBy:     payload.ReviewedBy,
		ReviewedAt:     reviewedAt,
		Reason:         payload.Reason,
	}
	if err := h.reconciler.HandleStatusChange(ctx, change); err != nil {
		h.logger.ErrorContext(ctx, "status change handling failed",
			"request_id", requestID, "registration_id", recID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	orgID, err := domain.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.reconciler.Sweep(ctx, orgID)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual sweep failed",
			"request_id", requestID, "org_id", orgID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"inserted":    res.Inserted,
		"updated":     res.Updated,
		"deleted":     res.Deleted,
		"skipped":     res.Skipped,
		"provisioned": res.Provisioned,
	})
}
