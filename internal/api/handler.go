package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renewd/renewd/internal/db"
	"github.com/renewd/renewd/internal/scheduler"
)

// Runner triggers a reminder run. Implemented by scheduler.Scheduler;
// the manual endpoint and the cron trigger share the same code path.
type Runner interface {
	TriggerRun(ctx context.Context, trigger string) scheduler.RunReport
}

// LedgerReader exposes the audit queries over the delivery ledger.
type LedgerReader interface {
	ListByPolicy(ctx context.Context, policyID uuid.UUID) ([]*db.DeliveryRecord, error)
	ListRecent(ctx context.Context, status string, limit, offset int) ([]*db.DeliveryRecord, error)
}

// PolicyReader exposes the read-only policy queries.
type PolicyReader interface {
	GetPolicy(ctx context.Context, id uuid.UUID) (*db.PolicySnapshot, error)
	FindActiveExpiringBetween(ctx context.Context, start, end time.Time) ([]db.PolicySnapshot, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger   *zap.Logger
	runner   Runner
	ledger   LedgerReader
	policies PolicyReader
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, runner Runner, ledger LedgerReader, policies PolicyReader) *Handler {
	return &Handler{
		logger:   logger,
		runner:   runner,
		ledger:   ledger,
		policies: policies,
	}
}

// TriggerReminderRun handles POST /v1/reminders/run, the manual
// trigger for operational testing and backfill. Behaves identically to
// the scheduled trigger: a rerun for an already-processed date yields
// only skip outcomes.
func (h *Handler) TriggerReminderRun(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("manual reminder run triggered",
		zap.String("remote_addr", r.RemoteAddr),
	)

	report := h.runner.TriggerRun(r.Context(), "manual")

	status := http.StatusOK
	if report.AlreadyRunning {
		status = http.StatusConflict
	}

	h.writeJSON(w, status, report)
}

// ListDeliveries handles GET /v1/deliveries
// Query params: status (SENT|FAILED|PENDING), limit, offset.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != db.DeliveryStatusSent && status != db.DeliveryStatusFailed && status != db.DeliveryStatusPending {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid status filter",
			"status must be SENT, FAILED, or PENDING")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.ledger.ListRecent(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list deliveries", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list deliveries", "")
		return
	}

	if records == nil {
		records = []*db.DeliveryRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// ListPolicyDeliveries handles GET /v1/policies/{id}/deliveries
func (h *Handler) ListPolicyDeliveries(w http.ResponseWriter, r *http.Request) {
	policyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid policy id",
			"id must be a valid UUID")
		return
	}

	if _, err := h.policies.GetPolicy(r.Context(), policyID); err != nil {
		if errors.Is(err, db.ErrPolicyNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Policy not found", "")
			return
		}
		h.logger.Error("failed to look up policy",
			zap.Error(err),
			zap.String("policy_id", policyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to look up policy", "")
		return
	}

	records, err := h.ledger.ListByPolicy(r.Context(), policyID)
	if err != nil {
		h.logger.Error("failed to list policy deliveries",
			zap.Error(err),
			zap.String("policy_id", policyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list deliveries", "")
		return
	}

	if records == nil {
		records = []*db.DeliveryRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// ListExpiringPolicies handles GET /v1/policies/expiring?days=N, a
// lookahead for agents over active policies expiring in the next N days.
func (h *Handler) ListExpiringPolicies(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days <= 0 || days > 365 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid days",
			"days must be between 1 and 365")
		return
	}

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, days)

	policies, err := h.policies.FindActiveExpiringBetween(r.Context(), start, end)
	if err != nil {
		h.logger.Error("failed to list expiring policies", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list policies", "")
		return
	}

	h.writeJSON(w, http.StatusOK, policies)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
