package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/admin"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/reconcile"
)

// ReconcileRequest is the optional request body for a reconciliation run
type ReconcileRequest struct {
	DryRun bool   `json:"dry_run"`
	MinAge string `json:"min_age,omitempty"` // Go duration, e.g. "1h"
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// OpsHandler exposes reconciliation and reporting to operators. It must be
// mounted behind authentication.
type OpsHandler struct {
	reconciler *reconcile.Reconciler
	admin      admin.AdminService
	minAge     time.Duration
}

// NewOpsHandler creates a new ops handler. defaultMinAge applies when a
// request does not set min_age.
func NewOpsHandler(reconciler *reconcile.Reconciler, adminSvc admin.AdminService, defaultMinAge time.Duration) *OpsHandler {
	return &OpsHandler{
		reconciler: reconciler,
		admin:      adminSvc,
		minAge:     defaultMinAge,
	}
}

// Routes returns the routes for operational endpoints
func (h *OpsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/reconcile/preview", h.PreviewReconcile)
	r.Post("/reconcile", h.RunReconcile)
	r.Get("/stats", h.GetStatistics)
	r.Get("/dangling", h.FindDangling)

	return r
}

// PreviewReconcile reports what a run would delete without deleting
func (h *OpsHandler) PreviewReconcile(w http.ResponseWriter, r *http.Request) {
	minAge := h.minAge
	if v := r.URL.Query().Get("min_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			h.error(w, r, http.StatusBadRequest, "invalid min_age")
			return
		}
		minAge = d
	}
	h.run(w, r, reconcile.RunOptions{DryRun: true, MinAge: minAge})
}

// RunReconcile deletes orphaned blobs, or previews when dry_run is set
func (h *OpsHandler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.error(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.error(w, r, http.StatusBadRequest, "invalid dry_run")
			return
		}
		req.DryRun = b
	}

	opts := reconcile.RunOptions{DryRun: req.DryRun, MinAge: h.minAge}
	if req.MinAge != "" {
		d, err := time.ParseDuration(req.MinAge)
		if err != nil || d < 0 {
			h.error(w, r, http.StatusBadRequest, "invalid min_age")
			return
		}
		opts.MinAge = d
	}
	h.run(w, r, opts)
}

func (h *OpsHandler) run(w http.ResponseWriter, r *http.Request, opts reconcile.RunOptions) {
	report, err := h.reconciler.Run(r.Context(), opts)
	if err != nil {
		var enumErr *simpleattachment.StorageEnumerationError
		var srcErr *simpleattachment.SourceError
		switch {
		case errors.Is(err, simpleattachment.ErrReconcileInProgress):
			h.error(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, simpleattachment.ErrReconcileUnsafe):
			slog.Warn("Reconcile refused", "error", err)
			h.error(w, r, http.StatusPreconditionFailed, err.Error())
		case errors.As(err, &enumErr), errors.As(err, &srcErr):
			slog.Error("Reconcile aborted", "error", err)
			h.error(w, r, http.StatusServiceUnavailable, err.Error())
		default:
			slog.Error("Reconcile failed", "error", err)
			h.error(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}
	render.JSON(w, r, report)
}

// GetStatistics returns attachment statistics, optionally for one owner type
func (h *OpsHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	req := admin.StatisticsRequest{}
	if v := r.URL.Query().Get("owner_type"); v != "" {
		t, err := simpleattachment.ParseOwnerType(v)
		if err != nil {
			h.error(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.OwnerType = t
	}

	resp, err := h.admin.GetStatistics(r.Context(), req)
	if err != nil {
		slog.Error("Failed to compute statistics", "error", err)
		h.error(w, r, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	render.JSON(w, r, resp)
}

// FindDangling lists attachments whose owner no longer exists
func (h *OpsHandler) FindDangling(w http.ResponseWriter, r *http.Request) {
	resp, err := h.admin.FindDangling(r.Context(), admin.DanglingRequest{})
	if err != nil {
		slog.Error("Failed to find dangling attachments", "error", err)
		h.error(w, r, http.StatusInternalServerError, "failed to find dangling attachments")
		return
	}
	render.JSON(w, r, resp)
}

func (h *OpsHandler) error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}
