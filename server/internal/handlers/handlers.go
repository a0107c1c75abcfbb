package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pikaboard/pikausage/internal/model"
	"github.com/pikaboard/pikausage/internal/parser"
	"github.com/pikaboard/pikausage/server/internal/auth"
	"github.com/pikaboard/pikausage/server/internal/database"
)

const defaultScanLimit = 50

// ReportService computes and caches usage reports
type ReportService interface {
	Report(ctx context.Context) (*model.UsageReport, error)
	Refresh(ctx context.Context) (*model.UsageReport, error)
	LastScan() (model.ScanDiagnostics, bool)
}

// Journal lists recorded scans
type Journal interface {
	ListScans(ctx context.Context, limit int) ([]database.ScanRun, error)
	PingContext(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc       ReportService
	journal   Journal
	auth      *auth.Middleware
	debouncer *RefreshDebouncer
	logger    *slog.Logger
	version   string
}

// New creates a new Handler. journal may be nil.
func New(svc ReportService, journal Journal, authMw *auth.Middleware, debounce time.Duration, logger *slog.Logger, version string) *Handler {
	h := &Handler{
		svc:     svc,
		journal: journal,
		auth:    authMw,
		logger:  logger.With("component", "handlers"),
		version: version,
	}
	h.debouncer = NewRefreshDebouncer(debounce, h.backgroundRefresh)
	return h
}

// Usage handles GET /usage
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	places, err := parsePrecision(r.URL.Query().Get("precision"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.svc.Report(r.Context())
	if err != nil {
		h.reportError(w, err)
		return
	}

	if places >= 0 {
		report = roundReport(report, int32(places))
	}
	h.respondJSON(w, http.StatusOK, report)
}

// Refresh handles POST /usage/refresh. By default the recomputation is debounced
// and runs in the background; ?wait=true recomputes before responding.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		report, err := h.svc.Refresh(r.Context())
		if err != nil {
			h.reportError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, report)
		return
	}

	h.debouncer.Schedule()
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// Diagnostics handles GET /usage/diagnostics
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	diag, ok := h.svc.LastScan()
	if !ok {
		h.jsonError(w, "No scan has run yet", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, diag)
}

// Scans handles GET /usage/scans
func (h *Handler) Scans(w http.ResponseWriter, r *http.Request) {
	limit := defaultScanLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	if h.journal == nil {
		h.respondJSON(w, http.StatusOK, []database.ScanRun{})
		return
	}

	runs, err := h.journal.ListScans(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list scans", "error", err)
		h.jsonError(w, "Failed to list scans", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, runs)
}

type loginRequest struct {
	APIKey string `json:"api_key"`
}

// Login exchanges an API key for a browser session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		h.jsonError(w, "Authentication is disabled", http.StatusBadRequest)
		return
	}

	var key string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		key = req.APIKey
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		key = r.FormValue("api_key")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		h.jsonError(w, "api_key is required", http.StatusBadRequest)
		return
	}

	name, ok := h.auth.Authenticate(key)
	if !ok {
		h.jsonError(w, "Invalid API key", http.StatusUnauthorized)
		return
	}

	if err := h.auth.Login(r.Context(), name); err != nil {
		h.logger.Error("failed to start session", "error", err)
		h.jsonError(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"name": name})
}

// Logout handles POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.jsonError(w, "Failed to end session", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.journal != nil {
		if err := h.journal.PingContext(r.Context()); err != nil {
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

func (h *Handler) backgroundRefresh() {
	if _, err := h.svc.Refresh(context.Background()); err != nil {
		h.logger.Error("background refresh failed", "error", err)
	}
}

func (h *Handler) reportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, parser.ErrNoReadableRoots):
		h.jsonError(w, "No agent directory is readable", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// The computation keeps running and will be cached for the next request
		h.jsonError(w, "Report is still being computed", http.StatusServiceUnavailable)
	default:
		h.logger.Error("failed to build usage report", "error", err)
		h.jsonError(w, "Failed to build usage report", http.StatusInternalServerError)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// parsePrecision returns -1 when no rounding was requested
func parsePrecision(v string) (int, error) {
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > maxPrecision {
		return 0, errors.New("precision must be an integer between 0 and " + strconv.Itoa(maxPrecision))
	}
	return n, nil
}
