package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/reelgrab/internal/extract"
	"github.com/shehryarbajwa/reelgrab/internal/logging"
	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

const (
	errInvalidURL     = "Invalid Instagram URL"
	errCaptureFailed  = "Failed to capture content"
	maxRequestBodyLen = 1 << 20
)

// Extractor captures content for a platform URL
type Extractor interface {
	ExtractContent(ctx context.Context, targetURL string) (*models.ContentResult, error)
}

// SessionReporter describes the shared browser session
type SessionReporter interface {
	Status() models.SessionStatus
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	extractor Extractor
	sessions  SessionReporter
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(extractor Extractor, sessions SessionReporter, logger *zap.Logger) *Handler {
	return &Handler{
		extractor: extractor,
		sessions:  sessions,
		logger:    logger,
	}
}

// CaptureContent handles POST /api/content
func (h *Handler) CaptureContent(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(logging.RequestID(logging.RequestIDFrom(r.Context())))

	var req models.ContentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyLen)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("Invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, errInvalidURL)
		return
	}

	result, err := h.extractor.ExtractContent(r.Context(), req.URL)
	if err != nil {
		var invalid *extract.InvalidInputError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, errInvalidURL)
			return
		}

		log.Error("Content capture failed",
			logging.URL(req.URL),
			zap.String("outcome", extract.Outcome(err)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, errCaptureFailed)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		log.Warn("Failed to write response", zap.Error(err))
	}
}

// GetSession handles GET /api/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Status())
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
