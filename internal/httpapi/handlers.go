// Package httpapi is a thin JSON surface over the tracker facade and the
// pool lifecycle operations.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/pool"
	"github.com/kitbuilder587/rankwatch/internal/service"
)

type Handler struct {
	tracker *service.Tracker
	pool    *pool.Manager
	logger  *zap.Logger
	dev     bool
}

func NewHandler(tracker *service.Tracker, poolManager *pool.Manager, logger *zap.Logger, dev bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tracker: tracker, pool: poolManager, logger: logger, dev: dev}
}

type trackPayload struct {
	Keyword    string            `json:"keyword,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
	Domain     string            `json:"domain"`
	Country    string            `json:"country"`
	Language   string            `json:"language,omitempty"`
	City       string            `json:"city,omitempty"`
	State      string            `json:"state,omitempty"`
	PostalCode string            `json:"postal_code,omitempty"`
	Device     string            `json:"device,omitempty"`
	MaxResults int               `json:"max_results,omitempty"`
	Verify     bool              `json:"verify,omitempty"`
	APIKey     string            `json:"api_key,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type errorResponse struct {
	Error     string    `json:"error"`
	Kind      string    `json:"kind,omitempty"`
	Cause     string    `json:"cause,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var payload trackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	keywords := payload.Keywords
	if payload.Keyword != "" {
		keywords = append([]string{payload.Keyword}, keywords...)
	}

	req := service.TrackRequest{
		Keywords: keywords,
		Options: domain.SearchOptions{
			Domain:     payload.Domain,
			Country:    payload.Country,
			Language:   payload.Language,
			City:       payload.City,
			State:      payload.State,
			PostalCode: payload.PostalCode,
			Device:     domain.Device(payload.Device),
			MaxResults: payload.MaxResults,
			Verify:     payload.Verify,
			APIKey:     payload.APIKey,
			Provider:   domain.Provider(payload.Provider),
			Extra:      payload.Extra,
		},
	}

	resp, err := h.tracker.Process(r.Context(), req)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pool.Stats())
}

func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pool.Credentials())
}

type addKeyPayload struct {
	Provider       string `json:"provider"`
	Secret         string `json:"secret"`
	SearchEngineID string `json:"search_engine_id,omitempty"`
	DailyLimit     int    `json:"daily_limit,omitempty"`
	MonthlyLimit   int    `json:"monthly_limit,omitempty"`
}

func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	var payload addKeyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	provider := domain.Provider(payload.Provider)
	if payload.Provider == "" {
		provider = domain.ProviderNativeSERP
	}

	cred, err := h.pool.Add(r.Context(), pool.AddParams{
		Provider:       provider,
		Secret:         payload.Secret,
		SearchEngineID: payload.SearchEngineID,
		DailyLimit:     payload.DailyLimit,
		MonthlyLimit:   payload.MonthlyLimit,
	})
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	cp := *cred
	cp.Secret = ""
	h.writeJSON(w, http.StatusCreated, cp)
}

func (h *Handler) RemoveCredential(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.pool.Remove(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			h.writeError(w, http.StatusNotFound, "credential not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "remove failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("write response", zap.Error(err))
	}
}

// writeLookupError maps error kinds onto HTTP statuses. The upstream cause
// is only exposed in dev mode.
func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindInvalidRequest:
		status = http.StatusBadRequest
	case domain.KindUnauthorized:
		status = http.StatusUnauthorized
	case domain.KindQuotaExceeded, domain.KindAllExhausted, domain.KindRateLimited:
		status = http.StatusTooManyRequests
	case domain.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	var validationErrs = []error{
		domain.ErrEmptyKeyword, domain.ErrEmptyDomain, domain.ErrInvalidCountry,
		domain.ErrInvalidDevice, domain.ErrInvalidProvider, domain.ErrPlaceholderSecret,
		domain.ErrSecretTooShort, domain.ErrMissingSearchEngineID,
		domain.ErrDuplicateCredential,
	}
	for _, ve := range validationErrs {
		if errors.Is(err, ve) {
			status = http.StatusBadRequest
			break
		}
	}

	resp := errorResponse{
		Error:     err.Error(),
		Kind:      string(kind),
		Timestamp: time.Now().UTC(),
	}
	var le *domain.LookupError
	if errors.As(err, &le) {
		resp.Error = le.Message
		if h.dev && le.Cause != nil {
			resp.Cause = le.Cause.Error()
		}
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg, Timestamp: time.Now().UTC()}
	if h.dev && err != nil {
		resp.Cause = err.Error()
	}
	h.writeJSON(w, status, resp)
}
