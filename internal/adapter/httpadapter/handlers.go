package httpadapter

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

type handlers struct {
	engine Engine
	logger *slog.Logger
}

// RegisterRoutes mounts the refresh API.
func (h *handlers) RegisterRoutes(r chi.Router) {
	r.Post("/refresh", h.handleRefresh)
	r.Get("/session/latest", h.handleLatest)
	r.Get("/snapshots/{date}/{cycle}", h.handleSnapshot)
	r.Get("/classify", h.handleClassify)
}

// handleRefresh runs a refresh. ?baseline=YYYY-MM-DD/00z pins the reference.
func (h *handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var opts pipeline.RefreshOptions
	if raw := r.URL.Query().Get("baseline"); raw != "" {
		key, err := domain.ParseKey(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Baseline = &key
	}

	sess, err := h.engine.Refresh(r.Context(), opts)
	switch {
	case errors.Is(err, pipeline.ErrBaselineNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, domain.ErrIncompleteLocationData):
		writeError(w, http.StatusBadGateway, err)
		return
	case err != nil:
		h.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sess)
}

func (h *handlers) handleLatest(w http.ResponseWriter, _ *http.Request) {
	sess := h.engine.Latest()
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no refresh has completed yet"))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sess)
}

func (h *handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseKey(chi.URLParam(r, "date") + "/" + chi.URLParam(r, "cycle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, ok, err := h.engine.Snapshot(r.Context(), key)
	if err != nil {
		h.logger.Error("snapshot lookup failed", "key", key.String(), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no snapshot archived for "+key.String()))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

type classifyResponse struct {
	Indicator domain.Indicator `json:"indicator"`
	Value     float64          `json:"value"`
	Sentiment domain.Sentiment `json:"sentiment"`
	Warning   string           `json:"warning,omitempty"`
}

func (h *handlers) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ind := domain.Indicator(q.Get("indicator"))
	if ind == "" {
		writeError(w, http.StatusBadRequest, errors.New("indicator is required"))
		return
	}
	value, err := strconv.ParseFloat(q.Get("value"), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		writeError(w, http.StatusBadRequest, errors.New("value must be a finite number"))
		return
	}

	// Unknown indicators still classify, as baseline, with a warning.
	resp := classifyResponse{Indicator: ind, Value: value}
	resp.Sentiment, err = h.engine.Classify(value, ind)
	if err != nil {
		resp.Warning = err.Error()
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
