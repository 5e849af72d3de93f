package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/domain/veset"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const defaultListLimit = 100

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and checks its validate tags.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errValidation, err)
	}
	if err := requestValidator.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errValidation, err)
	}
	return nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errValidation)
	}
	return n, nil
}

// POST /api/v1/users/{userID}/cycles
func (h *Handler) StartCycle(w http.ResponseWriter, r *http.Request) {
	var req startCycleRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.cycles.StartCycle(r.Context(), chi.URLParam(r, "userID"), req.PeriodStart, req.Notes, req.PrivateNotes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toCycleResponse(rec))
}

// GET /api/v1/users/{userID}/cycles
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	records, err := h.cycles.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]cycleResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toCycleResponse(rec))
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"cycles": out})
}

// GET /api/v1/users/{userID}/cycles/{cycleID}
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	rec, err := h.cycles.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "cycleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCycleResponse(rec))
}

// DELETE /api/v1/users/{userID}/cycles/{cycleID}
func (h *Handler) DeleteCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.cycles.Delete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "cycleID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/users/{userID}/cycles/{cycleID}/events
func (h *Handler) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	var req applyEventRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := cycle.ParseEventType(req.Event)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	rec, status, err := h.cycles.ApplyEvent(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "cycleID"), ev, req.Timestamp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := toCycleResponse(rec)
	resp.Status = status
	writeJSONResponse(w, http.StatusOK, resp)
}

// GET /api/v1/users/{userID}/predictions[?all=true]
// Only onot that have not begun are returned unless all=true.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := h.cycles.Predict(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("all") != "true" {
		preds = veset.Upcoming(preds, h.clock.Now())
	}
	out := make([]predictionResponse, 0, len(preds))
	for _, p := range preds {
		out = append(out, toPredictionResponse(p))
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"predictions": out})
}

// GET /api/v1/users/{userID}/notifications?limit=N
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.notifications.ListForUser(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotificationResponse(n))
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"notifications": out})
}

// GET /api/v1/users/{userID}/activity?limit=N
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logs, err := h.cycles.Activity(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]activityResponse, 0, len(logs))
	for _, a := range logs {
		out = append(out, activityResponse{CycleID: a.CycleID, Action: a.Action, Detail: a.Detail, CreatedAt: a.CreatedAt})
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"activity": out})
}

func (h *Handler) currentPreferences(r *http.Request, userID string) (*profile.Preferences, error) {
	prefs, err := h.profiles.GetPreferences(r.Context(), userID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return profile.Defaults(userID), nil
	}
	return prefs, err
}

// GET /api/v1/users/{userID}/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.currentPreferences(r, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toPreferencesBody(prefs))
}

// PUT /api/v1/users/{userID}/preferences
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body preferencesBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	prefs, err := h.currentPreferences(r, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body.applyTo(prefs)
	prefs.UpdatedAt = h.clock.Now()
	if err := prefs.Validate(); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errValidation, err))
		return
	}
	if err := h.profiles.SavePreferences(r.Context(), prefs); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithField("user_id", userID).Info("Preferences updated")
	writeJSONResponse(w, http.StatusOK, toPreferencesBody(prefs))
}
