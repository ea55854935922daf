package gamification

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/metal-master/backend/internal/models"
)

const maxAwardBodyBytes = 64 << 10

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

// ── Practice XP ─────────────────────────────────────────

func (h *Handler) AwardXP(w http.ResponseWriter, r *http.Request) {
	h.award(w, r, AwardModeFinal)
}

func (h *Handler) TickXP(w http.ResponseWriter, r *http.Request) {
	h.award(w, r, AwardModeTick)
}

func (h *Handler) award(w http.ResponseWriter, r *http.Request, mode AwardMode) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAwardBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	req, err := DecodeAwardRequest(body)
	if errors.Is(err, ErrMalformedBody) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err != nil {
		writeServiceError(w, err, "Failed to award XP")
		return
	}

	resp, err := h.service.AwardPractice(r.Context(), userID, req, mode)
	if err != nil {
		writeServiceError(w, err, "Failed to award XP")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Practice Sessions ───────────────────────────────────

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.StartSession(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err, "Failed to start practice session")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ── Gamification State ──────────────────────────────────

func (h *Handler) GetGamification(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.GetGamification(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "Failed to get gamification state")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	query := r.URL.Query()
	limit, err := intQueryParam(query, "limit", 0)
	if err != nil {
		writeServiceError(w, err, "Failed to get leaderboard")
		return
	}

	resp, err := h.service.GetLeaderboard(r.Context(), userID, query.Get("period"), limit)
	if err != nil {
		writeServiceError(w, err, "Failed to get leaderboard")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Badges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.BadgeCatalogue())
}

// ── Helpers ─────────────────────────────────────────────

// writeServiceError sends caller mistakes back as 400 with their message;
// anything else is logged and hidden behind fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var (
		unknownLesson *UnknownLessonError
		invalidInput  *InvalidInputError
		invalidMode   *InvalidAwardModeError
		invalidReq    *InvalidRequestError
	)
	switch {
	case errors.As(err, &unknownLesson),
		errors.As(err, &invalidInput),
		errors.As(err, &invalidMode),
		errors.As(err, &invalidReq):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[gamification] %s: %v", fallback, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: fallback})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) (int, error) {
	s := query.Get(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InvalidRequestError{Field: key, Message: "must be an integer"}
	}
	return v, nil
}
