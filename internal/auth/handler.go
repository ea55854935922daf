package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/metal-master/backend/internal/database"
	"github.com/metal-master/backend/internal/gamification"
	"github.com/metal-master/backend/internal/models"
	"github.com/metal-master/backend/internal/rules"
)

const (
	tokenTTL          = 72 * time.Hour
	minPasswordLength = 8
)

// Handler serves account endpoints. New accounts start with a practice
// stats row at the ruleset's first level.
type Handler struct {
	db     *sql.DB
	stats  *gamification.Store
	rules  *rules.Ruleset
	secret []byte
	now    func() time.Time
}

// NewHandler signs tokens with secret, the same key the auth middleware
// verifies with.
func NewHandler(db *sql.DB, stats *gamification.Store, rs *rules.Ruleset, secret []byte) *Handler {
	return &Handler{db: db, stats: stats, rules: rs, secret: secret, now: time.Now}
}

// ── Register ────────────────────────────────────────────

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if msg := normalizeRegistration(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msg})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	user, stats, err := h.createAccount(r.Context(), req, string(hash))
	if errors.Is(err, ErrEmailTaken) {
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "An account with this email already exists"})
		return
	}
	if err != nil {
		log.Printf("[auth] register %s: %v", req.Email, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create account"})
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusCreated, models.AuthResponse{Token: token, User: user, Stats: stats})
}

// normalizeRegistration trims and lowercases req in place and returns a
// client-facing message for the first problem found.
func normalizeRegistration(req *models.RegisterRequest) string {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	switch {
	case req.Email == "" || req.Name == "" || req.Password == "":
		return "Email, name, and password are required"
	case !strings.Contains(req.Email, "@"):
		return "Email address is invalid"
	case len(req.Password) < minPasswordLength:
		return fmt.Sprintf("Password must be at least %d characters", minPasswordLength)
	}
	return ""
}

// createAccount inserts the user and their level-one stats row in one
// transaction.
func (h *Handler) createAccount(ctx context.Context, req models.RegisterRequest, passwordHash string) (models.User, *models.UserStats, error) {
	user := models.User{
		Email:    req.Email,
		Name:     req.Name,
		Username: database.GenerateUsername(req.Name),
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return user, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, &user, passwordHash, h.now()); err != nil {
		return user, nil, err
	}

	gs := h.stats.Bind(tx)
	if err := gs.EnsureUserStats(ctx, user.ID, h.startingTitle()); err != nil {
		return user, nil, err
	}
	stats, err := gs.GetUserStats(ctx, user.ID)
	if err != nil {
		return user, nil, fmt.Errorf("read new user stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return user, nil, fmt.Errorf("commit tx: %w", err)
	}
	return user, stats, nil
}

func (h *Handler) startingTitle() string {
	return h.rules.LevelForTotalXP(0).Title
}

// ── Login / Me ──────────────────────────────────────────

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Email and password are required"})
		return
	}

	user, hash, err := userByEmail(r.Context(), h.db, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: user, Stats: h.practiceStats(r.Context(), user.ID)})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int64)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	user, err := userByID(r.Context(), h.db, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, models.CurrentUserResponse{User: user, Stats: h.practiceStats(r.Context(), userID)})
}

// practiceStats loads the user's stats, creating the row for accounts that
// predate it. Failures are logged and leave the stats out of the response.
func (h *Handler) practiceStats(ctx context.Context, userID int64) *models.UserStats {
	if err := h.stats.EnsureUserStats(ctx, userID, h.startingTitle()); err != nil {
		log.Printf("[auth] stats for user %d: %v", userID, err)
		return nil
	}
	stats, err := h.stats.GetUserStats(ctx, userID)
	if err != nil {
		log.Printf("[auth] stats for user %d: %v", userID, err)
		return nil
	}
	return stats
}

// ── Helpers ─────────────────────────────────────────────

func (h *Handler) generateToken(userID int64) (string, error) {
	now := h.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(tokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
