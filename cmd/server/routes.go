package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/metal-master/backend/internal/auth"
	"github.com/metal-master/backend/internal/gamification"
	"github.com/metal-master/backend/internal/middleware"
)

func newRouter(authHandler *auth.Handler, gamHandler *gamification.Handler, secret []byte) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/badges", gamHandler.Badges).Methods("GET")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(secret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	protected.HandleFunc("/xp/tick", gamHandler.TickXP).Methods("POST")
	protected.HandleFunc("/xp/award", gamHandler.AwardXP).Methods("POST")
	protected.HandleFunc("/practice-sessions", gamHandler.StartSession).Methods("POST")
	protected.HandleFunc("/gamification", gamHandler.GetGamification).Methods("GET")
	protected.HandleFunc("/leaderboard", gamHandler.Leaderboard).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
