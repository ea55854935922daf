package models

import (
	"strings"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is what other players see on leaderboards: "James H." for
// "James Hetfield", the username when no name is set, else "Player".
func (u User) DisplayName() string {
	parts := strings.Fields(u.Name)
	switch {
	case len(parts) == 0 && u.Username != "":
		return u.Username
	case len(parts) == 0:
		return "Player"
	case len(parts) == 1:
		return parts[0]
	}
	last := []rune(parts[len(parts)-1])
	return parts[0] + " " + string(last[0]) + "."
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  User       `json:"user"`
	Stats *UserStats `json:"stats,omitempty"`
}

type CurrentUserResponse struct {
	User  User       `json:"user"`
	Stats *UserStats `json:"stats,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
