package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/metal-master/backend/internal/database"
	"github.com/metal-master/backend/internal/models"
)

const (
	maxUsernameAttempts = 5

	uniqueViolation = "23505"
	emailConstraint = "users_email_key"
)

var (
	ErrEmailTaken       = errors.New("an account with this email already exists")
	errUsernameConflict = errors.New("no free username after retries")
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertUser creates u, regenerating the username while it collides. A
// username collision returns no row (ON CONFLICT DO NOTHING), so the
// surrounding transaction stays usable for the retry.
func insertUser(ctx context.Context, q queryer, u *models.User, passwordHash string, now time.Time) error {
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		err := q.QueryRowContext(ctx,
			`INSERT INTO users (email, name, username, password, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)
			 ON CONFLICT (username) DO NOTHING
			 RETURNING id, created_at, updated_at`,
			u.Email, u.Name, u.Username, passwordHash, now,
		).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, sql.ErrNoRows):
			u.Username = database.GenerateUsername(u.Name)
		case isUniqueViolation(err, emailConstraint):
			return ErrEmailTaken
		default:
			return fmt.Errorf("insert user: %w", err)
		}
	}
	return errUsernameConflict
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
}

// userByEmail returns the user and their password hash.
func userByEmail(ctx context.Context, q queryer, email string) (models.User, string, error) {
	var u models.User
	var hash string
	err := q.QueryRowContext(ctx,
		`SELECT id, email, name, username, password, created_at, updated_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Username, &hash, &u.CreatedAt, &u.UpdatedAt)
	return u, hash, err
}

func userByID(ctx context.Context, q queryer, id int64) (models.User, error) {
	var u models.User
	err := q.QueryRowContext(ctx,
		`SELECT id, email, name, username, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
