package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/stratboard/strategy-api/internal/model"
)

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
)

// UserRepo persists users.  Soft delete is enforced here: every query
// filters deleted_at IS NULL so callers never see removed accounts.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, first_name, last_name, email, password_hash, role, email_verified, " +
	"verification_token, reset_token_hash, reset_token_expires_at, failed_attempts, " +
	"locked_until, last_login_at, deleted_at, created_at, updated_at"

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role,
		&u.EmailVerified, &u.VerificationToken, &u.ResetTokenHash, &u.ResetTokenExpiresAt,
		&u.FailedAttempts, &u.LockedUntil, &u.LastLoginAt, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a user and assigns the generated ID.  The email is
// case-folded before insert; a duplicate yields ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (first_name, last_name, email, password_hash, role, verification_token) VALUES (?,?,?,?,?,?)",
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role, u.VerificationToken)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND deleted_at IS NULL LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND deleted_at IS NULL LIMIT 1", id))
}

// RecordFailure stores the new failed-attempt counter and, when the lockout
// threshold was reached, the lock expiry.  Passing a nil lockedUntil leaves
// any existing lock column cleared.  The row is read, mutated in the handler
// and rewritten here; concurrent logins race last-writer-wins on purpose.
func (r *UserRepo) RecordFailure(ctx context.Context, id uint64, attempts int, lockedUntil *time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_attempts=?, locked_until=? WHERE id=? AND deleted_at IS NULL",
		attempts, lockedUntil, id)
	return err
}

// RecordSuccess resets the lockout state and stamps last_login_at.
func (r *UserRepo) RecordSuccess(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_attempts=0, locked_until=NULL, last_login_at=? WHERE id=? AND deleted_at IS NULL",
		at, id)
	return err
}

// UpdateProfile changes the user's names.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, firstName, lastName string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET first_name=?, last_name=? WHERE id=? AND deleted_at IS NULL",
		firstName, lastName, id)
	return err
}

// SetResetToken stores the hash of a freshly issued password-reset token and
// its expiry, replacing any previous one.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_token_expires_at=? WHERE id=? AND deleted_at IS NULL",
		tokenHash, expiresAt, id)
	return err
}
