package model

import (
	"database/sql"
	"time"
)

// Role values stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an application user record as stored in the `users`
// table.  Lockout state lives directly on the row: FailedAttempts counts
// consecutive wrong passwords and LockedUntil, when set, suspends logins
// until the timestamp passes.  A lock is never explicitly cleared by a
// background job; it simply expires.
//
// Fields:
//
//	ID              – primary key identifier of the user.
//	FirstName       – given name (letters and spaces, 2–50 chars).
//	LastName        – family name (same rules).
//	Email           – unique email address, stored lower-cased.
//	PasswordHash    – bcrypt hashed password.
//	Role            – "user" or "admin".
//	EmailVerified   – whether the verification token was redeemed.
//	VerificationToken – outstanding email-verification token (nullable).
//	ResetTokenHash  – SHA-256 hex of an outstanding reset token (nullable).
//	ResetTokenExpiresAt – expiry of the reset token (nullable).
//	FailedAttempts  – consecutive failed logins since the last success.
//	LockedUntil     – end of the current lockout window (nullable).
//	LastLoginAt     – timestamp of the last successful login (nullable).
//	DeletedAt       – soft-delete marker; rows are never hard-deleted.
type User struct {
	ID                  uint64
	FirstName           string
	LastName            string
	Email               string
	PasswordHash        string
	Role                string
	EmailVerified       bool
	VerificationToken   sql.NullString
	ResetTokenHash      sql.NullString
	ResetTokenExpiresAt sql.NullTime
	FailedAttempts      int
	LockedUntil         sql.NullTime
	LastLoginAt         sql.NullTime
	DeletedAt           sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is currently inside a lockout window.
// An expired LockedUntil is treated as no lock at all.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil.Valid && now.Before(u.LockedUntil.Time)
}

// LockRemaining returns how much of the lockout window is left.  Zero when
// the account is not locked.
func (u *User) LockRemaining(now time.Time) time.Duration {
	if !u.Locked(now) {
		return 0
	}
	return u.LockedUntil.Time.Sub(now)
}
