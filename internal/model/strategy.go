package model

import (
	"database/sql"
	"time"
)

// Strategy status values.  The workflow is draft -> pending -> approved or
// rejected; an approved/rejected strategy drops back to draft when its owner
// edits it.
const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Strategy represents a row in the `strategies` table.  A strategy is owned
// by a single user and carries the review trail (reviewer, timestamp,
// rejection reason) alongside its content fields.
//
// Fields:
//
//	ID              – primary key identifier.
//	UserID          – owner of the strategy.
//	Name            – display name (3–100 chars).
//	Description     – free-form description of the trading approach.
//	Market          – instrument or market the strategy targets (e.g. "EURUSD").
//	Timeframe       – chart timeframe it operates on (e.g. "H4").
//	Status          – workflow state, see Status* constants.
//	RejectionReason – reviewer-supplied reason, set only on rejection.
//	SubmittedAt     – when the owner submitted it for review (nullable).
//	ReviewedBy      – admin who approved/rejected it (nullable).
//	ReviewedAt      – when the review decision was made (nullable).
//	DeletedAt       – soft-delete marker.
type Strategy struct {
	ID              uint64
	UserID          uint64
	Name            string
	Description     string
	Market          string
	Timeframe       string
	Status          string
	RejectionReason sql.NullString
	SubmittedAt     sql.NullTime
	ReviewedBy      sql.NullInt64
	ReviewedAt      sql.NullTime
	DeletedAt       sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanTransition reports whether the workflow permits moving from the
// strategy's current status to target.  Owner edits that reset approved or
// rejected strategies to draft are handled separately by the repository.
func (s *Strategy) CanTransition(target string) bool {
	switch s.Status {
	case StatusDraft:
		return target == StatusPending
	case StatusPending:
		return target == StatusApproved || target == StatusRejected
	default:
		return false
	}
}
