// Package repository contains data access logic over *sql.DB.  This file
// covers the strategies table.  Soft delete is enforced at every query
// boundary: rows with deleted_at set are invisible to all methods.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stratboard/strategy-api/internal/model"
)

// ErrStrategyNotFound indicates that a strategy was not located in the DB.
var ErrStrategyNotFound = errors.New("strategy not found")

// StrategyRepo manages persistence for strategies.
type StrategyRepo struct{ DB *sql.DB }

func NewStrategyRepo(db *sql.DB) *StrategyRepo { return &StrategyRepo{DB: db} }

const strategyColumns = "id, user_id, name, description, market, timeframe, status, " +
	"rejection_reason, submitted_at, reviewed_by, reviewed_at, deleted_at, created_at, updated_at"

func scanStrategy(row *sql.Row) (*model.Strategy, error) {
	var s model.Strategy
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Description, &s.Market, &s.Timeframe,
		&s.Status, &s.RejectionReason, &s.SubmittedAt, &s.ReviewedBy, &s.ReviewedAt,
		&s.DeletedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new strategy in draft status and assigns the generated ID.
func (r *StrategyRepo) Create(ctx context.Context, s *model.Strategy) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO strategies (user_id, name, description, market, timeframe, status) VALUES (?,?,?,?,?,?)",
		s.UserID, s.Name, s.Description, s.Market, s.Timeframe, model.StatusDraft)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.Status = model.StatusDraft
	return nil
}

// GetByID retrieves a strategy by its ID.  It returns ErrStrategyNotFound
// if there is no matching live row.
func (r *StrategyRepo) GetByID(ctx context.Context, id uint64) (*model.Strategy, error) {
	return scanStrategy(r.DB.QueryRowContext(ctx,
		"SELECT "+strategyColumns+" FROM strategies WHERE id=? AND deleted_at IS NULL LIMIT 1", id))
}

// ListFilter narrows List results.  Zero values mean "no filter"; Page and
// Limit are expected to be normalized by the handler (page >= 1, limit
// 1..100).
type ListFilter struct {
	Status string
	UserID uint64
	Page   int
	Limit  int
}

// List returns one page of strategies plus the total row count for the
// filter, newest first.
func (r *StrategyRepo) List(ctx context.Context, f ListFilter) ([]model.Strategy, int, error) {
	where := "deleted_at IS NULL"
	args := []interface{}{}
	if f.Status != "" {
		where += " AND status=?"
		args = append(args, f.Status)
	}
	if f.UserID != 0 {
		where += " AND user_id=?"
		args = append(args, f.UserID)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strategies WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+strategyColumns+" FROM strategies WHERE "+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Strategy, 0, f.Limit)
	for rows.Next() {
		var s model.Strategy
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Description, &s.Market, &s.Timeframe,
			&s.Status, &s.RejectionReason, &s.SubmittedAt, &s.ReviewedBy, &s.ReviewedAt,
			&s.DeletedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Update rewrites the editable fields and the status.  An owner edit that
// resets an approved/rejected strategy back to draft also clears the review
// trail so a later re-submission starts clean.
func (r *StrategyRepo) Update(ctx context.Context, s *model.Strategy) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE strategies SET name=?, description=?, market=?, timeframe=?, status=?, "+
			"rejection_reason=?, submitted_at=?, reviewed_by=?, reviewed_at=? WHERE id=? AND deleted_at IS NULL",
		s.Name, s.Description, s.Market, s.Timeframe, s.Status,
		s.RejectionReason, s.SubmittedAt, s.ReviewedBy, s.ReviewedAt, s.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStrategyNotFound
	}
	return nil
}

// SetStatus records a workflow transition.  The caller has already checked
// that the transition is legal for the current status.
func (r *StrategyRepo) SetStatus(ctx context.Context, id uint64, status string, reason sql.NullString, reviewer sql.NullInt64, at time.Time) error {
	var submittedAt, reviewedAt interface{}
	if status == model.StatusPending {
		submittedAt = at
	}
	if status == model.StatusApproved || status == model.StatusRejected {
		reviewedAt = at
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE strategies SET status=?, rejection_reason=?, submitted_at=COALESCE(?, submitted_at), "+
			"reviewed_by=?, reviewed_at=? WHERE id=? AND deleted_at IS NULL",
		status, reason, submittedAt, reviewer, reviewedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStrategyNotFound
	}
	return nil
}

// SoftDelete marks a strategy deleted without removing the row.
func (r *StrategyRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE strategies SET deleted_at=NOW() WHERE id=? AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStrategyNotFound
	}
	return nil
}
