package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratboard/strategy-api/internal/model"
	"github.com/stratboard/strategy-api/internal/repository"
)

const (
	insertStrategyQuery = `INSERT INTO strategies \(user_id, name, description, market, timeframe, status\) VALUES \(\?,\?,\?,\?,\?,\?\)`
	selectStrategyByID  = `SELECT .+ FROM strategies WHERE id=\? AND deleted_at IS NULL LIMIT 1`
	countStrategies     = `SELECT COUNT\(\*\) FROM strategies WHERE deleted_at IS NULL`
	setStatusQuery      = `UPDATE strategies SET status=\?, rejection_reason=\?, submitted_at=COALESCE\(\?, submitted_at\), reviewed_by=\?, reviewed_at=\? WHERE id=\? AND deleted_at IS NULL`
	softDeleteQuery     = `UPDATE strategies SET deleted_at=NOW\(\) WHERE id=\? AND deleted_at IS NULL`
)

var strategyColumns = []string{
	"id", "user_id", "name", "description", "market", "timeframe", "status",
	"rejection_reason", "submitted_at", "reviewed_by", "reviewed_at", "deleted_at",
	"created_at", "updated_at",
}

func strategyRow(id, userID uint64, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(strategyColumns).AddRow(
		id, userID, "Mean Reversion", "Buys oversold conditions on the daily close.",
		"EURUSD", "D1", status, nil, nil, nil, nil, nil, now, now)
}

func TestStrategyRepoCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := repository.NewStrategyRepo(db)

	mock.ExpectExec(insertStrategyQuery).
		WithArgs(uint64(7), "Mean Reversion", "Buys oversold conditions on the daily close.",
			"EURUSD", "D1", model.StatusDraft).
		WillReturnResult(sqlmock.NewResult(3, 1))

	s := &model.Strategy{
		UserID:      7,
		Name:        "Mean Reversion",
		Description: "Buys oversold conditions on the daily close.",
		Market:      "EURUSD",
		Timeframe:   "D1",
	}
	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, uint64(3), s.ID)
	assert.Equal(t, model.StatusDraft, s.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepoGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := repository.NewStrategyRepo(db)

	mock.ExpectQuery(selectStrategyByID).WithArgs(uint64(99)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrStrategyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepoList(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := repository.NewStrategyRepo(db)

	mock.ExpectQuery(countStrategies + ` AND status=\?`).
		WithArgs(model.StatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
	rows := strategyRow(1, 7, model.StatusApproved)
	rows.AddRow(2, 8, "Breakout", "Buys range breakouts with volume confirmation.",
		"BTCUSD", "H4", model.StatusApproved, nil, nil, nil, nil, nil,
		time.Now().UTC(), time.Now().UTC())
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE deleted_at IS NULL AND status=\? ORDER BY created_at DESC, id DESC LIMIT \? OFFSET \?`).
		WithArgs(model.StatusApproved, 20, 20).
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(),
		repository.ListFilter{Status: model.StatusApproved, Page: 2, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	assert.Len(t, items, 2)
	assert.Equal(t, "Mean Reversion", items[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepoSetStatus(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := repository.NewStrategyRepo(db)

	now := time.Now().UTC()
	reason := sql.NullString{String: "Backtest window is far too short to judge.", Valid: true}
	reviewer := sql.NullInt64{Int64: 1, Valid: true}
	mock.ExpectExec(setStatusQuery).
		WithArgs(model.StatusRejected, reason, nil, reviewer, sqlmock.AnyArg(), uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetStatus(context.Background(), 3, model.StatusRejected, reason, reviewer, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepoSoftDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := repository.NewStrategyRepo(db)

	mock.ExpectExec(softDeleteQuery).WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), 5)
	assert.ErrorIs(t, err, repository.ErrStrategyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
