package handler_test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stratboard/strategy-api/internal/auth"
	"github.com/stratboard/strategy-api/internal/config"
	"github.com/stratboard/strategy-api/internal/handler"
	"github.com/stratboard/strategy-api/internal/model"
	"github.com/stratboard/strategy-api/internal/repository"
)

const (
	insertUserQuery  = `INSERT INTO users \(first_name, last_name, email, password_hash, role, verification_token\) VALUES \(\?,\?,\?,\?,\?,\?\)`
	selectUserByMail = `SELECT .+ FROM users WHERE email=\? AND deleted_at IS NULL LIMIT 1`
	selectUserByID   = `SELECT .+ FROM users WHERE id=\? AND deleted_at IS NULL LIMIT 1`
	recordFailure    = `UPDATE users SET failed_attempts=\?, locked_until=\? WHERE id=\? AND deleted_at IS NULL`
	recordSuccess    = `UPDATE users SET failed_attempts=0, locked_until=NULL, last_login_at=\? WHERE id=\? AND deleted_at IS NULL`
)

var userColumns = []string{
	"id", "first_name", "last_name", "email", "password_hash", "role", "email_verified",
	"verification_token", "reset_token_hash", "reset_token_expires_at", "failed_attempts",
	"locked_until", "last_login_at", "deleted_at", "created_at", "updated_at",
}

func testConfig() config.Config {
	return config.Config{
		Env:              "test",
		BcryptCost:       bcrypt.MinCost,
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
	}
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuer("access-secret", "refresh-secret", "strategy-api", "strategy-clients",
		time.Hour, 7*24*time.Hour)
}

func newAuthEnv(t *testing.T) (*handler.AuthHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	h := handler.NewAuthHandler(testConfig(), repository.NewUserRepo(db), testIssuer())
	return h, mock, func() { _ = db.Close() }
}

// do runs a handler against a JSON request and returns the recorder.
func do(t *testing.T, h echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	require.NoError(t, h(c))
	return rec
}

func userRowWithHash(id uint64, email, hash string, attempts int, lockedUntil interface{}) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(userColumns).AddRow(
		id, "Ada", "Lovelace", email, hash, model.RoleUser, false,
		nil, nil, nil, attempts, lockedUntil, nil, nil, now, now)
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := auth.HashPassword(plain, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

const registerBody = `{
	"first_name": "Ada",
	"last_name": "Lovelace",
	"email": "ada@example.com",
	"password": "Sup3r$ecret",
	"password_confirm": "Sup3r$ecret"
}`

func TestRegisterSuccess(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	mock.ExpectExec(insertUserQuery).WillReturnResult(sqlmock.NewResult(7, 1))

	rec := do(t, h.Register, http.MethodPost, "/v1/auth/register", registerBody)
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, `"access_token"`)
	assert.Contains(t, body, `"refresh_token"`)
	// The account representation must not leak any password material.
	assert.NotContains(t, body, "password")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterValidation(t *testing.T) {
	h, _, cleanup := newAuthEnv(t)
	defer cleanup()

	cases := map[string]string{
		"weak password":     `{"first_name":"Ada","last_name":"Lovelace","email":"a@b.com","password":"weakpass","password_confirm":"weakpass"}`,
		"mismatch confirm":  `{"first_name":"Ada","last_name":"Lovelace","email":"a@b.com","password":"Sup3r$ecret","password_confirm":"Other1$xx"}`,
		"bad email":         `{"first_name":"Ada","last_name":"Lovelace","email":"nope","password":"Sup3r$ecret","password_confirm":"Sup3r$ecret"}`,
		"numeric name":      `{"first_name":"4d4","last_name":"Lovelace","email":"a@b.com","password":"Sup3r$ecret","password_confirm":"Sup3r$ecret"}`,
		"single-char name":  `{"first_name":"A","last_name":"Lovelace","email":"a@b.com","password":"Sup3r$ecret","password_confirm":"Sup3r$ecret"}`,
		"missing last name": `{"first_name":"Ada","email":"a@b.com","password":"Sup3r$ecret","password_confirm":"Sup3r$ecret"}`,
	}
	for name, body := range cases {
		rec := do(t, h.Register, http.MethodPost, "/v1/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR", name)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	mock.ExpectExec(insertUserQuery).
		WillReturnError(fmt.Errorf("Error 1062 (23000): Duplicate entry 'ada@example.com' for key 'users.email'"))

	rec := do(t, h.Register, http.MethodPost, "/v1/auth/register", registerBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "USER_EXISTS")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginUnknownEmail(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	mock.ExpectQuery(selectUserByMail).WillReturnError(sql.ErrNoRows)

	rec := do(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ghost@example.com","password":"Sup3r$ecret"}`)
	// Same answer as a wrong password so account existence stays hidden.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
}

func TestLoginSuccess(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	hash := mustHash(t, "Sup3r$ecret")
	mock.ExpectQuery(selectUserByMail).WithArgs("ada@example.com").
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 2, nil))
	mock.ExpectExec(recordSuccess).WithArgs(sqlmock.AnyArg(), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ADA@example.com","password":"Sup3r$ecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"access_token"`)
	assert.NotContains(t, body, "password")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginWrongPasswordIncrementsCounter(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	hash := mustHash(t, "Sup3r$ecret")
	mock.ExpectQuery(selectUserByMail).
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 1, nil))
	mock.ExpectExec(recordFailure).WithArgs(2, nil, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"WrongPass1!"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
	assert.Contains(t, rec.Body.String(), `"attempts_remaining":3`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginFifthFailureTriggersLock(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	hash := mustHash(t, "Sup3r$ecret")
	mock.ExpectQuery(selectUserByMail).
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 4, nil))
	// Counter resets to zero the moment the lock is set.
	mock.ExpectExec(recordFailure).WithArgs(0, sqlmock.AnyArg(), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"WrongPass1!"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"attempts_remaining":0`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginLockedAccount(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	// Even the correct password is rejected while the lock holds.
	hash := mustHash(t, "Sup3r$ecret")
	lockedUntil := time.Now().UTC().Add(12 * time.Minute)
	mock.ExpectQuery(selectUserByMail).
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 0, lockedUntil))

	rec := do(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"Sup3r$ecret"}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_LOCKED")
	assert.Contains(t, rec.Body.String(), "minutes")
}

func TestLoginExpiredLockIsIgnored(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	hash := mustHash(t, "Sup3r$ecret")
	expired := time.Now().UTC().Add(-time.Minute)
	mock.ExpectQuery(selectUserByMail).
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 0, expired))
	mock.ExpectExec(recordSuccess).WithArgs(sqlmock.AnyArg(), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"Sup3r$ecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshMissingToken(t *testing.T) {
	h, _, cleanup := newAuthEnv(t)
	defer cleanup()

	rec := do(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "REFRESH_TOKEN_REQUIRED")
}

func TestRefreshInvalidToken(t *testing.T) {
	h, _, cleanup := newAuthEnv(t)
	defer cleanup()

	// Signed with the wrong secret.
	foreign := auth.NewIssuer("other-access", "other-refresh", "strategy-api", "strategy-clients",
		time.Hour, time.Hour)
	pair, err := foreign.IssuePair(&model.User{ID: 7, Email: "ada@example.com", Role: model.RoleUser})
	require.NoError(t, err)

	rec := do(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		fmt.Sprintf(`{"refresh_token":%q}`, pair.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REFRESH_TOKEN")
}

func TestRefreshExpiredToken(t *testing.T) {
	h, _, cleanup := newAuthEnv(t)
	defer cleanup()

	stale := auth.NewIssuer("access-secret", "refresh-secret", "strategy-api", "strategy-clients",
		-time.Minute, -time.Minute)
	pair, err := stale.IssuePair(&model.User{ID: 7, Email: "ada@example.com", Role: model.RoleUser})
	require.NoError(t, err)

	rec := do(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		fmt.Sprintf(`{"refresh_token":%q}`, pair.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REFRESH_TOKEN")
}

func TestRefreshSuccessDoesNotRotate(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	pair, err := testIssuer().IssuePair(&model.User{ID: 7, Email: "ada@example.com", Role: model.RoleUser})
	require.NoError(t, err)

	hash := mustHash(t, "Sup3r$ecret")
	mock.ExpectQuery(selectUserByID).WithArgs(uint64(7)).
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 0, nil))

	rec := do(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		fmt.Sprintf(`{"refresh_token":%q}`, pair.RefreshToken))
	assert.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data struct {
			Tokens auth.TokenPair `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotEmpty(t, env.Data.Tokens.AccessToken)

	// The new access token verifies against the real issuer, and the old
	// refresh token is still accepted: no rotation in this design.
	_, err = testIssuer().VerifyAccess(env.Data.Tokens.AccessToken)
	assert.NoError(t, err)
	_, err = testIssuer().VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRequestNeverLeaksExistence(t *testing.T) {
	h, mock, cleanup := newAuthEnv(t)
	defer cleanup()

	// Unknown account: still a 200 with the same message.
	mock.ExpectQuery(selectUserByMail).WillReturnError(sql.ErrNoRows)
	rec := do(t, h.RequestPasswordReset, http.MethodPost, "/v1/auth/password/reset-request",
		`{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	first := rec.Body.String()

	// Known account: token stored, identical answer.
	hash := mustHash(t, "Sup3r$ecret")
	mock.ExpectQuery(selectUserByMail).
		WillReturnRows(userRowWithHash(7, "ada@example.com", hash, 0, nil))
	mock.ExpectExec(`UPDATE users SET reset_token_hash=\?, reset_token_expires_at=\? WHERE id=\? AND deleted_at IS NULL`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rec = do(t, h.RequestPasswordReset, http.MethodPost, "/v1/auth/password/reset-request",
		`{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	h, _, cleanup := newAuthEnv(t)
	defer cleanup()

	rec := do(t, h.Logout, http.MethodPost, "/v1/auth/logout", ``)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}
