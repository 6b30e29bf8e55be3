package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/stratboard/strategy-api/internal/cache"
	"github.com/stratboard/strategy-api/internal/httpx"
	"github.com/stratboard/strategy-api/internal/middleware"
	"github.com/stratboard/strategy-api/internal/model"
	"github.com/stratboard/strategy-api/internal/repository"
	"github.com/stratboard/strategy-api/internal/validate"
)

// StrategyHandler bundles dependencies for strategy endpoints.
type StrategyHandler struct {
	Strategies *repository.StrategyRepo
	Cache      *cache.Store
}

func NewStrategyHandler(s *repository.StrategyRepo, cs *cache.Store) *StrategyHandler {
	return &StrategyHandler{Strategies: s, Cache: cs}
}

// ----- DTOs -----

type strategyReq struct {
	Name        string `json:"name" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"required,min=10,max=2000"`
	Market      string `json:"market" validate:"required,max=20"`
	Timeframe   string `json:"timeframe" validate:"required,max=10"`
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Reason string `json:"reason"`
}

type strategyView struct {
	ID              uint64     `json:"id"`
	UserID          uint64     `json:"user_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Market          string     `json:"market"`
	Timeframe       string     `json:"timeframe"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ReviewedBy      *uint64    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func strategyViewOf(s *model.Strategy) strategyView {
	v := strategyView{
		ID:          s.ID,
		UserID:      s.UserID,
		Name:        s.Name,
		Description: s.Description,
		Market:      s.Market,
		Timeframe:   s.Timeframe,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.RejectionReason.Valid {
		r := s.RejectionReason.String
		v.RejectionReason = &r
	}
	if s.SubmittedAt.Valid {
		t := s.SubmittedAt.Time
		v.SubmittedAt = &t
	}
	if s.ReviewedBy.Valid {
		id := uint64(s.ReviewedBy.Int64)
		v.ReviewedBy = &id
	}
	if s.ReviewedAt.Valid {
		t := s.ReviewedAt.Time
		v.ReviewedAt = &t
	}
	return v
}

type listResp struct {
	Items      []strategyView `json:"items"`
	Pagination pagination     `json:"pagination"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ----- helpers -----

func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func isAdmin(u *model.User) bool { return u != nil && u.Role == model.RoleAdmin }

func canManage(u *model.User, s *model.Strategy) bool {
	return u != nil && (u.ID == s.UserID || isAdmin(u))
}

// ----- handlers -----

// List serves GET /v1/strategies.  Guests and plain users see approved
// strategies only; authenticated users can add ?mine=true to list their own
// regardless of status, and admins can filter with ?status=.  Anonymous
// pages are served through the Redis cache.
func (h *StrategyHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	viewer, _ := middleware.CurrentUser(c)
	f := repository.ListFilter{Status: model.StatusApproved, Page: page, Limit: limit}
	switch {
	case viewer != nil && c.QueryParam("mine") == "true":
		f.UserID = viewer.ID
		f.Status = "" // owners see their drafts and rejections
	case isAdmin(viewer):
		switch s := c.QueryParam("status"); s {
		case "", "all":
			f.Status = ""
		case model.StatusDraft, model.StatusPending, model.StatusApproved, model.StatusRejected:
			f.Status = s
		default:
			return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "unknown status filter")
		}
	}

	// Only anonymous requests are cached: their filter is always the fixed
	// approved-only default, so page/limit alone identify the entry.
	cacheable := viewer == nil
	suffix := fmt.Sprintf("list:p%d:l%d", page, limit)
	if cacheable {
		var cached listResp
		if h.Cache.Get(c.Request().Context(), suffix, &cached) {
			return httpx.OK(c, http.StatusOK, cached)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, total, err := h.Strategies.List(ctx, f)
	if err != nil {
		logrus.WithError(err).Error("strategy list failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}

	resp := listResp{
		Items: make([]strategyView, 0, len(items)),
		Pagination: pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}
	for i := range items {
		resp.Items = append(resp.Items, strategyViewOf(&items[i]))
	}
	if cacheable {
		h.Cache.Set(c.Request().Context(), suffix, resp)
	}
	return httpx.OK(c, http.StatusOK, resp)
}

// Get serves GET /v1/strategies/:id.  Non-approved strategies are visible
// only to their owner and admins; everyone else gets the same 404 a missing
// row would produce.
func (h *StrategyHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid strategy id")
	}
	viewer, _ := middleware.CurrentUser(c)

	// Only anonymous requests are cached: a guest can only ever receive the
	// approved view of a strategy, so the id alone identifies the entry.
	cacheable := viewer == nil
	suffix := fmt.Sprintf("detail:%d", id)
	if cacheable {
		var cached strategyView
		if h.Cache.Get(c.Request().Context(), suffix, &cached) {
			return httpx.OK(c, http.StatusOK, cached)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	s, err := h.Strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy get failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	if s.Status != model.StatusApproved && !canManage(viewer, s) {
		return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
	}

	view := strategyViewOf(s)
	if cacheable {
		h.Cache.Set(c.Request().Context(), suffix, view)
	}
	return httpx.OK(c, http.StatusOK, view)
}

// Create serves POST /v1/strategies.  New strategies always start in draft.
func (h *StrategyHandler) Create(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	var req strategyReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return httpx.FailDetails(c, http.StatusBadRequest, httpx.CodeValidation, "validation failed", validate.Describe(err))
	}

	s := &model.Strategy{
		UserID:      u.ID,
		Name:        req.Name,
		Description: req.Description,
		Market:      strings.ToUpper(strings.TrimSpace(req.Market)),
		Timeframe:   strings.ToUpper(strings.TrimSpace(req.Timeframe)),
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Strategies.Create(ctx, s); err != nil {
		logrus.WithError(err).Error("strategy create failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	h.Cache.Invalidate(c.Request().Context())
	return httpx.OK(c, http.StatusCreated, strategyViewOf(s))
}

// Update serves PUT /v1/strategies/:id.  An owner edit of an approved or
// rejected strategy resets it to draft and clears the review trail; admin
// edits keep the current status.
func (h *StrategyHandler) Update(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	id, err := pathID(c)
	if err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid strategy id")
	}
	var req strategyReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return httpx.FailDetails(c, http.StatusBadRequest, httpx.CodeValidation, "validation failed", validate.Describe(err))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	s, err := h.Strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy load failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	if !canManage(u, s) {
		return httpx.Fail(c, http.StatusForbidden, httpx.CodeStrategyDenied, "you do not own this strategy")
	}

	s.Name = req.Name
	s.Description = req.Description
	s.Market = strings.ToUpper(strings.TrimSpace(req.Market))
	s.Timeframe = strings.ToUpper(strings.TrimSpace(req.Timeframe))
	if (s.Status == model.StatusApproved || s.Status == model.StatusRejected) && !isAdmin(u) {
		s.Status = model.StatusDraft
		s.RejectionReason = sql.NullString{}
		s.SubmittedAt = sql.NullTime{}
		s.ReviewedBy = sql.NullInt64{}
		s.ReviewedAt = sql.NullTime{}
	}

	if err := h.Strategies.Update(ctx, s); err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy update failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	h.Cache.Invalidate(c.Request().Context())
	return httpx.OK(c, http.StatusOK, strategyViewOf(s))
}

// Delete serves DELETE /v1/strategies/:id with a soft delete.
func (h *StrategyHandler) Delete(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	id, err := pathID(c)
	if err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid strategy id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	s, err := h.Strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy load failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	if !canManage(u, s) {
		return httpx.Fail(c, http.StatusForbidden, httpx.CodeStrategyDenied, "you do not own this strategy")
	}

	if err := h.Strategies.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy delete failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	h.Cache.Invalidate(c.Request().Context())
	return httpx.Msg(c, http.StatusOK, "strategy deleted")
}

// Submit serves POST /v1/strategies/:id/submit.  Only the owner may move a
// draft to pending; any other starting status is an invalid transition.
func (h *StrategyHandler) Submit(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	id, err := pathID(c)
	if err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid strategy id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	s, err := h.Strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy load failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	if s.UserID != u.ID {
		return httpx.Fail(c, http.StatusForbidden, httpx.CodeStrategyDenied, "only the owner can submit a strategy")
	}
	if !s.CanTransition(model.StatusPending) {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeInvalidTransition,
			fmt.Sprintf("cannot submit a strategy in %q status", s.Status))
	}

	now := time.Now().UTC()
	if err := h.Strategies.SetStatus(ctx, id, model.StatusPending, sql.NullString{}, sql.NullInt64{}, now); err != nil {
		logrus.WithError(err).Error("strategy submit failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	s.Status = model.StatusPending
	s.SubmittedAt = sql.NullTime{Time: now, Valid: true}
	h.Cache.Invalidate(c.Request().Context())
	return httpx.OK(c, http.StatusOK, strategyViewOf(s))
}

// UpdateStatus serves PUT /v1/strategies/:id/status for admins.  Approval
// and rejection are only legal from pending; a rejection must carry a
// reason of 10–500 characters.
func (h *StrategyHandler) UpdateStatus(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
	}
	id, err := pathID(c)
	if err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid strategy id")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httpx.FailDetails(c, http.StatusBadRequest, httpx.CodeValidation, "validation failed", validate.Describe(err))
	}
	req.Reason = strings.TrimSpace(req.Reason)
	// Bounds are in characters, not bytes; a multibyte reason counts by rune.
	if n := utf8.RuneCountInString(req.Reason); req.Status == model.StatusRejected && (n < 10 || n > 500) {
		return httpx.FailDetails(c, http.StatusBadRequest, httpx.CodeValidation, "validation failed",
			[]validate.FieldError{{Field: "reason", Message: "must be 10-500 characters when rejecting"}})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	s, err := h.Strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return httpx.Fail(c, http.StatusNotFound, httpx.CodeStrategyNotFound, "strategy not found")
		}
		logrus.WithError(err).Error("strategy load failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	if !s.CanTransition(req.Status) {
		return httpx.Fail(c, http.StatusBadRequest, httpx.CodeInvalidTransition,
			fmt.Sprintf("cannot move a strategy from %q to %q", s.Status, req.Status))
	}

	now := time.Now().UTC()
	reason := sql.NullString{}
	if req.Status == model.StatusRejected {
		reason = sql.NullString{String: req.Reason, Valid: true}
	}
	reviewer := sql.NullInt64{Int64: int64(u.ID), Valid: true}
	if err := h.Strategies.SetStatus(ctx, id, req.Status, reason, reviewer, now); err != nil {
		logrus.WithError(err).Error("strategy status update failed")
		return httpx.Fail(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
	s.Status = req.Status
	s.RejectionReason = reason
	s.ReviewedBy = reviewer
	s.ReviewedAt = sql.NullTime{Time: now, Valid: true}
	h.Cache.Invalidate(c.Request().Context())
	return httpx.OK(c, http.StatusOK, strategyViewOf(s))
}
