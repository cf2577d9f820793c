package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/api/middleware"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/identity"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/rs/zerolog"
)

// ExpenseFinder reads a user's expenses for a date range.
type ExpenseFinder interface {
	FindExpensesInRange(ctx context.Context, userKey string, start, end civil.Date) ([]domain.Expense, error)
}

// ExpensesHandler serves expense listings and monthly summaries.
type ExpensesHandler struct {
	repo ExpenseFinder
	now  func() time.Time
	log  zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(repo ExpenseFinder, now func() time.Time, log zerolog.Logger) *ExpensesHandler {
	if now == nil {
		now = time.Now
	}
	return &ExpensesHandler{
		repo: repo,
		now:  now,
		log:  log,
	}
}

// ListExpenses handles GET /api/expenses
func (h *ExpensesHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	userKey := query.Get("user")
	if userKey == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user is required")
		return
	}

	today := civil.DateOf(h.now())
	startDate := today.AddDays(-365)
	endDate := today

	if s := query.Get("start_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		startDate = d
	}
	if s := query.Get("end_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		endDate = d
	}
	if endDate.Before(startDate) {
		middleware.WriteError(w, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	expenses, err := h.repo.FindExpensesInRange(ctx, userKey, startDate, endDate)
	if err != nil {
		h.log.Error().Err(err).Str("user", userKey).Msg("Failed to query expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query expenses")
		return
	}

	// Return array directly for frontend compatibility
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, expenses)
}

// SummaryResponse is the body of GET /api/summary.
type SummaryResponse struct {
	User       string                 `json:"user"`
	Month      string                 `json:"month"`
	Start      civil.Date             `json:"start"`
	End        civil.Date             `json:"end"`
	Count      int                    `json:"count"`
	ByCurrency []ledger.CurrencyTotal `json:"by_currency"`
	ByCategory []ledger.CategoryTotal `json:"by_category"`
}

// Summary handles GET /api/summary
func (h *ExpensesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	userKey := query.Get("user")
	if userKey == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user is required")
		return
	}

	month := h.now()
	if m := query.Get("month"); m != "" {
		t, err := time.Parse("2006-01", m)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid month format, expected YYYY-MM")
			return
		}
		month = t
	}
	start, end := ledger.MonthRange(month)

	expenses, err := h.repo.FindExpensesInRange(ctx, userKey, start, end)
	if err != nil {
		h.log.Error().Err(err).Str("user", userKey).Msg("Failed to query expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query expenses")
		return
	}

	resp := SummaryResponse{
		User:       userKey,
		Month:      month.Format("2006-01"),
		Start:      start,
		End:        end,
		Count:      len(expenses),
		ByCurrency: ledger.CurrencyTotals(expenses),
		ByCategory: ledger.CategoryTotals(expenses),
	}
	if resp.ByCurrency == nil {
		resp.ByCurrency = []ledger.CurrencyTotal{}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListCategories handles GET /api/categories
func ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": domain.Categories,
		"count":      len(domain.Categories),
	})
}

// LinkRedeemer consumes dashboard link codes.
type LinkRedeemer interface {
	Redeem(ctx context.Context, code string) (string, error)
}

// NotificationEmailRegistrar stores a user's bank notification address.
type NotificationEmailRegistrar interface {
	RegisterNotificationEmail(ctx context.Context, userKey, email string) error
}

// UsersHandler handles account linking and user settings.
type UsersHandler struct {
	links     LinkRedeemer
	registrar NotificationEmailRegistrar
	log       zerolog.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(links LinkRedeemer, registrar NotificationEmailRegistrar, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		links:     links,
		registrar: registrar,
		log:       log,
	}
}

// RedeemLinkCode handles POST /api/link/redeem
func (h *UsersHandler) RedeemLinkCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Code == "" {
		middleware.WriteError(w, http.StatusBadRequest, "code is required")
		return
	}

	userKey, err := h.links.Redeem(r.Context(), req.Code)
	if errors.Is(err, domain.ErrLinkCodeInvalid) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid or expired code")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to redeem link code")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to redeem link code")
		return
	}

	h.log.Info().Str("user", userKey).Msg("Link code redeemed")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"user_key": userKey,
	})
}

// SetNotificationEmail handles PUT /api/users/{key}/notification-email
func (h *UsersHandler) SetNotificationEmail(w http.ResponseWriter, r *http.Request, userKey string) {
	var req struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if identity.Address(req.Email) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	err := h.registrar.RegisterNotificationEmail(r.Context(), userKey, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("user", userKey).Msg("Failed to set notification email")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to set notification email")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// JobsHandler handles reply outbox endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Recipient: query.Get("recipient"),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
