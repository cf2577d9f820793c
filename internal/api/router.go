// Package api assembles the HTTP surface of the bot: the analytics API, the
// channel webhooks, health and metrics.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/api/handlers"
	"github.com/dvloznov/expense-bot/internal/api/middleware"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the routes need. Nil webhooks are not mounted.
type Deps struct {
	Expenses  handlers.ExpenseFinder
	Links     handlers.LinkRedeemer
	Registrar handlers.NotificationEmailRegistrar
	Jobs      jobs.JobStore
	Metrics   http.Handler

	TelegramWebhook http.Handler
	EmailWebhook    http.Handler
	WhatsAppWebhook http.Handler

	// APIToken guards /api/*. Webhooks authenticate themselves.
	APIToken string
	Now      func() time.Time
	Log      zerolog.Logger
}

// NewRouter returns the root handler with middleware applied.
func NewRouter(d Deps) http.Handler {
	expensesHandler := handlers.NewExpensesHandler(d.Expenses, d.Now, d.Log)
	usersHandler := handlers.NewUsersHandler(d.Links, d.Registrar, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Log)

	api := http.NewServeMux()

	// Expenses endpoints
	api.HandleFunc("/api/expenses", method(http.MethodGet, expensesHandler.ListExpenses))
	api.HandleFunc("/api/summary", method(http.MethodGet, expensesHandler.Summary))

	// Categories endpoints
	api.HandleFunc("/api/categories", method(http.MethodGet, handlers.ListCategories))

	// Account endpoints
	api.HandleFunc("/api/link/redeem", method(http.MethodPost, usersHandler.RedeemLinkCode))
	api.HandleFunc("/api/users/", method(http.MethodPut, func(w http.ResponseWriter, r *http.Request) {
		// /api/users/{key}/notification-email
		rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
		userKey, ok := strings.CutSuffix(rest, "/notification-email")
		if !ok || userKey == "" || strings.Contains(userKey, "/") {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		usersHandler.SetNotificationEmail(w, r, userKey)
	}))

	// Jobs endpoints
	api.HandleFunc("/api/jobs", method(http.MethodGet, jobsHandler.ListJobs))
	api.HandleFunc("/api/jobs/", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	}))

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.CORS(middleware.Auth(d.APIToken)(api)))

	if d.TelegramWebhook != nil {
		mux.Handle("/webhooks/telegram", d.TelegramWebhook)
	}
	if d.EmailWebhook != nil {
		mux.Handle("/webhooks/email", d.EmailWebhook)
	}
	if d.WhatsAppWebhook != nil {
		mux.Handle("/webhooks/whatsapp", d.WhatsAppWebhook)
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}

	// Health check endpoint
	now := d.Now
	if now == nil {
		now = time.Now
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	return middleware.Recovery(d.Log)(
		middleware.Logger(d.Log)(
			middleware.RequestID(mux),
		),
	)
}

// method rejects requests with any other HTTP method.
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
