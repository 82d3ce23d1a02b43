package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/ap"
	"github.com/meridian-books/meridian/internal/ar"
	"github.com/meridian-books/meridian/internal/audit"
	"github.com/meridian-books/meridian/internal/fx"
	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/journals"
	"github.com/meridian-books/meridian/internal/ledger/periods"
	"github.com/meridian-books/meridian/internal/ledger/reports"
	"github.com/meridian-books/meridian/internal/observability"
	"github.com/meridian-books/meridian/internal/payments"
	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AccountsHandler *accounts.Handler
	JournalsHandler *journals.Handler
	PeriodsHandler  *periods.Handler
	ReportsHandler  *reports.Handler
	ARHandler       *ar.Handler
	APHandler       *ap.Handler
	PaymentsHandler *payments.Handler
	FxHandler       *fx.Handler
	AuditHandler    *audit.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router for the ledger API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpx.RequireIdentity)

		if params.AccountsHandler != nil {
			api.Mount("/accounts", params.AccountsHandler.Routes())
		}
		if params.JournalsHandler != nil {
			api.Mount("/journals", params.JournalsHandler.Routes())
		}
		if params.PeriodsHandler != nil {
			api.Mount("/periods", params.PeriodsHandler.Routes())
		}
		if params.ReportsHandler != nil {
			api.Mount("/reports", params.ReportsHandler.Routes())
		}
		if params.ARHandler != nil {
			api.Mount("/invoices", params.ARHandler.Routes())
		}
		if params.APHandler != nil {
			api.Mount("/bills", params.APHandler.Routes())
		}
		if params.PaymentsHandler != nil {
			api.Mount("/payments", params.PaymentsHandler.Routes())
		}
		if params.FxHandler != nil {
			api.Mount("/fx", params.FxHandler.Routes())
		}
		if params.AuditHandler != nil {
			api.Mount("/audit", params.AuditHandler.Routes())
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}
