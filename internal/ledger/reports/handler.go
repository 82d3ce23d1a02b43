package reports

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler serves the financial statements.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/income-statement", h.IncomeStatement)
	r.Get("/balance-sheet", h.BalanceSheet)
	r.Get("/cash-flow", h.CashFlow)
	return r
}

// inputFromQuery builds the report window from query parameters. as_of
// defaults to today; from defaults to the start of the as_of year so the
// flow statements cover year to date.
func inputFromQuery(r *http.Request) (Input, error) {
	id := httpx.IdentityFromContext(r.Context())
	in := Input{
		Scope:    id.Scope,
		Currency: r.URL.Query().Get("currency"),
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Input{}, shared.Errorf(shared.CodeInvalidInput, "as_of must be YYYY-MM-DD")
		}
		asOf = parsed
	}
	in.AsOfDate = asOf

	from := time.Date(asOf.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Input{}, shared.Errorf(shared.CodeInvalidInput, "from must be YYYY-MM-DD")
		}
		from = parsed
	}
	in.FromDate = from

	return in, nil
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	in, err := inputFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), in)
	if err != nil {
		h.logger.Error("trial balance failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) IncomeStatement(w http.ResponseWriter, r *http.Request) {
	in, err := inputFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pl, err := h.service.IncomeStatement(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	in, err := inputFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) CashFlow(w http.ResponseWriter, r *http.Request) {
	in, err := inputFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	method := MethodIndirect
	switch strings.ToUpper(r.URL.Query().Get("method")) {
	case "", string(MethodIndirect):
	case string(MethodDirect):
		method = MethodDirect
	default:
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, "method must be DIRECT or INDIRECT")
		return
	}

	cf, err := h.service.CashFlow(r.Context(), in, method)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cf)
}
