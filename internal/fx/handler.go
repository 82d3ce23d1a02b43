package fx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler exposes exchange rates and on-demand refresh.
type Handler struct {
	logger   *slog.Logger
	advisor  *Advisor
	ingestor *Ingestor
	pairs    []Pair
}

func NewHandler(logger *slog.Logger, advisor *Advisor, ingestor *Ingestor, pairs []Pair) *Handler {
	return &Handler{logger: logger, advisor: advisor, ingestor: ingestor, pairs: pairs}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/rates/{currency}", h.Rate)
	r.Get("/rates/{currency}/staleness", h.Staleness)
	r.Post("/refresh", h.Refresh)
	return r
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(chi.URLParam(r, "currency"))
	if len(currency) != 3 {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "currency must be a 3-letter code")
		return
	}

	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	id := httpx.IdentityFromContext(r.Context())
	rate, err := h.advisor.RateFor(r.Context(), id.Scope.TenantID, currency, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) Staleness(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(chi.URLParam(r, "currency"))
	if len(currency) != 3 {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "currency must be a 3-letter code")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	class, rate, err := h.advisor.Classify(r.Context(), id.Scope.TenantID, currency)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"classification":  class,
		"review_required": class.RequiresReview(),
		"rate":            rate,
	})
}

// Refresh runs a synchronous ingestion sweep for the configured pairs. The
// scheduled job covers steady state; this endpoint exists for operators who
// need a rate now.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		httpx.ProblemWithCode(w, http.StatusServiceUnavailable, shared.CodeFxSourceUnreachable, "no ingestion sources configured")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	errs := h.ingestor.IngestAll(r.Context(), id.Scope.TenantID, h.pairs)
	failed := make([]string, 0, len(errs))
	for _, err := range errs {
		failed = append(failed, err.Error())
	}
	if len(failed) > 0 {
		h.logger.Warn("fx refresh finished with failures", "failed", len(failed), "pairs", len(h.pairs))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"pairs":    len(h.pairs),
		"failures": failed,
	})
}
