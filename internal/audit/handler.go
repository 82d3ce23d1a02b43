package audit

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Timeline)
	r.Get("/export", h.Export)
	return r
}

func filtersFromQuery(q url.Values) (Filters, error) {
	var f Filters
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filters{}, shared.Errorf(shared.CodeInvalidInput, "invalid from date %q", raw)
		}
		f.From = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filters{}, shared.Errorf(shared.CodeInvalidInput, "invalid to date %q", raw)
		}
		f.To = parsed.AddDate(0, 0, 1)
	}
	if raw := q.Get("actor_id"); raw != "" {
		actor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filters{}, shared.Errorf(shared.CodeInvalidInput, "invalid actor_id %q", raw)
		}
		f.ActorID = actor
	}
	f.Entity = q.Get("entity")
	f.EntityID = q.Get("entity_id")
	f.Action = q.Get("action")
	if raw := q.Get("page"); raw != "" {
		f.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("page_size"); raw != "" {
		f.PageSize, _ = strconv.Atoi(raw)
	}
	return f, nil
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	result, err := h.service.Timeline(r.Context(), id.Scope, filters)
	if err != nil {
		h.logger.Error("audit timeline failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	data, err := h.service.ExportCSV(r.Context(), id.Scope, filters)
	if err != nil {
		h.logger.Error("audit export failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
