package accounts

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler serves the chart of accounts.
type Handler struct {
	logger *slog.Logger
	repo   Repository
}

func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{code}", h.GetByCode)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	all, err := h.repo.MapByScope(r.Context(), id.Scope)
	if err != nil {
		h.logger.Error("list accounts failed", "error", err)
		httpx.RespondError(w, err)
		return
	}

	list := make([]Account, 0, len(all))
	for _, acc := range all {
		list = append(list, acc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) GetByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "account code required")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	account, err := h.repo.GetByCode(r.Context(), id.Scope, code)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}
