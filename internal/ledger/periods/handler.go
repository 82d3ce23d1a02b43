package periods

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler exposes the period lifecycle over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/close", h.Close)
	r.Post("/{id}/reopen", h.Reopen)
	r.Post("/{id}/lock", h.Lock)
	return r
}

type createRequest struct {
	Code      string `json:"code" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, err.Error())
		return
	}

	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	id := httpx.IdentityFromContext(r.Context())

	period, err := h.service.Create(r.Context(), CreateInput{
		Scope:     id.Scope,
		Code:      req.Code,
		StartDate: start,
		EndDate:   end,
		ActorID:   id.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

type closeRequest struct {
	CloseDate                string `json:"close_date" validate:"omitempty,datetime=2006-01-02"`
	CloseReason              string `json:"close_reason"`
	AdjustmentsConfirmed     bool   `json:"adjustments_confirmed"`
	ForceClose               bool   `json:"force_close"`
	GenerateReversingEntries bool   `json:"generate_reversing_entries"`
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "period id must be numeric")
		return
	}

	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, err.Error())
		return
	}

	closeDate := time.Now()
	if req.CloseDate != "" {
		closeDate, _ = time.Parse("2006-01-02", req.CloseDate)
	}

	id := httpx.IdentityFromContext(r.Context())
	result, err := h.service.Close(r.Context(), CloseInput{
		Scope:                    id.Scope,
		FiscalPeriodID:           periodID,
		CloseDate:                closeDate,
		ClosedBy:                 id.ActorID,
		UserRole:                 id.Role,
		CloseReason:              req.CloseReason,
		AdjustmentsConfirmed:     req.AdjustmentsConfirmed,
		ForceClose:               req.ForceClose,
		GenerateReversingEntries: req.GenerateReversingEntries,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// A blocked close is a readable outcome, not an error.
	status := http.StatusOK
	if !result.Closed && !result.CanClose {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, result)
}

type reopenRequest struct {
	OpenReason string `json:"open_reason" validate:"required"`
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "period id must be numeric")
		return
	}

	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, err.Error())
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	period, err := h.service.Reopen(r.Context(), ReopenInput{
		Scope:      id.Scope,
		PeriodID:   periodID,
		ActorID:    id.ActorID,
		UserRole:   id.Role,
		OpenReason: req.OpenReason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "period id must be numeric")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	period, err := h.service.Lock(r.Context(), id.Scope, periodID, id.ActorID, id.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "period id must be numeric")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	period, err := h.service.Get(r.Context(), id.Scope, periodID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	list, err := h.service.List(r.Context(), id.Scope)
	if err != nil {
		h.logger.Error("list periods failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
