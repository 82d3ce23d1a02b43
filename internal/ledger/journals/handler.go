package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler exposes journal posting over JSON.
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
	r.Post("/", h.Post)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/reverse", h.Reverse)
	return r
}

type postLineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

type postRequest struct {
	PeriodID       int64             `json:"period_id" validate:"required,gt=0"`
	Date           string            `json:"date" validate:"required,datetime=2006-01-02"`
	Currency       string            `json:"currency" validate:"required,len=3"`
	CompanyCode    string            `json:"company_code" validate:"required"`
	Number         string            `json:"number"`
	SourceModule   string            `json:"source_module"`
	SourceID       string            `json:"source_id"`
	Memo           string            `json:"memo"`
	Override       bool              `json:"override"`
	IdempotencyKey string            `json:"idempotency_key"`
	Lines          []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, err.Error())
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	sourceID := uuid.Nil
	if req.SourceID != "" {
		parsed, err := uuid.Parse(req.SourceID)
		if err != nil {
			httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, "source_id must be a uuid")
			return
		}
		sourceID = parsed
	}

	id := httpx.IdentityFromContext(r.Context())
	input := PostingInput{
		Scope:          id.Scope,
		PeriodID:       req.PeriodID,
		Date:           date,
		Currency:       req.Currency,
		CompanyCode:    req.CompanyCode,
		Number:         req.Number,
		SourceModule:   req.SourceModule,
		SourceID:       sourceID,
		Memo:           req.Memo,
		PostedBy:       id.ActorID,
		UserRole:       id.Role,
		Override:       req.Override,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			Reference:   line.Reference,
		})
	}

	result, err := h.service.Post(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

type reverseRequest struct {
	Memo        string `json:"memo"`
	TargetDate  string `json:"target_date" validate:"omitempty,datetime=2006-01-02"`
	CompanyCode string `json:"company_code" validate:"required"`
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	journalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "journal id must be numeric")
		return
	}

	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, err.Error())
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	input := ReverseInput{
		Scope:       id.Scope,
		JournalID:   journalID,
		ActorID:     id.ActorID,
		UserRole:    id.Role,
		Memo:        req.Memo,
		CompanyCode: req.CompanyCode,
	}
	if req.TargetDate != "" {
		date, _ := time.Parse("2006-01-02", req.TargetDate)
		input.TargetDate = &date
	}

	reversal, err := h.service.Reverse(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	journalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "journal id must be numeric")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	journal, err := h.service.Get(r.Context(), id.Scope, journalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, journal)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	list, err := h.service.List(r.Context(), id.Scope)
	if err != nil {
		h.logger.Error("list journals failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
