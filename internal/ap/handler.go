package ap

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler exposes the payables lifecycle over JSON.
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
	r.Post("/{id}/post", h.Post)
	return r
}

type lineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"required"`
	TaxCode     string          `json:"tax_code"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

type createRequest struct {
	SupplierID    int64            `json:"supplier_id" validate:"required,gt=0"`
	CompanyCode   string           `json:"company_code" validate:"required_without=Number"`
	Number        string           `json:"number"`
	Currency      string           `json:"currency" validate:"required,len=3"`
	ExchangeRate  decimal.Decimal  `json:"exchange_rate"`
	IssueDate     string           `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDate       string           `json:"due_date" validate:"required,datetime=2006-01-02"`
	DeclaredTotal *decimal.Decimal `json:"declared_total"`
	Lines         []lineRequest    `json:"lines" validate:"required,min=1,dive"`
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

	issue, _ := time.Parse("2006-01-02", req.IssueDate)
	due, _ := time.Parse("2006-01-02", req.DueDate)
	id := httpx.IdentityFromContext(r.Context())

	in := CreateInput{
		Scope:         id.Scope,
		SupplierID:    req.SupplierID,
		CompanyCode:   req.CompanyCode,
		Number:        req.Number,
		Currency:      req.Currency,
		ExchangeRate:  req.ExchangeRate,
		IssueDate:     issue,
		DueDate:       due,
		DeclaredTotal: req.DeclaredTotal,
		ActorID:       id.ActorID,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			AccountID:   line.AccountID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxCode:     line.TaxCode,
			TaxRate:     line.TaxRate,
		})
	}

	bill, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

type postRequest struct {
	PeriodID       int64  `json:"period_id" validate:"required,gt=0"`
	CompanyCode    string `json:"company_code" validate:"required"`
	Override       bool   `json:"override"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "bill id must be a uuid")
		return
	}

	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, err.Error())
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	bill, result, err := h.service.Post(r.Context(), PostInput{
		Scope:          id.Scope,
		BillID:         billID,
		PeriodID:       req.PeriodID,
		CompanyCode:    req.CompanyCode,
		PostedBy:       id.ActorID,
		UserRole:       id.Role,
		Override:       req.Override,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"bill":    bill,
		"journal": result.Journal,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "bill id must be a uuid")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	bill, err := h.service.Get(r.Context(), id.Scope, billID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	list, err := h.service.List(r.Context(), id.Scope)
	if err != nil {
		h.logger.Error("list bills failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
