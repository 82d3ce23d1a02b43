package ar

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

// Handler exposes the receivables lifecycle over JSON.
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
	r.Get("/aging", h.Aging)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/validate", h.Validate)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/close", h.Close)
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
	CustomerID    int64            `json:"customer_id" validate:"required,gt=0"`
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
		CustomerID:    req.CustomerID,
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

	invoice, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

type postRequest struct {
	PeriodID       int64  `json:"period_id" validate:"required,gt=0"`
	CompanyCode    string `json:"company_code" validate:"required"`
	Override       bool   `json:"override"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invoice id must be a uuid")
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
	invoice, result, err := h.service.Post(r.Context(), PostInput{
		Scope:          id.Scope,
		InvoiceID:      invoiceID,
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
		"invoice": invoice,
		"journal": result.Journal,
	})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invoice id must be a uuid")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	invoice, err := h.service.Validate(r.Context(), id.Scope, invoiceID, id.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invoice id must be a uuid")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	invoice, err := h.service.Close(r.Context(), id.Scope, invoiceID, id.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "invoice id must be a uuid")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	invoice, err := h.service.Get(r.Context(), id.Scope, invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	list, err := h.service.List(r.Context(), id.Scope)
	if err != nil {
		h.logger.Error("list invoices failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	id := httpx.IdentityFromContext(r.Context())
	buckets, err := h.service.Aging(r.Context(), id.Scope, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}
