package payments

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

// Handler exposes payments and receipts over JSON.
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

type allocationRequest struct {
	DocumentID string          `json:"document_id" validate:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
}

type createRequest struct {
	Type           string              `json:"type" validate:"required,oneof=OUT IN"`
	CounterpartyID int64               `json:"counterparty_id" validate:"required,gt=0"`
	CompanyCode    string              `json:"company_code" validate:"required_without=Number"`
	Number         string              `json:"number"`
	Currency       string              `json:"currency" validate:"required,len=3"`
	Date           string              `json:"date" validate:"required,datetime=2006-01-02"`
	BankAccountID  int64               `json:"bank_account_id" validate:"required,gt=0"`
	Method         string              `json:"method"`
	Memo           string              `json:"memo"`
	Allocations    []allocationRequest `json:"allocations" validate:"required,min=1,dive"`
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

	date, _ := time.Parse("2006-01-02", req.Date)
	id := httpx.IdentityFromContext(r.Context())

	in := CreateInput{
		Scope:          id.Scope,
		Type:           Type(req.Type),
		CounterpartyID: req.CounterpartyID,
		CompanyCode:    req.CompanyCode,
		Number:         req.Number,
		Currency:       req.Currency,
		Date:           date,
		BankAccountID:  req.BankAccountID,
		Method:         req.Method,
		Memo:           req.Memo,
		ActorID:        id.ActorID,
	}
	for _, a := range req.Allocations {
		docID, err := uuid.Parse(a.DocumentID)
		if err != nil {
			httpx.ProblemWithCode(w, http.StatusUnprocessableEntity, shared.CodeInvalidInput, "document_id must be a uuid")
			return
		}
		in.Allocations = append(in.Allocations, AllocationInput{DocumentID: docID, Amount: a.Amount})
	}

	payment, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

type postRequest struct {
	PeriodID       int64  `json:"period_id" validate:"required,gt=0"`
	CompanyCode    string `json:"company_code" validate:"required"`
	Override       bool   `json:"override"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "payment id must be a uuid")
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
	payment, result, err := h.service.Post(r.Context(), PostInput{
		Scope:          id.Scope,
		PaymentID:      paymentID,
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
		"payment": payment,
		"journal": result.Journal,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ProblemWithCode(w, http.StatusBadRequest, shared.CodeInvalidInput, "payment id must be a uuid")
		return
	}

	id := httpx.IdentityFromContext(r.Context())
	payment, err := h.service.Get(r.Context(), id.Scope, paymentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	list, err := h.service.List(r.Context(), id.Scope)
	if err != nil {
		h.logger.Error("list payments failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
