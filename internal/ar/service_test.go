package ar

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/journals"
	"github.com/meridian-books/meridian/internal/shared"
)

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

const (
	accBank    int64 = 1
	accAR      int64 = 2
	accSales   int64 = 3
	accTax     int64 = 4
	accExpense int64 = 5
)

func testChart() accounts.Map {
	return accounts.Map{
		accBank:    {ID: accBank, Code: "1000", Type: accounts.TypeAsset, Level: 1, IsActive: true, IsCash: true},
		accAR:      {ID: accAR, Code: "1100", Type: accounts.TypeAsset, Level: 1, IsActive: true},
		accSales:   {ID: accSales, Code: "4000", Type: accounts.TypeRevenue, Level: 1, IsActive: true},
		accTax:     {ID: accTax, Code: "2150", Type: accounts.TypeLiability, Level: 1, IsActive: true},
		accExpense: {ID: accExpense, Code: "6000", Type: accounts.TypeExpense, Level: 1, IsActive: true},
	}
}

type chartSource struct{ m accounts.Map }

func (c chartSource) MapByScope(ctx context.Context, scope shared.Scope) (accounts.Map, error) {
	return c.m, nil
}

type memoryRepo struct {
	invoices map[uuid.UUID]*Invoice
	seq      int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[uuid.UUID]*Invoice)}
}

func (r *memoryRepo) Create(ctx context.Context, inv Invoice, companyCode string) (Invoice, error) {
	if inv.Number == "" {
		if companyCode == "" {
			return Invoice{}, shared.NewError(shared.CodeInvalidInput, "company code required for numbering")
		}
		r.seq++
		inv.Number = fmt.Sprintf("%s-INV-%06d", companyCode, r.seq)
	}
	stored := inv
	r.invoices[inv.ID] = &stored
	return inv, nil
}

func (r *memoryRepo) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.Errorf(shared.CodeNotFound, "invoice %s not found", id)
	}
	return *inv, nil
}

func (r *memoryRepo) List(ctx context.Context, scope shared.Scope) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		out = append(out, *inv)
	}
	return out, nil
}

func (r *memoryRepo) ListOutstanding(ctx context.Context, scope shared.Scope) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if (inv.Status == StatusPosted || inv.Status == StatusPartiallyPaid) && inv.Outstanding().IsPositive() {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64, reviewRequired bool) error {
	inv := r.invoices[id]
	inv.Status = StatusPosted
	inv.JournalID = &journalID
	inv.ReviewRequired = reviewRequired
	return nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status Status) error {
	r.invoices[id].Status = status
	return nil
}

func (r *memoryRepo) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal, status Status) error {
	inv := r.invoices[id]
	inv.Allocated = inv.Allocated.Add(amount)
	inv.Status = status
	return nil
}

type capturingPoster struct {
	last journals.PostingInput
	err  error
}

func (p *capturingPoster) Post(ctx context.Context, input journals.PostingInput) (journals.PostingResult, error) {
	if p.err != nil {
		return journals.PostingResult{}, p.err
	}
	p.last = input
	return journals.PostingResult{Journal: journals.Journal{
		ID:     42,
		Number: "ACME-JE-000042",
		Status: journals.StatusPosted,
	}}, nil
}

type staleFx struct{ review bool }

func (f staleFx) ReviewRequired(ctx context.Context, scope shared.Scope, currency string, date time.Time) (bool, error) {
	return f.review, nil
}

func newTestService(repo Repository, poster JournalPoster) *Service {
	return NewService(repo, poster, chartSource{m: testChart()}, nil,
		ControlAccounts{Receivable: accAR, TaxPayable: accTax}, "MYR", slog.Default())
}

func invoiceInput() CreateInput {
	return CreateInput{
		Scope:       testScope,
		CustomerID:  9,
		CompanyCode: "ACME",
		Currency:    "MYR",
		IssueDate:   time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC),
		ActorID:     7,
		Lines: []LineInput{
			{
				AccountID:   accSales,
				Description: "consulting",
				Quantity:    decimal.NewFromInt(10),
				UnitPrice:   decimal.NewFromInt(100),
				TaxCode:     "SST10",
				TaxRate:     decimal.NewFromFloat(0.10),
			},
		},
	}
}

func TestCreateDerivesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, "ACME-INV-000001", inv.Number)
	require.True(t, inv.Subtotal.Equal(decimal.NewFromInt(1000)))
	require.True(t, inv.TaxTotal.Equal(decimal.NewFromInt(100)))
	require.True(t, inv.Total.Equal(decimal.NewFromInt(1100)))
	require.True(t, inv.Outstanding().Equal(decimal.NewFromInt(1100)))
}

func TestCreateRequiresCompanyCodeForNumbering(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &capturingPoster{})

	in := invoiceInput()
	in.CompanyCode = ""
	_, err := svc.Create(context.Background(), in)
	require.Equal(t, shared.CodeInvalidInput, shared.CodeOf(err))

	// A caller-supplied number needs no company code.
	in.Number = "ACME-INV-000099"
	inv, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "ACME-INV-000099", inv.Number)
}

func TestCreateRejectsDeclaredTotalMismatch(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &capturingPoster{})

	in := invoiceInput()
	declared := decimal.NewFromInt(1200)
	in.DeclaredTotal = &declared
	_, err := svc.Create(context.Background(), in)
	require.True(t, shared.IsCode(err, shared.CodeLineTotalMismatch))

	// within one minor unit passes
	declared = decimal.NewFromFloat(1100.01)
	in.DeclaredTotal = &declared
	_, err = svc.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestPostBuildsBalancedJournal(t *testing.T) {
	repo := newMemoryRepo()
	poster := &capturingPoster{}
	svc := newTestService(repo, poster)

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	posted, result, err := svc.Post(context.Background(), PostInput{
		Scope:       testScope,
		InvoiceID:   inv.ID,
		PeriodID:    1,
		CompanyCode: "ACME",
		PostedBy:    7,
		UserRole:    shared.RoleAccountant,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.JournalID)
	require.Equal(t, int64(42), *posted.JournalID)
	require.Equal(t, "ACME-JE-000042", result.Journal.Number)

	require.Equal(t, "ar", poster.last.SourceModule)
	require.Equal(t, inv.ID, poster.last.SourceID)
	require.Len(t, poster.last.Lines, 3)
	require.Equal(t, accAR, poster.last.Lines[0].AccountID)
	require.True(t, poster.last.Lines[0].Debit.Equal(decimal.NewFromInt(1100)))
	require.True(t, poster.last.Lines[1].Credit.Equal(decimal.NewFromInt(1000)))
	require.True(t, poster.last.Lines[2].Credit.Equal(decimal.NewFromInt(100)))
	require.NotEmpty(t, poster.last.IdempotencyKey)
}

func TestPostRejectsWrongAccountTypes(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	in := invoiceInput()
	in.Lines[0].AccountID = accExpense
	inv, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, _, err = svc.Post(context.Background(), PostInput{
		Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.Error(t, err)
	require.Equal(t, StatusDraft, mustGet(t, repo, inv.ID).Status)
}

func TestPostTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	_, _, err = svc.Post(context.Background(), PostInput{
		Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.NoError(t, err)

	_, _, err = svc.Post(context.Background(), PostInput{
		Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.True(t, shared.IsCode(err, shared.CodeInvalidStateTransition))
}

func TestPostForeignCurrencyTaggedForReview(t *testing.T) {
	repo := newMemoryRepo()
	poster := &capturingPoster{}
	svc := newTestService(repo, poster).WithFxAdvisor(staleFx{review: true})

	in := invoiceInput()
	in.Currency = "USD"
	in.ExchangeRate = decimal.NewFromFloat(4.2)
	inv, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	posted, _, err := svc.Post(context.Background(), PostInput{
		Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.NoError(t, err)
	require.True(t, posted.ReviewRequired)
	require.True(t, poster.last.ReviewRequired)
}

func TestBaseCurrencySkipsFxCheck(t *testing.T) {
	repo := newMemoryRepo()
	poster := &capturingPoster{}
	svc := newTestService(repo, poster).WithFxAdvisor(staleFx{review: true})

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	posted, _, err := svc.Post(context.Background(), PostInput{
		Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.NoError(t, err)
	require.False(t, posted.ReviewRequired)
}

func TestAllocationLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	_, _, err = svc.Post(context.Background(), PostInput{
		Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.NoError(t, err)

	// partial payment of 500 leaves 600 outstanding
	after, err := svc.ApplyAllocation(context.Background(), testScope, inv.ID, decimal.NewFromInt(500))
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, after.Status)
	require.True(t, after.Outstanding().Equal(decimal.NewFromInt(600)))

	// over-allocation rejected
	_, err = svc.ApplyAllocation(context.Background(), testScope, inv.ID, decimal.NewFromInt(700))
	require.True(t, shared.IsCode(err, shared.CodeAllocationExceeds))

	// settling the remainder pays the invoice
	after, err = svc.ApplyAllocation(context.Background(), testScope, inv.ID, decimal.NewFromInt(600))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, after.Status)
	require.True(t, after.Outstanding().IsZero())

	closed, err := svc.Close(context.Background(), testScope, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
}

func TestAllocationRequiresPostedInvoice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)
	_, err = svc.ApplyAllocation(context.Background(), testScope, inv.ID, decimal.NewFromInt(100))
	require.True(t, shared.IsCode(err, shared.CodeInvalidStateTransition))
}

func TestAgingBuckets(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})
	asOf := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)

	mk := func(due time.Time, amount int64) {
		in := invoiceInput()
		in.DueDate = due
		in.Lines[0].Quantity = decimal.NewFromInt(1)
		in.Lines[0].UnitPrice = decimal.NewFromInt(amount)
		in.Lines[0].TaxRate = decimal.Zero
		inv, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		_, _, err = svc.Post(context.Background(), PostInput{
			Scope: testScope, InvoiceID: inv.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
		})
		require.NoError(t, err)
	}

	mk(asOf.AddDate(0, 0, 10), 100)  // not yet due
	mk(asOf.AddDate(0, 0, -10), 200) // 10 days overdue
	mk(asOf.AddDate(0, 0, -45), 300) // 45 days overdue
	mk(asOf.AddDate(0, 0, -200), 50) // long overdue

	buckets, err := svc.Aging(context.Background(), testScope, asOf)
	require.NoError(t, err)
	require.Equal(t, 4, buckets.InvoiceCt)
	require.True(t, buckets.Current.Equal(decimal.NewFromInt(100)))
	require.True(t, buckets.Days30.Equal(decimal.NewFromInt(200)))
	require.True(t, buckets.Days60.Equal(decimal.NewFromInt(300)))
	require.True(t, buckets.Days120.Equal(decimal.NewFromInt(50)))
	require.True(t, buckets.Total.Equal(decimal.NewFromInt(650)))
}

func TestValidateTransition(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	inv, err := svc.Create(context.Background(), invoiceInput())
	require.NoError(t, err)

	validated, err := svc.Validate(context.Background(), testScope, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, validated.Status)

	_, err = svc.Validate(context.Background(), testScope, inv.ID, 7)
	require.True(t, shared.IsCode(err, shared.CodeInvalidStateTransition))
}

func mustGet(t *testing.T, repo Repository, id uuid.UUID) Invoice {
	t.Helper()
	inv, err := repo.Get(context.Background(), testScope, id)
	require.NoError(t, err)
	return inv
}
