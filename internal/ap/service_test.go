package ap

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
	accAP       int64 = 1
	accRent     int64 = 2
	accInputTax int64 = 3
	accSales    int64 = 4
)

func testChart() accounts.Map {
	return accounts.Map{
		accAP:       {ID: accAP, Code: "2100", Type: accounts.TypeLiability, Level: 1, IsActive: true},
		accRent:     {ID: accRent, Code: "6000", Type: accounts.TypeExpense, Level: 1, IsActive: true},
		accInputTax: {ID: accInputTax, Code: "1300", Type: accounts.TypeAsset, Level: 1, IsActive: true},
		accSales:    {ID: accSales, Code: "4000", Type: accounts.TypeRevenue, Level: 1, IsActive: true},
	}
}

type chartSource struct{ m accounts.Map }

func (c chartSource) MapByScope(ctx context.Context, scope shared.Scope) (accounts.Map, error) {
	return c.m, nil
}

type memoryRepo struct {
	bills map[uuid.UUID]*Bill
	seq   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{bills: make(map[uuid.UUID]*Bill)}
}

func (r *memoryRepo) Create(ctx context.Context, bill Bill, companyCode string) (Bill, error) {
	if bill.Number == "" {
		if companyCode == "" {
			return Bill{}, shared.NewError(shared.CodeInvalidInput, "company code required for numbering")
		}
		r.seq++
		bill.Number = fmt.Sprintf("%s-BILL-%06d", companyCode, r.seq)
	}
	stored := bill
	r.bills[bill.ID] = &stored
	return bill, nil
}

func (r *memoryRepo) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Bill, error) {
	bill, ok := r.bills[id]
	if !ok {
		return Bill{}, shared.Errorf(shared.CodeNotFound, "bill %s not found", id)
	}
	return *bill, nil
}

func (r *memoryRepo) List(ctx context.Context, scope shared.Scope) ([]Bill, error) {
	var out []Bill
	for _, b := range r.bills {
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryRepo) ListOutstanding(ctx context.Context, scope shared.Scope) ([]Bill, error) {
	var out []Bill
	for _, b := range r.bills {
		if (b.Status == StatusPosted || b.Status == StatusPartiallyPaid) && b.Outstanding().IsPositive() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64, reviewRequired bool) error {
	b := r.bills[id]
	b.Status = StatusPosted
	b.JournalID = &journalID
	b.ReviewRequired = reviewRequired
	return nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status Status) error {
	r.bills[id].Status = status
	return nil
}

func (r *memoryRepo) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal, status Status) error {
	b := r.bills[id]
	b.Allocated = b.Allocated.Add(amount)
	b.Status = status
	return nil
}

type capturingPoster struct {
	last journals.PostingInput
}

func (p *capturingPoster) Post(ctx context.Context, input journals.PostingInput) (journals.PostingResult, error) {
	p.last = input
	return journals.PostingResult{Journal: journals.Journal{ID: 77, Number: "ACME-JE-000077", Status: journals.StatusPosted}}, nil
}

func newTestService(repo Repository, poster JournalPoster) *Service {
	return NewService(repo, poster, chartSource{m: testChart()}, nil,
		ControlAccounts{Payable: accAP, InputTax: accInputTax}, "MYR", slog.Default())
}

func billInput() CreateInput {
	return CreateInput{
		Scope:       testScope,
		SupplierID:  4,
		CompanyCode: "ACME",
		Currency:    "MYR",
		IssueDate:   time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC),
		ActorID:     7,
		Lines: []LineInput{
			{
				AccountID:   accRent,
				Description: "office rent",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.NewFromInt(500),
				TaxCode:     "SST10",
				TaxRate:     decimal.NewFromFloat(0.10),
			},
		},
	}
}

func TestCreateDerivesTotals(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &capturingPoster{})

	bill, err := svc.Create(context.Background(), billInput())
	require.NoError(t, err)
	require.Equal(t, StatusDraft, bill.Status)
	require.Equal(t, "ACME-BILL-000001", bill.Number)
	require.True(t, bill.Subtotal.Equal(decimal.NewFromInt(500)))
	require.True(t, bill.TaxTotal.Equal(decimal.NewFromInt(50)))
	require.True(t, bill.Total.Equal(decimal.NewFromInt(550)))
}

func TestCreateRequiresCompanyCodeForNumbering(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &capturingPoster{})

	in := billInput()
	in.CompanyCode = ""
	_, err := svc.Create(context.Background(), in)
	require.Equal(t, shared.CodeInvalidInput, shared.CodeOf(err))

	in.Number = "ACME-BILL-000099"
	bill, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "ACME-BILL-000099", bill.Number)
}

func TestCreateRejectsDeclaredTotalMismatch(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &capturingPoster{})

	in := billInput()
	declared := decimal.NewFromInt(600)
	in.DeclaredTotal = &declared
	_, err := svc.Create(context.Background(), in)
	require.True(t, shared.IsCode(err, shared.CodeLineTotalMismatch))
}

func TestPostBuildsPayableCredit(t *testing.T) {
	repo := newMemoryRepo()
	poster := &capturingPoster{}
	svc := newTestService(repo, poster)

	bill, err := svc.Create(context.Background(), billInput())
	require.NoError(t, err)

	posted, result, err := svc.Post(context.Background(), PostInput{
		Scope:       testScope,
		BillID:      bill.ID,
		PeriodID:    1,
		CompanyCode: "ACME",
		PostedBy:    7,
		UserRole:    shared.RoleAccountant,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, int64(77), *posted.JournalID)
	require.Equal(t, "ACME-JE-000077", result.Journal.Number)

	require.Equal(t, "ap", poster.last.SourceModule)
	require.Len(t, poster.last.Lines, 3)
	// expense debit, input tax debit, payable credit last
	require.True(t, poster.last.Lines[0].Debit.Equal(decimal.NewFromInt(500)))
	require.True(t, poster.last.Lines[1].Debit.Equal(decimal.NewFromInt(50)))
	last := poster.last.Lines[2]
	require.Equal(t, accAP, last.AccountID)
	require.True(t, last.Credit.Equal(decimal.NewFromInt(550)))
}

func TestPostRejectsRevenueLineAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	in := billInput()
	in.Lines[0].AccountID = accSales
	bill, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, _, err = svc.Post(context.Background(), PostInput{
		Scope: testScope, BillID: bill.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.Error(t, err)

	got, err := repo.Get(context.Background(), testScope, bill.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestAllocationLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &capturingPoster{})

	bill, err := svc.Create(context.Background(), billInput())
	require.NoError(t, err)
	_, _, err = svc.Post(context.Background(), PostInput{
		Scope: testScope, BillID: bill.ID, PeriodID: 1, CompanyCode: "ACME", PostedBy: 7,
	})
	require.NoError(t, err)

	after, err := svc.ApplyAllocation(context.Background(), testScope, bill.ID, decimal.NewFromInt(300))
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, after.Status)
	require.True(t, after.Outstanding().Equal(decimal.NewFromInt(250)))

	_, err = svc.ApplyAllocation(context.Background(), testScope, bill.ID, decimal.NewFromInt(300))
	require.True(t, shared.IsCode(err, shared.CodeAllocationExceeds))

	after, err = svc.ApplyAllocation(context.Background(), testScope, bill.ID, decimal.NewFromInt(250))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, after.Status)
}
