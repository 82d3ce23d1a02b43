package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/shared"
)

// AccountSource supplies the chart of accounts tree.
type AccountSource interface {
	MapByScope(ctx context.Context, scope shared.Scope) (accounts.Map, error)
}

// Cache stores rendered reports. It is strictly a render cache: balances are
// always recomputed from journal lines on a miss, never read back as truth.
type Cache interface {
	GetTrialBalance(ctx context.Context, key string) (TrialBalance, bool)
	SetTrialBalance(ctx context.Context, key string, tb TrialBalance)
}

// Input selects the scope and window for a report. Dates are explicit; the
// only implicit timestamp is GeneratedAt recorded at computation time.
type Input struct {
	Scope    shared.Scope
	Currency string
	FromDate time.Time
	AsOfDate time.Time
	// SkipCache forces a fresh computation. Close checks consume the trial
	// balance as a decision input and must not read a stale render.
	SkipCache bool
}

// Validate rejects incoherent windows.
func (in Input) Validate() error {
	if !in.Scope.Valid() {
		return shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.Currency == "" {
		return shared.NewError(shared.CodeInvalidInput, "report currency required")
	}
	if in.AsOfDate.IsZero() {
		return shared.NewError(shared.CodeInvalidInput, "asOfDate required")
	}
	if !in.FromDate.IsZero() && in.FromDate.After(in.AsOfDate) {
		return shared.NewError(shared.CodeInvalidInput, "fromDate after asOfDate")
	}
	return nil
}

// Service builds financial reports. All methods are pure reads and safe to
// run with arbitrary parallelism over the posted-journal set.
type Service struct {
	repo     Repository
	accounts AccountSource
	cache    Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, accountSrc AccountSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, accounts: accountSrc, logger: logger, now: time.Now}
}

// WithCache attaches a render cache.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TrialBalance computes the trial balance for the window. An out-of-balance
// ledger is returned with IsBalanced=false and the difference intact; it is
// never auto-corrected.
func (s *Service) TrialBalance(ctx context.Context, in Input) (TrialBalance, error) {
	if err := in.Validate(); err != nil {
		return TrialBalance{}, err
	}
	key := cacheKey(in)
	if s.cache != nil && !in.SkipCache {
		if tb, ok := s.cache.GetTrialBalance(ctx, key); ok {
			return tb, nil
		}
	}

	var coa accounts.Map
	var balances []AccountBalance
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		coa, err = s.accounts.MapByScope(gctx, in.Scope)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = s.repo.AccountBalances(gctx, in.Scope, in.FromDate, in.AsOfDate)
		return err
	})
	if err := g.Wait(); err != nil {
		return TrialBalance{}, err
	}

	leaf := leafBalances(balances, coa)
	tb := BuildTrialBalance(leaf, coa, in.Currency, in.FromDate, in.AsOfDate, s.now())
	if !tb.IsBalanced && s.logger != nil {
		s.logger.Error("trial balance out of balance",
			slog.Int64("tenant", in.Scope.TenantID),
			slog.Int64("company", in.Scope.CompanyID),
			slog.String("difference", tb.Difference.String()))
	}
	if s.cache != nil {
		s.cache.SetTrialBalance(ctx, key, tb)
	}
	return tb, nil
}

// IncomeStatement derives the P&L from the trial balance.
func (s *Service) IncomeStatement(ctx context.Context, in Input) (IncomeStatement, error) {
	tb, err := s.TrialBalance(ctx, in)
	if err != nil {
		return IncomeStatement{}, err
	}
	return BuildIncomeStatement(tb), nil
}

// BalanceSheet derives the statement of financial position. The net income
// folded into equity is exactly the income statement's figure for the same
// trial balance; a divergence would be a reporting bug, not a rounding
// artifact.
func (s *Service) BalanceSheet(ctx context.Context, in Input) (BalanceSheet, error) {
	tb, err := s.TrialBalance(ctx, in)
	if err != nil {
		return BalanceSheet{}, err
	}
	pl := BuildIncomeStatement(tb)
	return BuildBalanceSheet(tb, pl.NetIncome), nil
}

// CashFlow builds the statement of cash flows with the requested method.
func (s *Service) CashFlow(ctx context.Context, in Input, method CashFlowMethod) (CashFlow, error) {
	tb, err := s.TrialBalance(ctx, in)
	if err != nil {
		return CashFlow{}, err
	}
	coa, err := s.accounts.MapByScope(ctx, in.Scope)
	if err != nil {
		return CashFlow{}, err
	}
	cashIDs := cashAccountIDs(coa)

	if method == MethodDirect {
		movements, err := s.repo.CashMovements(ctx, in.Scope, in.FromDate, in.AsOfDate)
		if err != nil {
			return CashFlow{}, err
		}
		return BuildCashFlowDirect(tb, cashIDs, movements), nil
	}
	pl := BuildIncomeStatement(tb)
	return BuildCashFlowIndirect(tb, pl.NetIncome, cashIDs), nil
}

func cacheKey(in Input) string {
	return fmt.Sprintf("tb:%d:%d:%s:%s:%s",
		in.Scope.TenantID, in.Scope.CompanyID, in.Currency,
		in.FromDate.Format("2006-01-02"), in.AsOfDate.Format("2006-01-02"))
}

// leafBalances filters aggregate rows down to postable leaf accounts;
// header rollups are recomputed from the tree, never trusted from storage.
func leafBalances(balances []AccountBalance, coa accounts.Map) []AccountBalance {
	children := coa.ChildIndex()
	out := make([]AccountBalance, 0, len(balances))
	for _, b := range balances {
		acc, ok := coa[b.AccountID]
		if !ok {
			continue
		}
		if acc.Level == 0 || len(children[acc.ID]) > 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

func cashAccountIDs(coa accounts.Map) []int64 {
	var ids []int64
	for id, acc := range coa {
		if acc.IsCash {
			ids = append(ids, id)
		}
	}
	return ids
}
