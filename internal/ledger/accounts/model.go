package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeEquity    AccountType = "EQUITY"
	TypeRevenue   AccountType = "REVENUE"
	TypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side an account type ordinarily carries its balance.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// NormalBalance derives the normal side from the account type.
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case TypeAsset, TypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Category splits balance-sheet accounts for report grouping.
type Category string

const (
	CategoryCurrent    Category = "CURRENT"
	CategoryNonCurrent Category = "NON_CURRENT"
)

// Account models a chart of accounts node. Level 0 nodes and nodes with
// children are control accounts and never take a direct posting.
type Account struct {
	ID        int64
	TenantID  int64
	CompanyID int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	Level     int
	IsActive  bool
	// IsCash marks bank/cash accounts feeding the cash-flow statement.
	IsCash    bool
	Currency  string
	Category  Category
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Map indexes accounts by id for validator lookups.
type Map map[int64]Account

// ChildIndex returns parent id -> child ids over the full scope.
func (m Map) ChildIndex() map[int64][]int64 {
	idx := make(map[int64][]int64)
	for _, acc := range m {
		if acc.ParentID != nil {
			idx[*acc.ParentID] = append(idx[*acc.ParentID], acc.ID)
		}
	}
	return idx
}
