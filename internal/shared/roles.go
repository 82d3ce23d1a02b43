package shared

// Role enumerates the caller roles the ledger core distinguishes.
type Role string

const (
	RoleAccountant Role = "accountant"
	RoleController Role = "controller"
	RoleAdmin      Role = "admin"
)

// CanOverridePeriod reports whether the role may post into a closed period
// or force a close past blocking checks.
func (r Role) CanOverridePeriod() bool {
	return r == RoleController || r == RoleAdmin
}

// CanReopenPeriod reports whether the role may reopen a closed period.
func (r Role) CanReopenPeriod() bool {
	return r == RoleController || r == RoleAdmin
}

// CanApproveClose reports whether the role satisfies the approval policy
// for a period close above the approval threshold.
func (r Role) CanApproveClose() bool {
	return r == RoleController || r == RoleAdmin
}
