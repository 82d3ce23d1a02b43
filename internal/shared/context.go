package shared

import "context"

// Scope identifies the tenant and company every ledger row belongs to.
// All repositories filter by scope; nothing crosses tenants.
type Scope struct {
	TenantID  int64
	CompanyID int64
}

// Valid reports whether both identifiers are present.
func (s Scope) Valid() bool {
	return s.TenantID > 0 && s.CompanyID > 0
}

type scopeKey struct{}

// ContextWithScope stores the posting scope in the context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext retrieves the posting scope, zero value when absent.
func ScopeFromContext(ctx context.Context) Scope {
	if s, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return s
	}
	return Scope{}
}
