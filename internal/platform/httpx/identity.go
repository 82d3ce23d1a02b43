package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/meridian-books/meridian/internal/shared"
)

// Identity is the caller identity forwarded by the API gateway. The ledger
// trusts these headers; authentication happens upstream.
type Identity struct {
	Scope   shared.Scope
	ActorID int64
	Role    shared.Role
}

type identityKey struct{}

// RequireIdentity parses the forwarded identity headers and rejects requests
// missing a tenant or company scope.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identityFromHeaders(r)
		if err != nil {
			ProblemWithCode(w, http.StatusUnauthorized, shared.CodeInvalidInput, err.Error())
			return
		}
		ctx := shared.ContextWithScope(r.Context(), id.Scope)
		ctx = context.WithValue(ctx, identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the caller identity, zero value when the
// identity middleware did not run.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}

func identityFromHeaders(r *http.Request) (Identity, error) {
	tenantID, err := strconv.ParseInt(r.Header.Get("X-Tenant-ID"), 10, 64)
	if err != nil {
		return Identity{}, shared.Errorf(shared.CodeInvalidInput, "X-Tenant-ID header required")
	}
	companyID, err := strconv.ParseInt(r.Header.Get("X-Company-ID"), 10, 64)
	if err != nil {
		return Identity{}, shared.Errorf(shared.CodeInvalidInput, "X-Company-ID header required")
	}
	actorID, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)

	id := Identity{
		Scope:   shared.Scope{TenantID: tenantID, CompanyID: companyID},
		ActorID: actorID,
		Role:    shared.Role(r.Header.Get("X-Actor-Role")),
	}
	if !id.Scope.Valid() {
		return Identity{}, shared.Errorf(shared.CodeInvalidInput, "tenant and company scope required")
	}
	return id, nil
}
