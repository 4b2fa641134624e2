// Package ownercontext carries the invoice-owner scope of the current request.
// An owner is exactly one of an individual user or a business.
package ownercontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Owner identifies the party that owns invoices in the current scope.
// Exactly one of UserID or BusinessID is set.
type Owner struct {
	UserID     *snowflake.ID
	BusinessID *snowflake.ID
}

// Valid reports whether exactly one owner side is set.
func (o Owner) Valid() bool {
	return (o.UserID != nil && *o.UserID != 0) != (o.BusinessID != nil && *o.BusinessID != 0)
}

type ownerContextKey struct{}

// WithOwner stores the owner scope in the context.
func WithOwner(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext returns the owner scope from context, if set.
func OwnerFromContext(ctx context.Context) (Owner, bool) {
	if ctx == nil {
		return Owner{}, false
	}
	owner, ok := ctx.Value(ownerContextKey{}).(Owner)
	if !ok || !owner.Valid() {
		return Owner{}, false
	}
	return owner, true
}

// UserOwner builds a user-owned scope.
func UserOwner(id snowflake.ID) Owner {
	return Owner{UserID: &id}
}

// BusinessOwner builds a business-owned scope.
func BusinessOwner(id snowflake.ID) Owner {
	return Owner{BusinessID: &id}
}
