// Package auth carries the caller identity through request contexts and
// performs the capability check required by every registry and ledger
// operation. The identity is always injected per request; there is no
// module-level session state.
package auth

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleRetailer     Role = "retailer"
	RoleNGO          Role = "ngo"
	RoleAdmin        Role = "admin"
)

var ErrForbidden = errors.New("forbidden")

func ValidRole(r Role) bool {
	switch r {
	case RoleManufacturer, RoleRetailer, RoleNGO, RoleAdmin:
		return true
	}
	return false
}

// Identity is the trusted caller identity supplied by the session layer.
type Identity struct {
	UserID int64
	Role   Role
}

// Require rejects the operation unless the identity holds one of the
// listed roles.
func (i Identity) Require(roles ...Role) error {
	for _, r := range roles {
		if i.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this operation", ErrForbidden, i.Role)
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
