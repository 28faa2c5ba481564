package authn

import (
	"context"

	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// Authorize decides whether user (nil if authentication failed) may proceed
// with req.
type Authorize func(ctx context.Context, user *User, req schema.FilterRequest) error

// FilterHook builds a schema.FilterHook that authenticates req.AuthToken via
// a, then delegates the admission decision to authorize with the resolved
// User in hand. A token verification failure is passed through to authorize
// as a nil user rather than short-circuiting, so a model can still admit
// anonymous requests if its policy allows it.
func (a *Authenticator) FilterHook(authorize Authorize) schema.FilterHook {
	return func(ctx context.Context, req schema.FilterRequest) error {
		user, err := a.Authenticate(ctx, req.AuthToken)
		if err != nil {
			user = nil
		}

		return authorize(ctx, user, req)
	}
}
