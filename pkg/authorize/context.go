package authorize

import (
	"context"
	"errors"

	"github.com/Alijeyrad/carelink/pkg/reqctx"
)

var (
	ErrNoSubjectInContext = errors.New("no subject found in context")
)

// RolesFromContext returns the policy subjects for the authenticated caller.
func RolesFromContext(ctx context.Context) ([]Role, error) {
	if _, ok := reqctx.UserIDFromContext(ctx); !ok {
		return nil, ErrNoSubjectInContext
	}
	return RolesFor(reqctx.RolesFromContext(ctx)), nil
}
