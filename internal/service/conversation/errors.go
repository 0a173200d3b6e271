package conversation

import (
	"errors"
	"fmt"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

// denied turns a policy failure into the messaging taxonomy. Anything that
// is not a plain deny is an internal failure of the policy engine.
func denied(err error, action authorize.Action, resource authorize.Resource) error {
	if errors.Is(err, authorize.ErrForbidden) {
		return fmt.Errorf("%w: may not %s %s", model.ErrUnauthorized, action, resource)
	}
	return fmt.Errorf("authorize %s %s: %w", action, resource, err)
}

func resolverUnavailable(err error) error {
	return fmt.Errorf("%w: %v", model.ErrResolverUnavailable, err)
}
