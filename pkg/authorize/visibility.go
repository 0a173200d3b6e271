package authorize

import (
	"context"
	"slices"
)

// ContactableRoles returns the bare platform tags that a caller holding
// callerRoles may start conversations with. Admins reach everyone.
func ContactableRoles(ctx context.Context, auth IAuthorization, callerRoles []string) ([]string, error) {
	subjects := RolesFor(callerRoles)

	out := make([]string, 0, len(PlatformRoles))
	for target := range PlatformRoles {
		ok, err := auth.Enforce(ctx, subjects, DomainMessaging, ContactResource(target), ActionContact)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, target)
		}
	}
	slices.Sort(out)
	return out, nil
}

// CanContact reports whether a caller holding callerRoles may contact a user
// holding targetRoles. Holding any reachable role suffices.
func CanContact(ctx context.Context, auth IAuthorization, callerRoles, targetRoles []string) (bool, error) {
	subjects := RolesFor(callerRoles)
	for _, target := range targetRoles {
		if _, ok := PlatformRoles[target]; !ok {
			continue
		}
		ok, err := auth.Enforce(ctx, subjects, DomainMessaging, ContactResource(target), ActionContact)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
