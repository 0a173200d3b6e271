package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	pasetotoken "github.com/Alijeyrad/carelink/pkg/paseto"
	"github.com/Alijeyrad/carelink/pkg/reqctx"
)

// SessionKeyPrefix is where the identity service records live sessions.
const SessionKeyPrefix = "session:"

// AuthRequired validates a PASETO access token from the Authorization header
// or the access_token query parameter. Tokens bound to a session are checked
// against Redis when a client is configured. On success the claims are in
// c.Locals(pasetotoken.CtxKeyClaims) and in the request context.
func AuthRequired(mgr *pasetotoken.Manager, rdb redis.UniversalClient) fiber.Handler {
	return func(c fiber.Ctx) error {
		tok := pasetotoken.BearerToken(c)
		if tok == "" {
			return fiber.ErrUnauthorized
		}

		claims, err := mgr.Verify(tok)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		if claims.SessionID != nil && rdb != nil {
			key := SessionKeyPrefix + claims.SessionID.String()
			if err := rdb.Get(c.Context(), key).Err(); err != nil {
				return fiber.ErrUnauthorized
			}
		}

		c.Locals(pasetotoken.CtxKeyClaims, claims)
		c.SetContext(reqctx.WithClaims(c.Context(), claims))
		return c.Next()
	}
}
