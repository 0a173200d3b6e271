// Package reqctx carries request-scoped data through context.Context:
// authentication claims set by the auth middleware and request metadata set
// by the request-id middleware.
//
// Context keys are unexported; access goes through the typed getters:
//
//	ctx = reqctx.WithClaims(ctx, claims)
//	userID, ok := reqctx.UserIDFromContext(ctx)
//
// Claims are present only for authenticated requests. Trace identifiers live
// in the OpenTelemetry span carried by the same context.
package reqctx
