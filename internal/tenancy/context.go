package tenancy

import "context"

type ctxKey string

const (
	businessKey ctxKey = "staffix.business_id"
	clientKey   ctxKey = "staffix.client_id"
)

// Scope identifies the tenant and client a request acts for. Handlers set it
// from trusted routing data, never from model or user supplied arguments.
type Scope struct {
	BusinessID string
	ClientID   string
}

// WithScope stores the business and client ids in context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	ctx = context.WithValue(ctx, businessKey, scope.BusinessID)
	return context.WithValue(ctx, clientKey, scope.ClientID)
}

// WithBusinessID stores only the business id in context.
func WithBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, businessKey, businessID)
}

// BusinessIDFromContext extracts the business id if present.
func BusinessIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, businessKey)
}

// ScopeFromContext returns the scope; ok is false unless both ids are set.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	biz, okBiz := stringValue(ctx, businessKey)
	client, okClient := stringValue(ctx, clientKey)
	return Scope{BusinessID: biz, ClientID: client}, okBiz && okClient
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	val, ok := ctx.Value(key).(string)
	return val, ok && val != ""
}
