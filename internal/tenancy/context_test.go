package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeRoundTrip(t *testing.T) {
	ctx := WithScope(context.Background(), Scope{BusinessID: "biz", ClientID: "cli"})

	scope, ok := ScopeFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, Scope{BusinessID: "biz", ClientID: "cli"}, scope)

	biz, ok := BusinessIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "biz", biz)
}

func TestScopeMissing(t *testing.T) {
	_, ok := ScopeFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithBusinessID(context.Background(), "biz")
	_, ok = ScopeFromContext(ctx)
	assert.False(t, ok, "client id required")

	_, ok = BusinessIDFromContext(WithBusinessID(context.Background(), ""))
	assert.False(t, ok)
}
