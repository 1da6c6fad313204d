package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestProductRoundTrip(t *testing.T) {
	ctx := WithProduct(context.Background(), "desktop")
	assert.Equal(t, "desktop", GetProduct(ctx))
	assert.Empty(t, GetProduct(context.Background()))
}
