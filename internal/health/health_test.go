package health

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChecker_RunAll(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("credentials", func(ctx context.Context) Status { return StatusOK })
	c.Register("token_store", func(ctx context.Context) Status { return StatusDegraded })

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusOK, results["credentials"])
	assert.Equal(t, StatusDegraded, results["token_store"])
}

func TestChecker_IsReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("ok", func(ctx context.Context) Status { return StatusOK })
	c.Register("degraded", func(ctx context.Context) Status { return StatusDegraded })
	assert.True(t, c.IsReady(context.Background()), "degraded must not fail readiness")

	c.Register("down", func(ctx context.Context) Status { return StatusDown })
	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_EmptyIsReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}
