package opentls

import (
	"context"
	"testing"

	"github.com/brickingsoft/rxp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExecutors(t *testing.T) {
	ctx := withExecutors(context.Background())
	exec, ok := rxp.TryFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, Executors(), exec)

	own := rxp.New()
	defer own.Close()
	ctx = withExecutors(rxp.With(context.Background(), own))
	exec, ok = rxp.TryFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, own, exec)

	assert.Error(t, Startup())
}
