package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/tindecisos/internal/logger"
	"github.com/oggyb/tindecisos/internal/telemetry"
)

func TestInitJaegerDisabled(t *testing.T) {
	shutdown, err := telemetry.InitJaeger("tindecisos", "test", "", logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitJaegerEnabled(t *testing.T) {
	// the exporter connects lazily, so an unreachable collector is fine here
	shutdown, err := telemetry.InitJaeger("tindecisos", "test", "http://127.0.0.1:1/api/traces", logger.Discard())
	require.NoError(t, err)
	_ = shutdown(context.Background())
}
