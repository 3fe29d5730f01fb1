package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("collector:4317"), 2)
	assert.Len(t, exporterOptions("https://collector.example.com:4317"), 1)
}
