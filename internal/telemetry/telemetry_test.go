package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/sakif/bookdigest/internal/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Telemetry{ServiceName: "bookdigest"}, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// The global provider is still the no-op one: spans are not recorded.
	_, span := Tracer().Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestSetup_WithEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// The exporter connects lazily, so an unreachable endpoint is fine here.
	shutdown, err := Setup(context.Background(), config.Telemetry{
		OTLPEndpoint: "http://127.0.0.1:1",
		ServiceName:  "bookdigest-test",
		Insecure:     true,
	}, "test")
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "recorded")
	assert.True(t, span.IsRecording())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Flushing to a dead endpoint with a cancelled context returns quickly.
	_ = shutdown(ctx)
}
