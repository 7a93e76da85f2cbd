package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInitMeterProvider_BuildsWithoutDialing confirms the exporter/provider
// wiring succeeds without blocking on a live OTLP collector (grpc.Dial is
// non-blocking by default).
func TestInitMeterProvider_BuildsWithoutDialing(t *testing.T) {
	mp, err := InitMeterProvider(context.Background(), "amy-core-test", "localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, mp)
	defer mp.Shutdown(context.Background())
}

func TestInitTracer_BuildsWithoutDialing(t *testing.T) {
	tp, err := InitTracer(context.Background(), "amy-core-test", "localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())
}
