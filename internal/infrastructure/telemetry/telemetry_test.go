package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/expensly/authclient/internal/pkg/config"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), config.TelemetryConfig{ServiceName: "test"}, zerolog.Nop())
	require.NoError(t, shutdown(context.Background()))
}
