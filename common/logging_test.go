package common

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := SetupLogger(&LoggingOpts{Debug: true, JSON: true, Service: "test", Version: Version})
	require.NotNil(t, logger)
	require.True(t, logger.Handler().Enabled(ctx, slog.LevelDebug))

	logger = SetupLogger(&LoggingOpts{})
	require.False(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
	require.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
}
