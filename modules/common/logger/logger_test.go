package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"static-ad-server/modules/common/config"
)

func TestNewDevelopmentLogger(t *testing.T) {
	log, err := New(&config.Config{AppEnv: "development", AppName: "static-ad-server"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewProductionLogger(t *testing.T) {
	log, err := New(&config.Config{AppEnv: "production", AppName: "static-ad-server"})
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewWithoutConfig(t *testing.T) {
	log, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, log)
}
