package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	cfg := LoadServerConfig("")
	require.Equal(t, "0.0.0.0:3292", cfg.ListenAddr)
	require.Equal(t, 64, cfg.MaxInflight)
}

func TestLoadClientConfig_Defaults(t *testing.T) {
	cfg := LoadClientConfig("")
	require.Equal(t, "127.0.0.1:3292", cfg.Addr)
	require.Equal(t, time.Second, cfg.ReconnectInitialInterval)
	require.Equal(t, 5*time.Second, cfg.ReconnectMaxInterval)
	require.Equal(t, 1.5, cfg.ReconnectIntervalMultiplier)
	require.Equal(t, 0.5, cfg.LockExtendSchedule)
}

func TestLoadClientConfig_EnvOverride(t *testing.T) {
	t.Setenv("ORDLOCK_CONNECT_ADDR", "10.0.0.1:3292")
	cfg := LoadClientConfig("")
	require.Equal(t, "10.0.0.1:3292", cfg.Addr)
}
