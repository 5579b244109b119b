// Package config loads server and client configuration with viper: an
// ENV-prefixed environment overlay (dots become underscores), an optional
// config file looked up in "." and "data/config", and viper.IsSet/GetXxx
// reads against coded-in defaults rather than viper's own SetDefault, so a
// config struct built without any file or env present still matches the
// documented defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the configuration surface of cmd/ordlockd.
type ServerConfig struct {
	ListenAddr  string
	MaxInflight int
}

// DefaultPort is the lock server's default TCP port.
const DefaultPort = 3292

// LoadServerConfig reads ServerConfig from environment variables (prefixed
// ORDLOCK_) and, if configFile is non-empty, from a config file of that name
// looked up in "." and "data/config". A missing config file is not an
// error; only environment variables and defaults are required.
func LoadServerConfig(configFile string) ServerConfig {
	v := newViper(configFile)

	cfg := ServerConfig{
		ListenAddr:  "0.0.0.0:3292",
		MaxInflight: 64,
	}
	if v.IsSet("LISTEN_ADDR") {
		cfg.ListenAddr = v.GetString("LISTEN_ADDR")
	}
	if v.IsSet("MAX_INFLIGHT") {
		cfg.MaxInflight = v.GetInt("MAX_INFLIGHT")
	}
	return cfg
}

// ClientConfig is the configuration surface shared by ordlockclient
// embedders and cmd/ordlockctl.
type ClientConfig struct {
	Addr string

	ReconnectInitialInterval    time.Duration
	ReconnectMaxInterval        time.Duration
	ReconnectIntervalMultiplier float64

	LockTTL            time.Duration
	LockLockingTimeout time.Duration
	LockExtendSchedule float64
}

// LoadClientConfig reads ClientConfig with these defaults:
// reconnect.initialInterval=1s, reconnect.maxInterval=5s,
// reconnect.intervalMultiplier=1.5, lock.extendSchedule=0.5.
func LoadClientConfig(configFile string) ClientConfig {
	v := newViper(configFile)

	cfg := ClientConfig{
		Addr:                        "127.0.0.1:3292",
		ReconnectInitialInterval:    time.Second,
		ReconnectMaxInterval:        5 * time.Second,
		ReconnectIntervalMultiplier: 1.5,
		LockExtendSchedule:          0.5,
	}

	if v.IsSet("CONNECT_ADDR") {
		cfg.Addr = v.GetString("CONNECT_ADDR")
	}
	if v.IsSet("RECONNECT_INITIAL_INTERVAL") {
		cfg.ReconnectInitialInterval = v.GetDuration("RECONNECT_INITIAL_INTERVAL")
	}
	if v.IsSet("RECONNECT_MAX_INTERVAL") {
		cfg.ReconnectMaxInterval = v.GetDuration("RECONNECT_MAX_INTERVAL")
	}
	if v.IsSet("RECONNECT_INTERVAL_MULTIPLIER") {
		cfg.ReconnectIntervalMultiplier = v.GetFloat64("RECONNECT_INTERVAL_MULTIPLIER")
	}
	if v.IsSet("LOCK_TTL") {
		cfg.LockTTL = v.GetDuration("LOCK_TTL")
	}
	if v.IsSet("LOCK_LOCKING_TIMEOUT") {
		cfg.LockLockingTimeout = v.GetDuration("LOCK_LOCKING_TIMEOUT")
	}
	if v.IsSet("LOCK_EXTEND_SCHEDULE") {
		cfg.LockExtendSchedule = v.GetFloat64("LOCK_EXTEND_SCHEDULE")
	}
	return cfg
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ORDLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigName(configFile)
		v.AddConfigPath(".")
		v.AddConfigPath("data/config")
		_ = v.ReadInConfig() // a missing config file is fine; env + defaults suffice
	}
	return v
}
