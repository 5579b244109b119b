package commands

import (
	"time"

	"github.com/go-xlan/ordlock/internal/config"
	"github.com/go-xlan/ordlock/ordlockclient"
)

// dialClient builds a short-lived client for one CLI invocation. The session
// retries with the configured backoff; if no connection is established
// within 5 seconds, the client is closed and an error is returned.
func dialClient() (*ordlockclient.Client, error) {
	cfg := config.LoadClientConfig(cfgFile)
	if addr != "" {
		cfg.Addr = addr
	}

	client := ordlockclient.Dial(cfg.Addr, ordlockclient.ReconnectConfig{
		InitialInterval:    cfg.ReconnectInitialInterval,
		MaxInterval:        cfg.ReconnectMaxInterval,
		IntervalMultiplier: cfg.ReconnectIntervalMultiplier,
	}, nil)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-client.Events():
			if ev.Kind == ordlockclient.EventConnect {
				return client, nil
			}
		case <-deadline:
			client.Close()
			return nil, errConnectTimeout
		}
	}
}

var errConnectTimeout = &cliError{"timed out connecting to lock server"}

type cliError struct{ msg string }

func (e *cliError) Error() string { return e.msg }

func lockOptionsFromFlags() ordlockclient.LockOptions {
	return ordlockclient.LockOptions{
		TTL:            lockTTL,
		LockingTimeout: lockLockingTimeout,
	}
}
