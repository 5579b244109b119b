package ordlockclient

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/wire"
	"github.com/go-xlan/ordlock/ordlockerr"
	"github.com/yyle88/erero"
)

// LockOptions configures one acquisition and, when Extends is set, its
// auto-extend schedule. TTL and LockingTimeout are required; ExtendSchedule
// defaults to 0.5 when zero.
type LockOptions struct {
	TTL            time.Duration
	LockingTimeout time.Duration
	ExtendSchedule float64
	Extends        ExtendPolicy
}

func (o LockOptions) extendSchedule() float64 {
	if o.ExtendSchedule <= 0 {
		return 0.5
	}
	return o.ExtendSchedule
}

// ExtendDecision is the result of one auto-extend policy tick: Stop ends the
// scheduler; otherwise TTL is the duration to extend by, or zero to reuse
// the lock's original TTL. This is the closure-based mapping of the source
// spec's "stop | extend with original ttl | extend with given ttl" variant.
type ExtendDecision struct {
	Stop bool
	TTL  time.Duration
}

// ExtendPolicy decides, given the 0-based attempt counter, whether the
// auto-extender should extend the lock again and with what TTL.
type ExtendPolicy func(attempt int) ExtendDecision

// FixedExtends builds a policy that permits up to n extensions, each with
// the lock's original TTL - the common case for a long-running handler.
func FixedExtends(n int) ExtendPolicy {
	return func(attempt int) ExtendDecision {
		if attempt >= n {
			return ExtendDecision{Stop: true}
		}
		return ExtendDecision{}
	}
}

// ExtendFunc is handed to a WithLock handler so it can extend its own lock
// on demand in addition to whatever auto-extend policy is configured. A zero
// ttl reuses the lock's original TTL.
type ExtendFunc func(ttl time.Duration) error

// Client is the lock service client: one reconnecting Session plus the lock
// API built on top of it.
type Client struct {
	session *Session
}

// Dial starts a session against addr (host:port) and returns immediately;
// the underlying connection is established asynchronously by the session's
// reconnect loop.
func Dial(addr string, backoff ReconnectConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{session: newSession(addr, backoff, logger)}
}

// Events exposes the session's connect/disconnect/log stream.
func (c *Client) Events() <-chan Event {
	return c.session.Events()
}

// Close stops the reconnect loop and closes the current connection.
func (c *Client) Close() {
	c.session.Close()
}

// Acquire requests resources and blocks until granted or rejected; it
// awaits the current connection first.
func (c *Client) Acquire(resources []string, opts LockOptions) (string, error) {
	conn, ok := c.session.getConn()
	if !ok {
		return "", ordlockerr.ConnectionLost
	}

	raw, err := conn.call(wire.MethodLock, wire.LockParams{
		Resources:      resources,
		TTL:            opts.TTL.Seconds(),
		LockingTimeout: opts.LockingTimeout.Seconds(),
	})
	if err != nil {
		return "", err
	}

	var result struct {
		LockID string `json:"lockId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", erero.Wro(err)
	}
	return result.LockID, nil
}

// ExtendLock resets lockId's deadline. ttl nil reuses the original TTL used
// at acquire (per the server's Extend semantics).
func (c *Client) ExtendLock(lockID string, ttl *time.Duration) error {
	conn, ok := c.session.getConn()
	if !ok {
		return ordlockerr.ConnectionLost
	}

	params := wire.ExtendLockParams{LockID: lockID}
	if ttl != nil {
		secs := ttl.Seconds()
		params.TTL = &secs
	}
	_, err := conn.call(wire.MethodExtendLock, params)
	return err
}

// ReleaseLock releases lockId.
func (c *Client) ReleaseLock(lockID string) error {
	conn, ok := c.session.getConn()
	if !ok {
		return ordlockerr.ConnectionLost
	}
	_, err := conn.call(wire.MethodReleaseLock, wire.ReleaseLockParams{LockID: lockID})
	return err
}

// Inspect reports the current holder and queue depth of resource (servers
// that lack this method answer InvalidRequest).
func (c *Client) Inspect(resource string) (wire.InspectResult, error) {
	conn, ok := c.session.getConn()
	if !ok {
		return wire.InspectResult{}, ordlockerr.ConnectionLost
	}
	raw, err := conn.call(wire.MethodInspect, wire.InspectParams{Resource: resource})
	if err != nil {
		return wire.InspectResult{}, err
	}
	var result wire.InspectResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return wire.InspectResult{}, erero.Wro(err)
	}
	return result, nil
}

// WithLock acquires resources, runs handler with an extend function bound
// to the acquired lock, and guarantees release on the way out - whether
// handler returns normally, returns an error, or panics. If opts.Extends is
// set, a background auto-extend scheduler keeps the lock alive for the
// handler's lifetime.
//
// Acquire runs once, release is guaranteed via defer, and a panicking
// handler is recovered and turned into an error (safeRun) rather than
// skipping cleanup. Acquisition is not retried client-side: the server
// already blocks until lockingTimeout elapses. A release failure during
// cleanup is logged and swallowed rather than retried, since the server
// reclaims the lock at TTL expiry regardless.
func WithLock[T any](client *Client, resources []string, opts LockOptions, handler func(extend ExtendFunc) (T, error)) (T, error) {
	var zero T

	lockID, err := client.Acquire(resources, opts)
	if err != nil {
		return zero, err
	}

	cancelCh := make(chan struct{})
	var wg sync.WaitGroup
	if opts.Extends != nil {
		wg.Add(1)
		go client.autoExtend(lockID, opts, cancelCh, &wg)
	}

	defer func() {
		close(cancelCh)
		wg.Wait()
		if releaseErr := client.ReleaseLock(lockID); releaseErr != nil {
			client.session.emitLog(LogReleaseLockError, map[string]any{
				"lockId": lockID,
				"error":  map[string]string{"message": releaseErr.Error()},
			})
		}
	}()

	extend := func(ttl time.Duration) error {
		if ttl == 0 {
			return client.ExtendLock(lockID, nil)
		}
		return client.ExtendLock(lockID, &ttl)
	}
	return safeRun(handler, extend)
}

// safeRun recovers a panicking handler and converts it to an error, so a
// panic never skips the deferred release in WithLock.
func safeRun[T any](handler func(extend ExtendFunc) (T, error), extend ExtendFunc) (result T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			result = zero
			if asErr, ok := rec.(error); ok {
				err = asErr
			} else {
				err = erero.Errorf("handler panicked: %v", rec)
			}
		}
	}()
	return handler(extend)
}

// autoExtend is the auto-extend scheduler: wakes every
// ttl*extendSchedule, consults the policy, and extends or stops. Extend
// errors are logged and stop the scheduler but never reach the handler.
func (c *Client) autoExtend(lockID string, opts LockOptions, cancelCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	wakeInterval := time.Duration(float64(opts.TTL) * opts.extendSchedule())
	if wakeInterval <= 0 {
		return
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-cancelCh:
			return
		default:
		}

		select {
		case <-cancelCh:
			return
		case <-time.After(wakeInterval):
		}

		decision := opts.Extends(attempt)
		if decision.Stop {
			return
		}

		ttl := decision.TTL
		if ttl <= 0 {
			ttl = opts.TTL
		}

		if err := c.ExtendLock(lockID, &ttl); err != nil {
			c.session.emitLog(LogExtendLockError, map[string]any{
				"lockId": lockID,
				"error":  map[string]string{"message": err.Error()},
			})
			return
		}
	}
}
