package ordlockclient

import (
	"net"
	"testing"
	"time"

	"github.com/go-xlan/ordlock/internal/lockmanager"
	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/ordserver"
	"github.com/go-xlan/ordlock/ordlockerr"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := ordserver.New(lockmanager.New(logging.NewNopLogger()), logging.NewNopLogger())
	go func() { _ = srv.Serve(listener) }()

	return listener.Addr().String(), func() { _ = listener.Close() }
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	client := Dial(addr, ReconnectConfig{}, logging.NewNopLogger())

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-client.Events():
			if ev.Kind == EventConnect {
				return client
			}
		case <-deadline:
			t.Fatal("client never connected")
		}
	}
}

// S1: simple FIFO over the wire.
func TestClient_SimpleFIFO(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c1 := newTestClient(t, addr)
	defer c1.Close()
	c2 := newTestClient(t, addr)
	defer c2.Close()

	lockID1, err := c1.Acquire([]string{"a"}, LockOptions{TTL: 10 * time.Second, LockingTimeout: 10 * time.Second})
	require.NoError(t, err)
	require.NotEmpty(t, lockID1)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		id, err := c2.Acquire([]string{"a"}, LockOptions{TTL: 10 * time.Second, LockingTimeout: 10 * time.Second})
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- id
	}()

	select {
	case <-resultCh:
		t.Fatal("second acquirer resolved before first released")
	case <-errCh:
		t.Fatal("second acquirer failed unexpectedly")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, c1.ReleaseLock(lockID1))

	select {
	case lockID2 := <-resultCh:
		require.NotEmpty(t, lockID2)
		require.NotEqual(t, lockID1, lockID2)
	case err := <-errCh:
		t.Fatalf("second acquirer failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("second acquirer never resolved")
	}
}

// S2: locking timeout.
func TestClient_LockingTimeout(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c1 := newTestClient(t, addr)
	defer c1.Close()
	c2 := newTestClient(t, addr)
	defer c2.Close()

	_, err := c1.Acquire([]string{"a"}, LockOptions{TTL: 10 * time.Second, LockingTimeout: 10 * time.Second})
	require.NoError(t, err)

	start := time.Now()
	_, err = c2.Acquire([]string{"a"}, LockOptions{TTL: 10 * time.Second, LockingTimeout: time.Second})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ordlockerr.LockingTimeout)
	require.InDelta(t, time.Second.Seconds(), elapsed.Seconds(), 0.5)
}

// S3: multi-resource deadlock avoidance, opposite acquire order.
func TestClient_MultiResourceNoDeadlock(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c1 := newTestClient(t, addr)
	defer c1.Close()
	c2 := newTestClient(t, addr)
	defer c2.Close()

	lockID1, err := c1.Acquire([]string{"a", "b"}, LockOptions{TTL: time.Minute, LockingTimeout: 5 * time.Second})
	require.NoError(t, err)

	doneCh := make(chan string, 1)
	go func() {
		id, err := c2.Acquire([]string{"b", "a"}, LockOptions{TTL: time.Minute, LockingTimeout: 5 * time.Second})
		require.NoError(t, err)
		doneCh <- id
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, c1.ReleaseLock(lockID1))

	select {
	case lockID2 := <-doneCh:
		require.NotEmpty(t, lockID2)
	case <-time.After(time.Second):
		t.Fatal("second multi-resource acquirer never resolved")
	}
}

// S4: auto-extend keeps a lock alive across a handler longer than the TTL.
func TestClient_WithLockAutoExtend(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c1 := newTestClient(t, addr)
	defer c1.Close()
	c2 := newTestClient(t, addr)
	defer c2.Close()

	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		result, err := WithLock(c1, []string{"x"}, LockOptions{
			TTL:            2 * time.Second,
			LockingTimeout: 5 * time.Second,
			ExtendSchedule: 0.5,
			Extends:        FixedExtends(3),
		}, func(extend ExtendFunc) (string, error) {
			time.Sleep(3 * time.Second)
			return "ok", nil
		})
		require.NoError(t, err)
		require.Equal(t, "ok", result)
	}()

	time.Sleep(200 * time.Millisecond)
	_, err := c2.Acquire([]string{"x"}, LockOptions{TTL: time.Second, LockingTimeout: time.Second})
	require.ErrorIs(t, err, ordlockerr.LockingTimeout)

	<-handlerDone

	lockID2, err := c2.Acquire([]string{"x"}, LockOptions{TTL: time.Second, LockingTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NotEmpty(t, lockID2)
}

// S6: a forcibly closed connection reclaims its locks without waiting for TTL.
func TestClient_DisconnectReleases(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	c1 := newTestClient(t, addr)
	c2 := newTestClient(t, addr)
	defer c2.Close()

	_, err := c1.Acquire([]string{"r"}, LockOptions{TTL: time.Minute, LockingTimeout: 30 * time.Second})
	require.NoError(t, err)

	resultCh := make(chan string, 1)
	go func() {
		id, err := c2.Acquire([]string{"r"}, LockOptions{TTL: time.Minute, LockingTimeout: 30 * time.Second})
		require.NoError(t, err)
		resultCh <- id
	}()

	time.Sleep(100 * time.Millisecond)
	c1.session.mu.Lock()
	current := c1.session.current
	c1.session.mu.Unlock()
	require.NotNil(t, current)
	current.close()

	select {
	case lockID := <-resultCh:
		require.NotEmpty(t, lockID)
	case <-time.After(time.Second):
		t.Fatal("disconnect did not reclaim resource in time")
	}
}

// S5: reconnect backoff against a closed port, then a server starting late.
func TestClient_ReconnectBackoff(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close()) // close immediately: nothing is listening

	client := Dial(addr, ReconnectConfig{
		InitialInterval:    20 * time.Millisecond,
		MaxInterval:        100 * time.Millisecond,
		IntervalMultiplier: 1.5,
	}, logging.NewNopLogger())
	defer client.Close()

	var delays []float64
	deadline := time.After(2 * time.Second)
collect:
	for len(delays) < 3 {
		select {
		case ev := <-client.Events():
			if ev.Kind == EventLog && ev.Log.Type == LogConnectDelay {
				delays = append(delays, ev.Log.Data["delay"].(float64))
			}
		case <-deadline:
			break collect
		}
	}

	require.GreaterOrEqual(t, len(delays), 2)
	require.InDelta(t, 0.02, delays[0], 0.01)
	require.InDelta(t, 0.03, delays[1], 0.015)
}

// S5: a disconnection (not a failed dial) must also grow the backoff
// interval, so reconnecting after a drop does not redial with zero delay.
func TestClient_ReconnectBackoffAfterDisconnect(t *testing.T) {
	addr, shutdown := startServer(t)
	defer shutdown()

	client := Dial(addr, ReconnectConfig{
		InitialInterval:    30 * time.Millisecond,
		MaxInterval:        200 * time.Millisecond,
		IntervalMultiplier: 1.5,
	}, logging.NewNopLogger())
	defer client.Close()

	waitForEvent(t, client, EventConnect)

	client.session.mu.Lock()
	current := client.session.current
	client.session.mu.Unlock()
	require.NotNil(t, current)
	current.close()

	waitForEvent(t, client, EventDisconnect)

	delay := waitForLog(t, client, LogConnectDelay)
	require.InDelta(t, 0.03, delay, 0.015)
}

func waitForEvent(t *testing.T, client *Client, kind string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-client.Events():
			if ev.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", kind)
		}
	}
}

func waitForLog(t *testing.T, client *Client, logType string) float64 {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-client.Events():
			if ev.Kind == EventLog && ev.Log.Type == logType {
				return ev.Log.Data["delay"].(float64)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for log %q", logType)
		}
	}
}
