package ordserver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/go-xlan/ordlock/internal/lockmanager"
	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/wire"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(lockmanager.New(logging.NewNopLogger()), logging.NewNopLogger())
	go func() {
		_ = srv.Serve(listener)
	}()

	return listener.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
	}
}

func rawCall(t *testing.T, conn net.Conn, id, method string, params any) wire.Response {
	t.Helper()

	raw, err := json.Marshal(params)
	require.NoError(t, err)

	require.NoError(t, wire.WriteFrame(conn, wire.Request{ID: id, Method: method, Params: raw}))

	var resp wire.Response
	require.NoError(t, wire.ReadFrame(conn, &resp))
	return resp
}

func TestServer_LockReleaseRoundTrip(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	lockResp := rawCall(t, conn, "1", wire.MethodLock, wire.LockParams{
		Resources:      []string{"widget"},
		TTL:            5,
		LockingTimeout: 1,
	})
	require.Nil(t, lockResp.Error)

	resultMap, ok := lockResp.Result.(map[string]any)
	require.True(t, ok)
	lockID, _ := resultMap["lockId"].(string)
	require.NotEmpty(t, lockID)

	releaseResp := rawCall(t, conn, "2", wire.MethodReleaseLock, wire.ReleaseLockParams{LockID: lockID})
	require.Nil(t, releaseResp.Error)
}

func TestServer_InspectReportsQueue(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_ = rawCall(t, conn, "1", wire.MethodLock, wire.LockParams{
		Resources:      []string{"gadget"},
		TTL:            5,
		LockingTimeout: 1,
	})

	inspectResp := rawCall(t, conn, "2", wire.MethodInspect, wire.InspectParams{Resource: "gadget"})
	require.Nil(t, inspectResp.Error)

	result, ok := inspectResp.Result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, result["locked"])
	require.Equal(t, float64(1), result["queueSize"])
}

func TestServer_UnknownMethodIsInvalidRequest(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	resp := rawCall(t, conn, "1", "not-a-method", struct{}{})
	require.NotNil(t, resp.Error)
	require.Equal(t, "InvalidRequest", resp.Error.Name)
}

// Disconnecting while a lock is held frees it for the next connection,
// exercising the ReleaseOwner cascade wired through connection.serve.
func TestServer_DisconnectReleasesHeldLock(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	connA, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	lockResp := rawCall(t, connA, "1", wire.MethodLock, wire.LockParams{
		Resources:      []string{"shared"},
		TTL:            10,
		LockingTimeout: 1,
	})
	require.Nil(t, lockResp.Error)

	require.NoError(t, connA.Close())

	connB, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer connB.Close()

	// give the server a moment to observe the close and run ReleaseOwner.
	deadline := time.Now().Add(time.Second)
	var lockResp2 wire.Response
	for {
		lockResp2 = rawCall(t, connB, "1", wire.MethodLock, wire.LockParams{
			Resources:      []string{"shared"},
			TTL:            5,
			LockingTimeout: 50 * float64(time.Millisecond) / float64(time.Second),
		})
		if lockResp2.Error == nil || time.Now().After(deadline) {
			break
		}
	}
	require.Nil(t, lockResp2.Error)
}
