package ordserver

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-xlan/ordlock/internal/lockmanager"
	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/wire"
	"github.com/go-xlan/ordlock/ordlockerr"
	"go.uber.org/zap"
)

// maxInflight bounds how many requests one connection may have outstanding
// (awaiting a lock grant) at once. A connection that exceeds it gets
// InvalidRequest for the offending request rather than an unbounded
// goroutine count.
const maxInflight = 64

// connection is one accepted socket: a single reader goroutine dispatches
// requests onto the shared manager, and writeMu serializes the response
// frames that the per-request goroutines write back, since net.Conn writes
// are not safe for concurrent use without coordination.
type connection struct {
	conn    net.Conn
	manager *lockmanager.Manager
	logger  logging.Logger

	writeMu sync.Mutex

	inflightMu sync.Mutex
	inflight   int
}

func newConnection(conn net.Conn, manager *lockmanager.Manager, logger logging.Logger) *connection {
	return &connection{
		conn:    conn,
		manager: manager,
		logger:  logger.WithMeta(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// serve runs the read/dispatch loop until the connection closes or done
// fires. It always releases every lock (held or pending) the connection
// owns before returning.
func (c *connection) serve(done <-chan struct{}) {
	defer func() {
		c.manager.ReleaseOwner(c)
		_ = c.conn.Close()
	}()

	go func() {
		<-done
		_ = c.conn.Close()
	}()

	for {
		var req wire.Request
		if err := wire.ReadFrame(c.conn, &req); err != nil {
			if err != io.EOF {
				c.logger.DebugLog("connection closed", zap.Error(err))
			}
			return
		}

		go c.dispatch(&req)
	}
}

// dispatch handles one request. It runs on its own goroutine so a request
// that blocks waiting for a lock (lock method) never stalls the read loop;
// the manager itself serializes all state mutation behind its own mutex.
func (c *connection) dispatch(req *wire.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.ErrorLog("request handler panicked", zap.String("method", req.Method), zap.Any("panic", rec))
		}
	}()

	switch req.Method {
	case wire.MethodLock:
		c.handleLock(req)
	case wire.MethodExtendLock:
		c.handleExtendLock(req)
	case wire.MethodReleaseLock:
		c.handleReleaseLock(req)
	case wire.MethodInspect:
		c.handleInspect(req)
	default:
		c.reply(req.ID, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "unknown method "+req.Method))
	}
}

func (c *connection) handleLock(req *wire.Request) {
	var params wire.LockParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.reply(req.ID, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "malformed params"))
		return
	}

	if !c.acquireInflightSlot() {
		c.reply(req.ID, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "too many inflight requests"))
		return
	}
	defer c.releaseInflightSlot()

	ttl := time.Duration(params.TTL * float64(time.Second))
	lockingTimeout := time.Duration(params.LockingTimeout * float64(time.Second))

	ticket, outcome, err := c.manager.Acquire(c, params.Resources, ttl, lockingTimeout)
	if err != nil {
		c.reply(req.ID, nil, err)
		return
	}
	if outcome != nil {
		c.replyOutcome(req.ID, *outcome)
		return
	}

	<-ticket.Done()
	resolved := ticket.Outcome()
	if resolved.Cancelled {
		return // connection is going away; nothing to reply to
	}
	c.replyOutcome(req.ID, resolved)
}

func (c *connection) handleExtendLock(req *wire.Request) {
	var params wire.ExtendLockParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.reply(req.ID, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "malformed params"))
		return
	}

	var ttl *time.Duration
	if params.TTL != nil {
		d := time.Duration(*params.TTL * float64(time.Second))
		ttl = &d
	}

	if err := c.manager.Extend(c, params.LockID, ttl); err != nil {
		c.reply(req.ID, nil, err)
		return
	}
	c.reply(req.ID, map[string]bool{"ok": true}, nil)
}

func (c *connection) handleReleaseLock(req *wire.Request) {
	var params wire.ReleaseLockParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.reply(req.ID, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "malformed params"))
		return
	}

	if err := c.manager.Release(c, params.LockID); err != nil {
		c.reply(req.ID, nil, err)
		return
	}
	c.reply(req.ID, map[string]bool{"ok": true}, nil)
}

func (c *connection) handleInspect(req *wire.Request) {
	var params wire.InspectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.reply(req.ID, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "malformed params"))
		return
	}

	result := c.manager.Inspect(params.Resource)
	c.reply(req.ID, wire.InspectResult{
		Resource:  result.Resource,
		Locked:    result.Locked,
		LockID:    result.LockID,
		QueueSize: result.QueueSize,
	}, nil)
}

func (c *connection) acquireInflightSlot() bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if c.inflight >= maxInflight {
		return false
	}
	c.inflight++
	return true
}

func (c *connection) releaseInflightSlot() {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	c.inflight--
}

func (c *connection) replyOutcome(id any, outcome lockmanager.Outcome) {
	if outcome.Err != nil {
		c.reply(id, nil, outcome.Err)
		return
	}
	c.reply(id, map[string]string{"lockId": outcome.LockID}, nil)
}

// reply writes one Response frame. Errors are translated to the wire
// {name, message} shape; an err that is not an *ordlockerr.RPCError is
// treated as an internal InvalidRequest rather than leaking its text.
func (c *connection) reply(id any, result any, err error) {
	resp := wire.Response{ID: id, Result: result}
	if err != nil {
		resp.Result = nil
		if rpcErr, ok := err.(*ordlockerr.RPCError); ok {
			resp.Error = &wire.ErrorObject{Name: rpcErr.Kind.String(), Message: rpcErr.Message}
		} else {
			resp.Error = &wire.ErrorObject{Name: ordlockerr.KindInvalidRequest.String(), Message: "internal error"}
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if werr := wire.WriteFrame(c.conn, resp); werr != nil {
		c.logger.DebugLog("write failed", zap.Error(werr))
	}
}
