// Package ordlockclient is the client library for the lock service: a
// persistent connection with reconnect, request/response correlation, and a
// lock API with an auto-extend scheduler.
package ordlockclient

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/go-xlan/ordlock/internal/utils"
	"github.com/go-xlan/ordlock/internal/wire"
	"github.com/go-xlan/ordlock/ordlockerr"
	"github.com/yyle88/erero"
)

// pendingCall is a request awaiting its response, keyed by correlation id.
type pendingCall struct {
	resultCh chan callResult
}

type callResult struct {
	result json.RawMessage
	err    error
}

// conn owns one TCP socket to the lock server. It is not reconnect-aware;
// Session owns the reconnect loop and replaces conn wholesale on disconnect.
type conn struct {
	netConn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool
	closeCh chan struct{}
}

func dial(addr string) (*conn, error) {
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, erero.Wro(err)
	}
	c := &conn{
		netConn: netConn,
		pending: make(map[string]*pendingCall),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// call issues one RPC and blocks until a response arrives or the socket
// closes. A call is never retried at this layer.
func (c *conn) call(method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, erero.Wro(err)
	}

	id := utils.NewUUID()
	pc := &pendingCall{resultCh: make(chan callResult, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ordlockerr.ConnectionLost
	}
	c.pending[id] = pc
	c.mu.Unlock()

	req := wire.Request{ID: id, Method: method, Params: raw}

	c.writeMu.Lock()
	writeErr := wire.WriteFrame(c.netConn, req)
	c.writeMu.Unlock()

	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ordlockerr.ConnectionLost
	}

	result := <-pc.resultCh
	return result.result, result.err
}

// readLoop is the single reader: it decodes responses and resolves the
// matching pending call by id. On read failure it fails every outstanding
// call with ConnectionLost and closes closeCh.
func (c *conn) readLoop() {
	for {
		var resp wire.Response
		if err := wire.ReadFrame(c.netConn, &resp); err != nil {
			c.shutdown()
			return
		}

		idStr, ok := resp.ID.(string)
		if !ok {
			continue
		}

		c.mu.Lock()
		pc, found := c.pending[idStr]
		delete(c.pending, idStr)
		c.mu.Unlock()
		if !found {
			continue
		}

		if resp.Error != nil {
			pc.resultCh <- callResult{err: responseError(resp.Error)}
			continue
		}
		resultBytes, _ := json.Marshal(resp.Result)
		pc.resultCh <- callResult{result: resultBytes}
	}
}

func responseError(obj *wire.ErrorObject) error {
	if kind, ok := ordlockerr.KindByName(obj.Name); ok {
		return ordlockerr.New(kind, obj.Message)
	}
	return ordlockerr.New(ordlockerr.KindInvalidRequest, obj.Message)
}

func (c *conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, pc := range pending {
		pc.resultCh <- callResult{err: ordlockerr.ConnectionLost}
	}
	_ = c.netConn.Close()
	close(c.closeCh)
}

// done is closed once the connection has failed or been closed.
func (c *conn) done() <-chan struct{} {
	return c.closeCh
}

func (c *conn) close() {
	c.shutdown()
}
