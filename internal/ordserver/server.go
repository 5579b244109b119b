// Package ordserver is the TCP front end of the lock service: it accepts
// connections, frames requests and responses with internal/wire, and routes
// each request to the shared internal/lockmanager.Manager.
package ordserver

import (
	"context"
	"net"
	"sync"

	"github.com/go-xlan/ordlock/internal/lockmanager"
	"github.com/go-xlan/ordlock/internal/logging"
	"go.uber.org/zap"
)

// Server accepts TCP connections and dispatches their requests against a
// single shared Manager.
type Server struct {
	manager *lockmanager.Manager
	logger  logging.Logger

	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a server backed by manager. Call Serve to begin accepting.
func New(manager *lockmanager.Manager, logger logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		manager: manager,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Serve runs the accept loop against listener until Shutdown is called or
// the listener itself fails. It blocks until the accept loop exits.
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	s.logger.DebugLog("lock server listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c := newConnection(conn, s.manager, s.logger)
			c.serve(s.ctx.Done())
		}()
	}
}

// Shutdown stops accepting new connections, closes every in-flight
// connection (which cascades into lockmanager.Manager.ReleaseOwner for each),
// and waits for their goroutines to exit or ctx to be cancelled first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
