package ordlockclient

import (
	"sync"
	"time"

	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/yyle88/must"
)

// ReconnectConfig configures the exponential backoff reconnect schedule.
// Zero values are filled in with the documented defaults by newSession.
type ReconnectConfig struct {
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	IntervalMultiplier float64
}

const (
	defaultInitialInterval    = time.Second
	defaultMaxInterval        = 5 * time.Second
	defaultIntervalMultiplier = 1.5
)

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	if c.InitialInterval == 0 {
		c.InitialInterval = defaultInitialInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = defaultMaxInterval
	}
	if c.IntervalMultiplier == 0 {
		c.IntervalMultiplier = defaultIntervalMultiplier
	}
	return c
}

// nextInterval implements the backoff step. The first failure or
// disconnection of a session (prev == 0; the interval is never reset on a
// successful connect) jumps straight to InitialInterval rather than
// InitialInterval*Multiplier. An explicitly configured zero InitialInterval
// is indistinguishable from "unset" and is replaced by the default in
// withDefaults.
func (c ReconnectConfig) nextInterval(prev time.Duration) time.Duration {
	if prev == 0 {
		return c.InitialInterval
	}
	next := time.Duration(float64(prev) * c.IntervalMultiplier)
	if next > c.MaxInterval {
		next = c.MaxInterval
	}
	return next
}

// Session maintains one reconnecting TCP connection to the lock server, and
// hands it out as a "current connection" promise. Callers of getConn block
// until a connection is established; they never need to re-register after a
// disconnect, they just call getConn again.
type Session struct {
	addr     string
	backoff  ReconnectConfig
	logger   logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	current *conn
	closed  bool

	events chan Event
}

func newSession(addr string, backoff ReconnectConfig, logger logging.Logger) *Session {
	must.OK(addr)
	s := &Session{
		addr:    addr,
		backoff: backoff.withDefaults(),
		logger:  logger,
		events:  make(chan Event, eventsBacklog),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Events returns the session's event stream. Entries beyond eventsBacklog
// are dropped (and logged) rather than blocking the reconnect loop.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.DebugLog("dropping event, listener backlog full")
	}
}

func (s *Session) emitLog(entryType string, data map[string]any) {
	s.emit(Event{Kind: EventLog, Log: LogEntry{Type: entryType, Data: data}})
}

// getConn blocks until a connection is available or the session is closed.
func (s *Session) getConn() (*conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.current == nil && !s.closed {
		s.cond.Wait()
	}
	return s.current, !s.closed
}

// Close permanently stops the reconnect loop and closes the current
// connection, if any.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	current := s.current
	s.current = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if current != nil {
		current.close()
	}
	close(s.events)
}

func (s *Session) run() {
	var interval time.Duration

	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		if interval > 0 {
			s.emitLog(LogConnectDelay, map[string]any{"delay": interval.Seconds()})
			time.Sleep(interval)
		}

		c, err := dial(s.addr)
		if err != nil {
			s.emitLog(LogConnectError, map[string]any{"error": map[string]string{"name": "ConnectionLost", "message": err.Error()}})
			interval = s.backoff.nextInterval(interval)
			continue
		}

		s.emitLog(LogConnected, nil)

		s.mu.Lock()
		s.current = c
		s.cond.Broadcast()
		s.mu.Unlock()
		s.emit(Event{Kind: EventConnect})

		<-c.done()

		s.mu.Lock()
		if s.current == c {
			s.current = nil
		}
		wasClosed := s.closed
		s.mu.Unlock()
		if wasClosed {
			return
		}

		// Disconnection grows the backoff interval the same as a failed dial
		// attempt, so a connection that drops repeatedly still backs off
		// instead of redialing immediately every time.
		interval = s.backoff.nextInterval(interval)
		s.emitLog(LogDisconnected, nil)
		s.emit(Event{Kind: EventDisconnect})
	}
}
