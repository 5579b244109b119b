package ordlockclient

// Event kinds surfaced to the embedder: connect and disconnect fire once per
// connection lifecycle transition; log carries a stream of typed diagnostic
// entries an embedder can route to its own logger/metrics.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventLog        = "log"
)

// Log entry types.
const (
	LogConnectDelay     = "connect-delay"
	LogConnectError     = "connect-error"
	LogConnectionError  = "connection-error"
	LogConnected        = "connected"
	LogDisconnected     = "disconnected"
	LogExtendLockError  = "extend-lock-error"
	LogReleaseLockError = "release-lock-error"
)

// LogEntry is one entry on the log event stream: {type, data}.
type LogEntry struct {
	Type string
	Data map[string]any
}

// Event is one item on the session's event stream.
type Event struct {
	Kind string
	Log  LogEntry // populated only when Kind == EventLog
}

// eventsBacklog bounds the events channel so a slow or absent consumer never
// blocks the reconnect loop; entries beyond the backlog are dropped and
// noted through the logger instead.
const eventsBacklog = 64
