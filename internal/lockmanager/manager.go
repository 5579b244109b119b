// Package lockmanager is the server's single source of truth for which
// resource is held by which lock: per-resource FIFO wait queues,
// multi-resource deadlock-free atomic acquisition, TTL-based automatic
// expiry, and per-connection ownership tracking. One mutex guards a map of
// per-resource queues, with time.AfterFunc timers armed and disarmed under
// that lock.
//
// Callers must treat a call to Acquire/Release/Extend/ReleaseOwner as
// instantaneous and atomic relative to every other call.
package lockmanager

import (
	"sort"
	"sync"
	"time"

	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/utils"
	"github.com/go-xlan/ordlock/ordlockerr"
	"go.uber.org/zap"
)

// Manager is the lock manager. Zero value is not usable; build one with New.
type Manager struct {
	mu sync.Mutex

	queues       map[string][]*entry // resource id -> FIFO of entries touching it
	locksByID    map[string]*entry   // held locks, keyed by their assigned id
	ownerHeld    map[Owner]map[string]*entry
	ownerPending map[Owner]map[*entry]struct{}

	logger logging.Logger
}

// New builds an empty lock manager. logger may be logging.NewNopLogger().
func New(logger logging.Logger) *Manager {
	return &Manager{
		queues:       make(map[string][]*entry),
		locksByID:    make(map[string]*entry),
		ownerHeld:    make(map[Owner]map[string]*entry),
		ownerPending: make(map[Owner]map[*entry]struct{}),
		logger:       logger,
	}
}

// dedupeResources preserves first-occurrence order.
func dedupeResources(resources []string) []string {
	seen := make(map[string]struct{}, len(resources))
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sortedCopy(resources []string) []string {
	out := append([]string(nil), resources...)
	sort.Strings(out)
	return out
}

// Acquire registers a pending acquisition for resources under owner. If it
// can be granted immediately (it is at the head of every resource's queue),
// the second return is a non-nil Outcome and the first is nil. Otherwise a
// Ticket is returned that resolves asynchronously via Ticket.Done().
//
// InvalidRequest (empty resource set) is returned synchronously as an error,
// no entry is created, and no queue is touched.
func (m *Manager) Acquire(owner Owner, resources []string, ttl, lockingTimeout time.Duration) (*Ticket, *Outcome, error) {
	deduped := dedupeResources(resources)
	if len(deduped) == 0 {
		return nil, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "resources must not be empty")
	}
	if ttl <= 0 {
		return nil, nil, ordlockerr.New(ordlockerr.KindInvalidRequest, "ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{
		resources:       deduped,
		sortedResources: sortedCopy(deduped),
		owner:           owner,
		ttl:             ttl,
		lockingTimeout:  lockingTimeout,
		state:           StateWaiting,
		done:            make(chan struct{}),
	}

	for _, r := range e.sortedResources {
		m.queues[r] = append(m.queues[r], e)
	}

	if m.isHeadOfAll(e) {
		m.promote(e)
		outcome := e.outcome
		return nil, &outcome, nil
	}

	m.registerPending(owner, e)
	m.armLockingTimeout(e)
	return &Ticket{e: e}, nil, nil
}

// Release releases a held lock on behalf of owner. UnknownLock if
// absent/already released, NotOwner if a different connection holds it.
func (m *Manager) Release(owner Owner, lockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locksByID[lockID]
	if !ok || e.state != StateHeld {
		return ordlockerr.New(ordlockerr.KindUnknownLock, lockID)
	}
	if e.owner != owner {
		return ordlockerr.New(ordlockerr.KindNotOwner, lockID)
	}

	m.releaseHeld(e, "released")
	return nil
}

// Extend resets a held lock's deadline to now+ttl, defaulting ttl to the
// value used at acquire. An explicit ttl applies to this extension only; it
// does not change the default used by later extends.
func (m *Manager) Extend(owner Owner, lockID string, ttl *time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locksByID[lockID]
	if !ok || e.state != StateHeld {
		return ordlockerr.New(ordlockerr.KindUnknownLock, lockID)
	}
	if e.owner != owner {
		return ordlockerr.New(ordlockerr.KindNotOwner, lockID)
	}

	effective := e.ttl
	if ttl != nil {
		if *ttl <= 0 {
			return ordlockerr.New(ordlockerr.KindInvalidRequest, "ttl must be positive")
		}
		effective = *ttl
	}

	e.expiresAt = time.Now().Add(effective)
	if e.expireTimer != nil {
		e.expireTimer.Stop()
	}
	e.expireTimer = time.AfterFunc(effective, func() { m.onExpire(e) })

	return nil
}

// ReleaseOwner is called once when a connection closes: every pending
// acquisition of owner is cancelled and every held lock of owner is
// reclaimed, exactly as if released, before this call returns. The
// manager must be quiescent with respect to owner once this returns.
func (m *Manager) ReleaseOwner(owner Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for e := range m.ownerPending[owner] {
		m.cancelPending(e)
	}
	delete(m.ownerPending, owner)

	for _, e := range m.ownerHeld[owner] {
		m.releaseHeld(e, "owner disconnected")
	}
	delete(m.ownerHeld, owner)
}

// Inspect reports the current holder and queue depth of one resource,
// supporting the "inspect" RPC.
func (m *Manager) Inspect(resource string) InspectResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[resource]
	result := InspectResult{Resource: resource, QueueSize: len(q)}
	if len(q) > 0 && q[0].state == StateHeld {
		result.Locked = true
		result.LockID = q[0].id
	}
	return result
}

// --- internal, all methods below assume m.mu is held ---

func (m *Manager) isHeadOfAll(e *entry) bool {
	for _, r := range e.sortedResources {
		q := m.queues[r]
		if len(q) == 0 || q[0] != e {
			return false
		}
	}
	return true
}

func (m *Manager) promote(e *entry) {
	e.id = utils.NewUUID()
	e.state = StateHeld
	e.expiresAt = time.Now().Add(e.ttl)

	if e.timeoutTimer != nil {
		e.timeoutTimer.Stop()
		e.timeoutTimer = nil
	}
	e.expireTimer = time.AfterFunc(e.ttl, func() { m.onExpire(e) })

	m.locksByID[e.id] = e
	if m.ownerHeld[e.owner] == nil {
		m.ownerHeld[e.owner] = make(map[string]*entry)
	}
	m.ownerHeld[e.owner][e.id] = e

	if pending, ok := m.ownerPending[e.owner]; ok {
		delete(pending, e)
	}

	m.resolve(e, Outcome{LockID: e.id})

	m.logger.DebugLog("lock acquired",
		zap.String("lockId", e.id),
		zap.Strings("resources", e.resources))
}

func (m *Manager) registerPending(owner Owner, e *entry) {
	if m.ownerPending[owner] == nil {
		m.ownerPending[owner] = make(map[*entry]struct{})
	}
	m.ownerPending[owner][e] = struct{}{}
}

func (m *Manager) armLockingTimeout(e *entry) {
	e.timeoutTimer = time.AfterFunc(e.lockingTimeout, func() { m.onLockingTimeout(e) })
}

func (m *Manager) onLockingTimeout(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.state != StateWaiting {
		return // already promoted or cancelled; spurious fire is harmless
	}
	e.state = StateReleased
	m.removeFromQueuesAndWake(e)
	if pending, ok := m.ownerPending[e.owner]; ok {
		delete(pending, e)
	}
	m.resolve(e, Outcome{Err: ordlockerr.New(ordlockerr.KindLockingTimeout, "")})
}

func (m *Manager) cancelPending(e *entry) {
	if e.state != StateWaiting {
		return
	}
	e.state = StateReleased
	if e.timeoutTimer != nil {
		e.timeoutTimer.Stop()
	}
	m.removeFromQueuesAndWake(e)
	m.resolve(e, Outcome{Cancelled: true})
}

func (m *Manager) releaseHeld(e *entry, reason string) {
	e.state = StateReleased
	if e.expireTimer != nil {
		e.expireTimer.Stop()
	}
	delete(m.locksByID, e.id)
	if held, ok := m.ownerHeld[e.owner]; ok {
		delete(held, e.id)
	}
	m.removeFromQueuesAndWake(e)

	m.logger.DebugLog("lock released",
		zap.String("lockId", e.id),
		zap.Strings("resources", e.resources),
		zap.String("reason", reason))
}

func (m *Manager) onExpire(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.state != StateHeld {
		return // already released; spurious fire is harmless
	}
	if time.Now().Before(e.expiresAt) {
		return // timer replaced by a later Extend; the newer timer handles expiry
	}
	m.logger.ErrorLog("lock expired without extension",
		zap.String("lockId", e.id),
		zap.Strings("resources", e.resources))
	m.releaseHeld(e, "ttl expired")
}

func (m *Manager) resolve(e *entry, outcome Outcome) {
	if e.resolved {
		return
	}
	e.resolved = true
	e.outcome = outcome
	close(e.done)
}

// removeFromQueuesAndWake removes e from every resource queue it touched and
// promotes any newly-eligible heads, in ascending resource-id order, per the
// deterministic wake-neighbors policy.
func (m *Manager) removeFromQueuesAndWake(e *entry) {
	var becameEmpty []string
	var newHeadResources []string

	for _, r := range e.sortedResources {
		q := m.queues[r]
		idx := -1
		for i, cand := range q {
			if cand == e {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}
		wasHead := idx == 0
		q = append(q[:idx], q[idx+1:]...)
		if len(q) == 0 {
			becameEmpty = append(becameEmpty, r)
		} else {
			m.queues[r] = q
			if wasHead {
				newHeadResources = append(newHeadResources, r)
			}
		}
	}
	for _, r := range becameEmpty {
		delete(m.queues, r)
	}

	promoted := make(map[*entry]struct{})
	for _, r := range newHeadResources {
		q := m.queues[r]
		if len(q) == 0 {
			continue
		}
		candidate := q[0]
		if _, done := promoted[candidate]; done {
			continue
		}
		if candidate.state == StateWaiting && m.isHeadOfAll(candidate) {
			promoted[candidate] = struct{}{}
			m.promote(candidate)
		}
	}
}
