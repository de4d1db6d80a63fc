// Package permit correlates asynchronous tool-approval requests with the
// answers clients supply later. Each pending request is a single-resolution
// slot keyed by (sessionID, toolUseID); a slot is removed the instant it
// resolves, so every slot resolves exactly once.
package permit

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/relay/internal/daemon/engine"
)

// Correlator holds the pending approval slots for all sessions.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]map[string]chan engine.PermissionResult
	logger  *logrus.Entry
}

// New creates an empty Correlator.
func New(logger *logrus.Entry) *Correlator {
	return &Correlator{
		pending: make(map[string]map[string]chan engine.PermissionResult),
		logger:  logger,
	}
}

// Create registers a pending slot and returns the channel its answer will
// arrive on. The channel receives exactly one result. Registering an id that
// is already pending replaces the old slot after denying it; this cannot
// happen with engine-generated unique ids but must not leak a slot if it does.
func (c *Correlator) Create(sessionID, toolUseID string) <-chan engine.PermissionResult {
	ch := make(chan engine.PermissionResult, 1)

	c.mu.Lock()
	slots, ok := c.pending[sessionID]
	if !ok {
		slots = make(map[string]chan engine.PermissionResult)
		c.pending[sessionID] = slots
	}
	if old, exists := slots[toolUseID]; exists {
		old <- engine.Deny("replaced by a newer request")
	}
	slots[toolUseID] = ch
	c.mu.Unlock()

	return ch
}

// Resolve completes the pending slot if present. Resolving an unknown or
// already-resolved id is a silent no-op: a late or duplicate client answer
// must never crash the router.
func (c *Correlator) Resolve(sessionID, toolUseID string, result engine.PermissionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slots, ok := c.pending[sessionID]
	if !ok {
		return
	}
	ch, ok := slots[toolUseID]
	if !ok {
		return
	}

	delete(slots, toolUseID)
	if len(slots) == 0 {
		delete(c.pending, sessionID)
	}
	ch <- result
}

// Cancel withdraws a pending slot without resolving it. The requester calls
// this when it stops waiting on the channel, so an answer that never comes
// cannot leave the slot behind. Cancelling an unknown or already-resolved id
// is a no-op.
func (c *Correlator) Cancel(sessionID, toolUseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slots, ok := c.pending[sessionID]
	if !ok {
		return
	}
	if _, ok := slots[toolUseID]; !ok {
		return
	}

	delete(slots, toolUseID)
	if len(slots) == 0 {
		delete(c.pending, sessionID)
	}
}

// AbortSession force-resolves every pending slot of exactly one session with
// a deny outcome. Other sessions' slots are untouched.
func (c *Correlator) AbortSession(sessionID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slots, ok := c.pending[sessionID]
	if !ok {
		return
	}
	delete(c.pending, sessionID)

	for toolUseID, ch := range slots {
		c.logger.WithFields(logrus.Fields{
			"sessionId": sessionID,
			"toolUseId": toolUseID,
		}).Debug("Force-denying pending permission")
		ch <- engine.Deny(reason)
	}
}

// PendingCount returns the number of outstanding slots for a session.
func (c *Correlator) PendingCount(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[sessionID])
}
