// Package room drives the session lifecycle: joins through the admission
// gate, announced leaves, disconnect grace windows and moderation
// removals. It is the only writer of join/leave system notices.
package room

import (
	"fmt"
	"sync"
	"time"

	"lounge/internal/observability"
)

// graceManager tracks one pending disconnect timer per user-room pair.
// A rejoin inside the window cancels the timer and the leave is never
// announced.
type graceManager struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newGraceManager() *graceManager {
	return &graceManager{timers: make(map[string]*time.Timer)}
}

func graceKey(userID uint, roomID string) string {
	return fmt.Sprintf("%d:%s", userID, roomID)
}

// Arm schedules fire after d. An existing timer for the same pair is
// replaced, so repeated disconnects extend rather than stack.
func (g *graceManager) Arm(userID uint, roomID string, d time.Duration, fire func()) {
	key := graceKey(userID, roomID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.timers[key]; ok {
		old.Stop()
	} else {
		observability.GraceTimersActive.Inc()
	}

	g.timers[key] = time.AfterFunc(d, func() {
		g.mu.Lock()
		if _, ok := g.timers[key]; !ok {
			// Cancelled after firing was scheduled.
			g.mu.Unlock()
			return
		}
		delete(g.timers, key)
		observability.GraceTimersActive.Dec()
		g.mu.Unlock()
		fire()
	})
}

// Cancel stops a pending timer. Returns true when a timer was armed.
func (g *graceManager) Cancel(userID uint, roomID string) bool {
	key := graceKey(userID, roomID)

	g.mu.Lock()
	defer g.mu.Unlock()

	timer, ok := g.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(g.timers, key)
	observability.GraceTimersActive.Dec()
	return true
}

// Stop cancels every pending timer. Used at shutdown.
func (g *graceManager) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key, timer := range g.timers {
		timer.Stop()
		delete(g.timers, key)
		observability.GraceTimersActive.Dec()
	}
}
