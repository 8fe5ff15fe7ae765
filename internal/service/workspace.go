package service

import (
	"sync"
	"time"

	"github.com/diagnosis/palms-parking/internal/availability"
	"github.com/diagnosis/palms-parking/internal/domain"
)

// workspace is everything the dashboard remembers about one client between
// requests: the last spot snapshot and whichever wizard is open.
type workspace struct {
	mu sync.Mutex

	spots  []domain.Spot
	order  availability.Order
	loaded bool
	// generation advances on dispose; a fetch that finds it moved on drops
	// its result.
	generation uint64
	// loads numbers fetches. committed is the newest one written, so a slow
	// older fetch never overwrites a newer list.
	loads     uint64
	committed uint64

	manage *manageFlow
	rent   *rentFlow
	// wizard advances whenever the open wizard is closed or replaced.
	wizard uint64

	lastUsed time.Time
}

// manageFlow is the open manage wizard. A remote write started from it only
// lands if ws.manage still points at the same flow when it returns.
type manageFlow struct {
	step    domain.ManageEditStep
	sending bool
}

type rentFlow struct {
	window    domain.RentWindowStep
	contact   *domain.RentContactStep
	confirmed *domain.RentConfirmed
	sending   bool
}

func (ws *workspace) findSpot(id string) (domain.Spot, bool) {
	for _, s := range ws.spots {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Spot{}, false
}

// reset drops every draft and the snapshot.
func (ws *workspace) reset() {
	ws.generation++
	ws.spots = nil
	ws.order = nil
	ws.loaded = false
	ws.closeWizards()
}

func (ws *workspace) closeWizards() {
	ws.manage = nil
	ws.rent = nil
	ws.wizard++
}

type workspaces struct {
	mu    sync.Mutex
	byID  map[string]*workspace
	clock func() time.Time
}

func newWorkspaces(clock func() time.Time) *workspaces {
	return &workspaces{byID: make(map[string]*workspace), clock: clock}
}

func (w *workspaces) get(clientID string) *workspace {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, ok := w.byID[clientID]
	if !ok {
		ws = &workspace{}
		w.byID[clientID] = ws
	}
	ws.lastUsed = w.clock()
	return ws
}

// dispose forgets a client. A fetch still in flight for it will find the
// generation moved and write nothing.
func (w *workspaces) dispose(clientID string) {
	w.mu.Lock()
	ws, ok := w.byID[clientID]
	delete(w.byID, clientID)
	w.mu.Unlock()
	if ok {
		ws.mu.Lock()
		ws.reset()
		ws.mu.Unlock()
	}
}

func (w *workspaces) sweep(idle time.Duration) int {
	cutoff := w.clock().Add(-idle)
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id, ws := range w.byID {
		if ws.lastUsed.Before(cutoff) {
			delete(w.byID, id)
			n++
		}
	}
	return n
}
