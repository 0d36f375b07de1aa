package scheduler

import (
	"sync"

	"golang.org/x/exp/maps"
)

// Registry maps ride ids to their running pollers. Register and cancel are
// the only mutators, so a leaked timer means a bug here and nowhere else.
// The lock also serialises all lifecycle mutations for a given ride id.
type Registry struct {
	mutex   sync.Mutex
	pollers map[string]*DelayPoller
}

func NewRegistry() *Registry {
	return &Registry{
		pollers: map[string]*DelayPoller{},
	}
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.pollers)
}

func (r *Registry) IDs() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return maps.Keys(r.pollers)
}

func (r *Registry) Get(rideID string) *DelayPoller {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.pollers[rideID]
}

// swap installs poller for rideID and returns any previous poller so the
// caller can stop it. A nil poller removes the entry.
func (r *Registry) swap(rideID string, poller *DelayPoller) *DelayPoller {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.pollers[rideID]

	if poller == nil {
		delete(r.pollers, rideID)
	} else {
		r.pollers[rideID] = poller
	}

	return previous
}

// removeIf drops the entry for rideID only if it still points at the given
// poller, so a self-terminating poller can't evict its replacement.
func (r *Registry) removeIf(rideID string, poller *DelayPoller) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.pollers[rideID] != poller {
		return false
	}

	delete(r.pollers, rideID)
	return true
}
