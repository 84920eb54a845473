package broker

import (
	"github.com/ppmaniotis/cloudsim/internal/model"
)

// EventInfo is the immutable snapshot handed to listener callbacks.
// Source and Dest are only set for migration events.
type EventInfo struct {
	Time   float64
	Vm     *model.Vm
	Source *model.Host
	Dest   *model.Host
}

// Listener is the callback surface external collaborators register on
// the datacenter. Callbacks run synchronously inside the dispatching
// event's handler; they may schedule new events or mutate policy
// thresholds, and such mutations take effect from the next tick.
type Listener interface {
	OnVmCreated(info EventInfo)
	OnVmDestroyed(info EventInfo)
	OnPlacementFailed(info EventInfo)
	OnMigrationStart(info EventInfo)
	OnMigrationFinish(info EventInfo)
	OnClockTick(info EventInfo)
}

// BaseListener is a no-op Listener for embedding, so callers override
// only the callbacks they care about.
type BaseListener struct{}

func (BaseListener) OnVmCreated(info EventInfo)       {}
func (BaseListener) OnVmDestroyed(info EventInfo)     {}
func (BaseListener) OnPlacementFailed(info EventInfo) {}
func (BaseListener) OnMigrationStart(info EventInfo)  {}
func (BaseListener) OnMigrationFinish(info EventInfo) {}
func (BaseListener) OnClockTick(info EventInfo)       {}

// listenerRegistry keeps a copy-on-write listener sequence: dispatch
// iterates the slice value it captured, so a callback adding or
// removing listeners never invalidates an in-flight iteration.
type listenerRegistry struct {
	listeners []Listener
}

func (r *listenerRegistry) Add(listener Listener) {
	next := make([]Listener, 0, len(r.listeners)+1)
	next = append(next, r.listeners...)
	next = append(next, listener)
	r.listeners = next
}

func (r *listenerRegistry) Remove(listener Listener) {
	next := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		if l != listener {
			next = append(next, l)
		}
	}
	r.listeners = next
}

func (r *listenerRegistry) dispatch(fire func(Listener)) {
	for _, l := range r.listeners {
		fire(l)
	}
}
