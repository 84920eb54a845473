package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ppmaniotis/cloudsim/logging"
)

var log = logging.Get()

// PastEventError reports an attempt to schedule an event before the
// current clock time. It flags a broken invariant in the caller, so
// callers are expected to treat it as fatal.
type PastEventError struct {
	Now float64
	At  float64
}

func (e *PastEventError) Error() string {
	return fmt.Sprintf("cannot schedule event at %f, clock is already at %f", e.At, e.Now)
}

// EventHandler is the component the simulation drives, in practice the
// datacenter. Handlers run to completion before the next event is
// popped, no two events are ever processed concurrently.
type EventHandler interface {
	HandleEvent(event *Event)
	ActiveVms() int
}

// Simulation owns the clock and the future event queue.
type Simulation struct {
	RunId string

	queue   *EventQueue
	handler EventHandler
	now     float64

	schedulingInterval float64
	nextTickTime       float64
	tickPending        bool
}

// NewSimulation builds a simulation with periodic ticks every
// schedulingInterval simulated seconds. A non-positive interval disables
// periodic utilization recomputation, leaving only discrete lifecycle
// events to drive state changes.
func NewSimulation(schedulingInterval float64) *Simulation {
	return &Simulation{
		RunId:              uuid.NewString(),
		queue:              NewEventQueue(),
		schedulingInterval: schedulingInterval,
	}
}

func (sim *Simulation) SetHandler(handler EventHandler) {
	sim.handler = handler
}

func (sim *Simulation) Now() float64 {
	return sim.now
}

// Schedule enqueues an event at the given simulated time and returns it,
// so the caller can cancel it later.
func (sim *Simulation) Schedule(kind EventKind, data any, at float64) (*Event, error) {
	if at < sim.now {
		return nil, &PastEventError{Now: sim.now, At: at}
	}

	event := &Event{
		Time: at,
		Kind: kind,
		Data: data,
	}
	sim.queue.Push(event)

	return event, nil
}

// Cancel withdraws a pending event. Cancelling an already dispatched or
// already cancelled event is a no-op.
func (sim *Simulation) Cancel(event *Event) {
	sim.queue.Cancel(event)
}

// Advance pops the earliest event, moves the clock to its timestamp and
// dispatches it. It reports whether an event was processed.
func (sim *Simulation) Advance() bool {
	event := sim.queue.Pop()
	if event == nil {
		return false
	}

	sim.now = event.Time
	if event.Kind == TICK {
		sim.tickPending = false
	}
	sim.handler.HandleEvent(event)

	if event.Kind == TICK {
		sim.scheduleNextTick()
	}

	return true
}

// EnsureTick restarts the periodic tick chain if it is not running,
// for callers that activate VMs after the chain stopped.
func (sim *Simulation) EnsureTick() {
	if sim.schedulingInterval <= 0 || sim.tickPending {
		return
	}

	sim.nextTickTime = sim.now + sim.schedulingInterval
	if _, err := sim.Schedule(TICK, nil, sim.nextTickTime); err != nil {
		panic(err)
	}
	sim.tickPending = true
}

// Run drives the event loop until the queue drains. Periodic ticks only
// start when VMs are active or pending, and the loop terminates because
// ticks stop being rescheduled once none remain.
func (sim *Simulation) Run() {
	log.Info().Str("run_id", sim.RunId).Msg("simulation starting")

	if sim.handler != nil && sim.handler.ActiveVms() > 0 {
		sim.EnsureTick()
	}

	for sim.Advance() {
	}

	log.Info().Str("run_id", sim.RunId).Msgf("simulation finished at %f", sim.now)
}

func (sim *Simulation) scheduleNextTick() {
	if sim.schedulingInterval <= 0 || sim.handler.ActiveVms() == 0 {
		return
	}

	sim.nextTickTime += sim.schedulingInterval
	if _, err := sim.Schedule(TICK, nil, sim.nextTickTime); err != nil {
		panic(err)
	}
	sim.tickPending = true
}
