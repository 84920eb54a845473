package core

import (
	"gopkg.in/yaml.v3"
)

type EventKind int64

const (
	TICK EventKind = iota
	VM_CREATE
	VM_DESTROY
	MIGRATION_FINISH
	UTILIZATION_UPDATE
)

func (kind EventKind) String() string {
	switch kind {
	case TICK:
		return "tick"
	case VM_CREATE:
		return "vm-create"
	case VM_DESTROY:
		return "vm-destroy"
	case MIGRATION_FINISH:
		return "migration-finish"
	case UTILIZATION_UPDATE:
		return "utilization-update"
	}

	return "unknown"
}

// Event is a time-stamped entry of the future event queue. Data carries
// the target entity reference, owned by the handler that scheduled it.
type Event struct {
	Time float64   `yaml:"time"`
	Kind EventKind `yaml:"kind"`
	Data any       `yaml:"-"`

	// seq makes the (Time, seq) order total, so events that share a
	// timestamp dispatch in arrival order.
	seq       int64
	cancelled bool
}

func (event *Event) String() string {
	bytes, _ := yaml.Marshal(event)
	return string(bytes[:])
}
