package migration

import (
	"fmt"

	"github.com/ppmaniotis/cloudsim/internal/core"
	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/logging"
	"github.com/ppmaniotis/cloudsim/statistics"
)

var log = logging.Get()

// DEFAULT_BANDWIDTH_PERCENT is the share of destination bandwidth spent
// on the migration itself; the rest stays available for ordinary VM
// network use during the migration window.
const DEFAULT_BANDWIDTH_PERCENT = 0.5

// Job is one in-flight migration, carried as the payload of its
// migration-finish event.
type Job struct {
	Vm     *model.Vm
	Source *model.Host
	Dest   *model.Host

	StartTime  float64
	FinishTime float64

	event *core.Event
}

// Executor carries selected migrations out over simulated time. The
// clock is single-threaded-cooperative, so the destination reservation
// in Begin is atomic with the decision that triggered it.
type Executor struct {
	sim              *core.Simulation
	bandwidthPercent float64

	pending map[int]*Job
}

func NewExecutor(sim *core.Simulation, bandwidthPercent float64) *Executor {
	if bandwidthPercent <= 0 || bandwidthPercent > 1 {
		bandwidthPercent = DEFAULT_BANDWIDTH_PERCENT
	}

	return &Executor{
		sim:              sim,
		bandwidthPercent: bandwidthPercent,
		pending:          make(map[int]*Job),
	}
}

// Duration is how long moving the VM's memory image takes over the
// migration share of the destination's bandwidth.
func (e *Executor) Duration(vm *model.Vm, dest *model.Host) float64 {
	return vm.Ram() / (dest.Bw() * e.bandwidthPercent)
}

// Begin reserves destination capacity, marks the VM as migrating out
// and schedules the finish event. The VM keeps running on the source
// with a degraded CPU share until the migration completes.
func (e *Executor) Begin(vm *model.Vm, source, dest *model.Host, now float64) (*Job, error) {
	if vm.MigrationState != model.NOT_MIGRATING {
		return nil, fmt.Errorf("vm %d is already migrating", vm.Id)
	}
	if vm.Host == nil || vm.Host.Id != source.Id {
		return nil, fmt.Errorf("vm %d is not resident on host %d", vm.Id, source.Id)
	}

	if err := dest.ReserveMigration(vm); err != nil {
		return nil, err
	}

	job := &Job{
		Vm:         vm,
		Source:     source,
		Dest:       dest,
		StartTime:  now,
		FinishTime: now + e.Duration(vm, dest),
	}

	event, err := e.sim.Schedule(core.MIGRATION_FINISH, job, job.FinishTime)
	if err != nil {
		dest.ReleaseReservation(vm)
		return nil, err
	}

	job.event = event
	vm.MigrationState = model.MIGRATING_OUT
	e.pending[vm.Id] = job
	statistics.Change("migrations", 1)

	log.Info().Msgf(
		"vm %d started migrating from host %d to host %d, finishing at %.2f",
		vm.Id, source.Id, dest.Id, job.FinishTime,
	)

	return job, nil
}

// Finish detaches the VM from its source and attaches it to the
// destination. The commit consumes the reservation held since Begin
// and cannot fail, so the VM is never left resident on no host.
func (e *Executor) Finish(job *Job) error {
	delete(e.pending, job.Vm.Id)

	if !job.Source.RemoveVm(job.Vm) {
		return fmt.Errorf("vm %d was not resident on source host %d", job.Vm.Id, job.Source.Id)
	}

	job.Vm.MigrationState = model.NOT_MIGRATING
	job.Dest.CommitMigration(job.Vm)

	log.Info().Msgf(
		"vm %d finished migrating to host %d",
		job.Vm.Id, job.Dest.Id,
	)

	return nil
}

// CancelFor withdraws the pending migration of a VM that is being
// destroyed, releasing the destination reservation and the scheduled
// finish event. It returns nil when the VM is not migrating.
func (e *Executor) CancelFor(vm *model.Vm) *Job {
	job, ok := e.pending[vm.Id]
	if !ok {
		return nil
	}

	delete(e.pending, vm.Id)
	e.sim.Cancel(job.event)
	job.Dest.ReleaseReservation(vm)
	vm.MigrationState = model.NOT_MIGRATING

	log.Info().Msgf(
		"pending migration of vm %d to host %d withdrawn",
		vm.Id, job.Dest.Id,
	)

	return job
}

// Pending returns the in-flight migration of the VM, if any.
func (e *Executor) Pending(vm *model.Vm) *Job {
	return e.pending[vm.Id]
}
