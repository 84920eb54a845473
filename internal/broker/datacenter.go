package broker

import (
	"fmt"

	"github.com/ppmaniotis/cloudsim/internal/core"
	"github.com/ppmaniotis/cloudsim/internal/migration"
	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/internal/policy"
	"github.com/ppmaniotis/cloudsim/internal/scheduler"
	"github.com/ppmaniotis/cloudsim/internal/utils"
	"github.com/ppmaniotis/cloudsim/logging"
	"github.com/ppmaniotis/cloudsim/statistics"
)

var log = logging.Get()

// Datacenter owns the hosts and drives every state change from the
// event loop: resource recomputation on ticks, VM lifecycle, migration
// policy evaluation and listener dispatch. All host and VM mutation
// happens inside HandleEvent, which is what makes the proportional
// share computation race-free without locking.
type Datacenter struct {
	Hosts []*model.Host

	sim       *core.Simulation
	policy    *policy.Policy
	scheduler scheduler.Scheduler
	executor  *migration.Executor

	listeners listenerRegistry
	bridge    *Bridge

	vms              map[int]*model.Vm
	activeVms        int
	pendingCreations int

	// completionEvents holds the predicted cloudlet-completion event
	// per VM, re-estimated whenever the VM's allocation changes.
	completionEvents map[int]*core.Event

	// lastProgress is the simulated time cloudlet execution has been
	// accounted up to.
	lastProgress float64

	finished []FinishedCloudlet

	onAllVmsCreated func(now float64)
}

// FinishedCloudlet is one completed workload, kept for the final
// report.
type FinishedCloudlet struct {
	Cloudlet *model.Cloudlet
	VmId     int
	HostId   int
	Finish   float64
}

func NewDatacenter(sim *core.Simulation, hosts []*model.Host, pol *policy.Policy, sched scheduler.Scheduler, executor *migration.Executor) *Datacenter {
	dc := &Datacenter{
		Hosts:            hosts,
		sim:              sim,
		policy:           pol,
		scheduler:        sched,
		executor:         executor,
		vms:              make(map[int]*model.Vm),
		completionEvents: make(map[int]*core.Event),
	}

	sim.SetHandler(dc)

	return dc
}

func (dc *Datacenter) AddListener(listener Listener) {
	dc.listeners.Add(listener)
}

func (dc *Datacenter) RemoveListener(listener Listener) {
	dc.listeners.Remove(listener)
}

// SetOnAllVmsCreated installs a hook fired once, when every submitted
// VM has been placed. Callers use it to tighten an inflated placement
// threshold after the startup grace window.
func (dc *Datacenter) SetOnAllVmsCreated(hook func(now float64)) {
	dc.onAllVmsCreated = hook
}

func (dc *Datacenter) Policy() *policy.Policy {
	return dc.policy
}

// SubmitVm schedules the VM's creation at the given simulated time.
func (dc *Datacenter) SubmitVm(vm *model.Vm, at float64) error {
	if _, err := dc.sim.Schedule(core.VM_CREATE, vm, at); err != nil {
		return err
	}

	dc.pendingCreations += 1
	return nil
}

// RequestDestroy schedules the VM's destruction at the given time.
func (dc *Datacenter) RequestDestroy(vm *model.Vm, at float64) error {
	_, err := dc.sim.Schedule(core.VM_DESTROY, vm, at)
	return err
}

// ActiveVms counts VMs that are alive or still waiting to be created;
// the simulation keeps ticking while any remain.
func (dc *Datacenter) ActiveVms() int {
	return dc.activeVms + dc.pendingCreations
}

func (dc *Datacenter) HandleEvent(event *core.Event) {
	switch event.Kind {
	case core.TICK:
		dc.tick(event.Time)
	case core.VM_CREATE:
		dc.createVm(event.Data.(*model.Vm), event.Time)
	case core.VM_DESTROY:
		dc.destroyVm(event.Data.(*model.Vm), event.Time)
	case core.MIGRATION_FINISH:
		dc.finishMigration(event.Data.(*migration.Job), event.Time)
	case core.UTILIZATION_UPDATE:
		dc.utilizationUpdate(event.Data.(*model.Vm), event.Time)
	default:
		log.Error().Msgf("dropping event of unknown kind: %s", event)
	}
}

func (dc *Datacenter) tick(now float64) {
	dc.progressCloudlets(now)
	dc.recomputeAll(now)
	dc.policy.Evaluate(dc.Hosts, now, dc.migrate)

	// Allocations may have shifted, so completion predictions are
	// refreshed every tick.
	for _, host := range dc.Hosts {
		for _, vm := range host.Vms {
			dc.reestimateCompletion(vm, now)
		}
	}

	dc.listeners.dispatch(func(l Listener) {
		l.OnClockTick(EventInfo{Time: now})
	})

	dc.serveBridgeRequest()
}

func (dc *Datacenter) createVm(vm *model.Vm, now float64) {
	dc.pendingCreations -= 1

	host := dc.policy.SelectHostForPlacement(vm, dc.Hosts)
	if host == nil {
		dc.deferCreation(vm, now)
		return
	}

	if err := host.AddVm(vm); err != nil {
		log.Err(err).Msgf("could not place %s", vm)
		dc.deferCreation(vm, now)
		return
	}

	vm.CreatedTime = now
	dc.vms[vm.Id] = vm
	dc.activeVms += 1

	// A VM submitted after all prior VMs finished must bring the
	// periodic tick chain back.
	dc.sim.EnsureTick()

	dc.scheduler.Recompute(host, now)
	dc.reestimateCompletion(vm, now)

	log.Info().Msgf("created %s on %s", vm, host)

	dc.listeners.dispatch(func(l Listener) {
		l.OnVmCreated(EventInfo{Time: now, Vm: vm, Dest: host})
	})

	dc.fireAllVmsCreated(now)
}

// deferCreation retries a failed placement after the policy's search
// retry delay; a full datacenter is an expected, transient condition.
// VMs that no host could admit even when empty are dropped outright,
// as is everything when the retry delay is zero, so a hopeless
// placement cannot keep the simulation alive forever.
func (dc *Datacenter) deferCreation(vm *model.Vm, now float64) {
	statistics.Change("placement failures", 1)

	dc.listeners.dispatch(func(l Listener) {
		l.OnPlacementFailed(EventInfo{Time: now, Vm: vm})
	})

	delay := dc.policy.HostSearchRetryDelay()
	if delay <= 0 || !dc.canEverFit(vm) {
		log.Warn().Msgf("no host can admit %s, dropping it", vm)
		dc.fireAllVmsCreated(now)
		return
	}

	if _, err := dc.sim.Schedule(core.VM_CREATE, vm, now+delay); err != nil {
		log.Err(err).Msgf("could not reschedule creation of %s", vm)
		dc.fireAllVmsCreated(now)
		return
	}

	dc.pendingCreations += 1
	log.Info().Msgf("no host can admit %s now, retrying at %.2f", vm, now+delay)
}

// canEverFit reports whether some host could admit the VM if it were
// completely empty.
func (dc *Datacenter) canEverFit(vm *model.Vm) bool {
	for _, host := range dc.Hosts {
		if vm.Pes <= len(host.Pes) && utils.LEThan(vm.Resources, host.Resources) {
			return true
		}
	}

	return false
}

func (dc *Datacenter) destroyVm(vm *model.Vm, now float64) {
	if !vm.IsActive() {
		return
	}

	dc.progressCloudlets(now)

	if event, ok := dc.completionEvents[vm.Id]; ok {
		dc.sim.Cancel(event)
		delete(dc.completionEvents, vm.Id)
	}

	// Destroying a VM mid-migration releases the destination
	// reservation and withdraws the pending finish event.
	dc.executor.CancelFor(vm)

	host := vm.Host
	if host != nil {
		host.RemoveVm(vm)
	}
	vm.DestroyedTime = now
	dc.activeVms -= 1

	if vm.Cloudlet != nil && vm.Cloudlet.Finished() {
		vm.Cloudlet.FinishTime = now
		hostId := -1
		if host != nil {
			hostId = host.Id
		}
		dc.finished = append(dc.finished, FinishedCloudlet{
			Cloudlet: vm.Cloudlet,
			VmId:     vm.Id,
			HostId:   hostId,
			Finish:   now,
		})
	}

	if host != nil {
		dc.scheduler.Recompute(host, now)
	}

	log.Info().Msgf("destroyed %s at %.2f", vm, now)

	dc.listeners.dispatch(func(l Listener) {
		l.OnVmDestroyed(EventInfo{Time: now, Vm: vm, Source: host})
	})
}

func (dc *Datacenter) finishMigration(job *migration.Job, now float64) {
	dc.progressCloudlets(now)

	// The cloudlet may have finished during the migration window and
	// destroyed the VM, withdrawing this job.
	if dc.executor.Pending(job.Vm) != job {
		return
	}

	if err := dc.executor.Finish(job); err != nil {
		log.Err(err).Msgf("could not complete migration of vm %d", job.Vm.Id)
		return
	}

	if len(job.Source.Vms) == 0 {
		job.Source.ConsolidationCandidate = true
		log.Info().Msgf("host %d fully evacuated, consolidation candidate", job.Source.Id)
	}

	// Recompute both ends immediately so observers see a consistent
	// post-migration state without waiting for the next tick.
	dc.scheduler.Recompute(job.Source, now)
	dc.scheduler.Recompute(job.Dest, now)
	dc.reestimateCompletion(job.Vm, now)

	dc.listeners.dispatch(func(l Listener) {
		l.OnMigrationFinish(EventInfo{Time: now, Vm: job.Vm, Source: job.Source, Dest: job.Dest})
	})
}

// utilizationUpdate is the predicted completion checkpoint of a VM's
// cloudlet. The prediction can be stale when allocations changed after
// it was scheduled, so the cloudlet state decides.
func (dc *Datacenter) utilizationUpdate(vm *model.Vm, now float64) {
	delete(dc.completionEvents, vm.Id)

	if !vm.IsActive() || vm.Cloudlet == nil {
		return
	}

	dc.progressCloudlets(now)

	if vm.Cloudlet.Finished() {
		dc.destroyVm(vm, now)
		return
	}

	if vm.Host != nil {
		dc.scheduler.Recompute(vm.Host, now)
	}
	dc.reestimateCompletion(vm, now)
}

// migrate is the policy's MigrateFn: it starts the migration and fires
// the start listeners.
func (dc *Datacenter) migrate(vm *model.Vm, source, dest *model.Host) error {
	now := dc.sim.Now()

	job, err := dc.executor.Begin(vm, source, dest, now)
	if err != nil {
		return err
	}

	// The source share drops to the overhead-penalized allocation for
	// the whole migration window, and the destination starts paying
	// the inbound cost.
	dc.scheduler.Recompute(source, now)
	dc.scheduler.Recompute(dest, now)
	dc.reestimateCompletion(vm, now)

	dc.listeners.dispatch(func(l Listener) {
		l.OnMigrationStart(EventInfo{Time: now, Vm: vm, Source: source, Dest: job.Dest})
	})

	return nil
}

// progressCloudlets accounts execution since the last accounting point
// at the allocations that held over that window, then destroys VMs
// whose cloudlets completed.
func (dc *Datacenter) progressCloudlets(now float64) {
	elapsed := now - dc.lastProgress
	if elapsed <= 0 {
		return
	}
	dc.lastProgress = now

	var done []*model.Vm
	for _, host := range dc.Hosts {
		for _, vm := range host.Vms {
			if vm.Cloudlet == nil {
				continue
			}

			if vm.Cloudlet.Advance(vm.AllocatedMips, elapsed) {
				done = append(done, vm)
			}
		}
	}

	for _, vm := range done {
		dc.destroyVm(vm, now)
	}
}

func (dc *Datacenter) recomputeAll(now float64) {
	for _, host := range dc.Hosts {
		dc.scheduler.Recompute(host, now)
	}
}

// reestimateCompletion replaces the VM's predicted cloudlet-completion
// event with one matching its current allocation, so runs terminate
// even when periodic ticks are disabled.
func (dc *Datacenter) reestimateCompletion(vm *model.Vm, now float64) {
	if vm.Cloudlet == nil || !vm.IsActive() {
		return
	}

	if event, ok := dc.completionEvents[vm.Id]; ok {
		dc.sim.Cancel(event)
		delete(dc.completionEvents, vm.Id)
	}

	at, ok := vm.Cloudlet.EstimateFinish(now, vm.AllocatedMips)
	if !ok {
		return
	}

	event, err := dc.sim.Schedule(core.UTILIZATION_UPDATE, vm, at)
	if err != nil {
		log.Err(err).Msgf("could not schedule completion estimate for vm %d", vm.Id)
		return
	}

	dc.completionEvents[vm.Id] = event
}

func (dc *Datacenter) fireAllVmsCreated(now float64) {
	if dc.pendingCreations > 0 || dc.onAllVmsCreated == nil {
		return
	}

	hook := dc.onAllVmsCreated
	dc.onAllVmsCreated = nil
	hook(now)
}

// Display renders the datacenter the way the inspection gui shows it.
func (dc *Datacenter) Display() string {
	repr := fmt.Sprintf("SIMULATED TIME: %.2f\n\nHOSTS:\n", dc.sim.Now())

	for _, host := range dc.Hosts {
		repr += fmt.Sprintf(
			"{%s, cpu %.2f, free %s}: ",
			host, host.CpuUtilization, utils.ToString(host.FreeResources()),
		)
		for _, vm := range host.Vms {
			state := ""
			if vm.MigrationStateOn(host) == model.MIGRATING_OUT {
				state = " migrating-out"
			}
			repr += fmt.Sprintf("{%s alloc %.0f MIPS%s} || ", vm, vm.AllocatedMips, state)
		}
		for _, vm := range host.MigratingIn {
			repr += fmt.Sprintf("{%s migrating-in} || ", vm)
		}

		repr += "\n"
	}

	return repr
}
