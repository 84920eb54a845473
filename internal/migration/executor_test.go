package migration

import (
	"testing"

	"github.com/ppmaniotis/cloudsim/internal/core"
	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/internal/model/testing_tool"
)

func buildTopology(t *testing.T) (*model.Host, *model.Host, *model.Vm) {
	t.Helper()

	builder := testing_tool.New()
	builder.ImportVmDescs([]*testing_tool.VmDesc{
		{Name: "worker", Pes: 2, Mips: 1000, Ram: 2000, Bw: 1000, Storage: 4000, CpuUsage: 0.8},
	})

	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
		{Pes: 5, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
	})

	vm := builder.GetVm("worker")
	if err := hosts[0].AddVm(vm); err != nil {
		t.Fatalf("could not place vm: %v", err)
	}

	return hosts[0], hosts[1], vm
}

func TestDurationScalesWithRamAndBandwidthShare(t *testing.T) {
	_, dest, vm := buildTopology(t)

	executor := NewExecutor(core.NewSimulation(1), 0.5)

	// 2000 MB over half of 16000 MB/s.
	if got := executor.Duration(vm, dest); got != 0.25 {
		t.Fatalf("duration is %f, want 0.25", got)
	}
}

func TestBeginReservesDestinationAndSchedulesFinish(t *testing.T) {
	source, dest, vm := buildTopology(t)

	sim := core.NewSimulation(1)
	executor := NewExecutor(sim, 0.5)

	freeBefore := dest.FreeResources()

	job, err := executor.Begin(vm, source, dest, 1)
	if err != nil {
		t.Fatalf("could not begin migration: %v", err)
	}

	if job.FinishTime != 1.25 {
		t.Fatalf("finish time is %f, want 1.25", job.FinishTime)
	}
	if vm.MigrationState != model.MIGRATING_OUT {
		t.Fatalf("vm is not marked migrating out")
	}
	if vm.Host != source {
		t.Fatalf("vm left its source before the migration finished")
	}
	if executor.Pending(vm) != job {
		t.Fatalf("job is not tracked as pending")
	}

	// The reservation holds RAM and storage but not bandwidth.
	freeAfter := dest.FreeResources()
	if got := freeBefore.AtVec(model.RES_RAM) - freeAfter.AtVec(model.RES_RAM); got != vm.Ram() {
		t.Fatalf("reserved %f ram, want %f", got, vm.Ram())
	}
	if freeBefore.AtVec(model.RES_BW) != freeAfter.AtVec(model.RES_BW) {
		t.Fatalf("bandwidth was reserved, it should only be throttled")
	}
}

func TestBeginRejectsAlreadyMigratingVm(t *testing.T) {
	source, dest, vm := buildTopology(t)

	executor := NewExecutor(core.NewSimulation(1), 0.5)

	if _, err := executor.Begin(vm, source, dest, 1); err != nil {
		t.Fatalf("could not begin migration: %v", err)
	}
	if _, err := executor.Begin(vm, source, dest, 1); err == nil {
		t.Fatalf("second migration of the same vm accepted")
	}
}

func TestBeginRejectsNonResidentVm(t *testing.T) {
	source, dest, vm := buildTopology(t)

	executor := NewExecutor(core.NewSimulation(1), 0.5)

	if _, err := executor.Begin(vm, dest, source, 1); err == nil {
		t.Fatalf("migration accepted for a vm not resident on the claimed source")
	}
}

func TestFinishMovesVmAndConsumesReservation(t *testing.T) {
	source, dest, vm := buildTopology(t)

	executor := NewExecutor(core.NewSimulation(1), 0.5)

	job, err := executor.Begin(vm, source, dest, 1)
	if err != nil {
		t.Fatalf("could not begin migration: %v", err)
	}
	freeDuring := dest.FreeResources()

	if err := executor.Finish(job); err != nil {
		t.Fatalf("could not finish migration: %v", err)
	}

	if vm.Host != dest {
		t.Fatalf("vm is resident on host %d, want host %d", vm.Host.Id, dest.Id)
	}
	if len(source.Vms) != 0 {
		t.Fatalf("source still lists the migrated vm")
	}
	if vm.MigrationState != model.NOT_MIGRATING {
		t.Fatalf("vm is still marked migrating")
	}
	if executor.Pending(vm) != nil {
		t.Fatalf("finished migration still tracked as pending")
	}

	// Commit converts the reservation into a normal allocation, so the
	// free RAM must not drop a second time.
	freeAfter := dest.FreeResources()
	if freeDuring.AtVec(model.RES_RAM) != freeAfter.AtVec(model.RES_RAM) {
		t.Fatalf("commit changed free ram from %f to %f, reservation was double-counted",
			freeDuring.AtVec(model.RES_RAM), freeAfter.AtVec(model.RES_RAM))
	}
}

func TestFinishAttachesDespiteShrunkenBandwidth(t *testing.T) {
	source, dest, vm := buildTopology(t)

	executor := NewExecutor(core.NewSimulation(1), 0.5)

	job, err := executor.Begin(vm, source, dest, 1)
	if err != nil {
		t.Fatalf("could not begin migration: %v", err)
	}

	// The destination admits another VM that consumes all remaining
	// bandwidth during the migration window. Only RAM and storage were
	// reserved, so the finish must still attach the migrating VM
	// rather than strand it without a host.
	greedy := model.NewVm(99, 1, 1000, 1000, dest.Bw(), 1000, model.NewUtilizationModelDynamic(0.5, 1))
	if err := dest.AddVm(greedy); err != nil {
		t.Fatalf("could not place the bandwidth-hungry vm: %v", err)
	}

	if err := executor.Finish(job); err != nil {
		t.Fatalf("could not finish migration: %v", err)
	}

	if vm.Host != dest {
		t.Fatalf("migrating vm is resident nowhere")
	}
	if len(source.Vms) != 0 {
		t.Fatalf("source still lists the migrated vm")
	}
	if vm.MigrationState != model.NOT_MIGRATING {
		t.Fatalf("vm is still marked migrating")
	}
}

func TestCancelReleasesReservationAndWithdrawsEvent(t *testing.T) {
	source, dest, vm := buildTopology(t)

	sim := core.NewSimulation(1)
	executor := NewExecutor(sim, 0.5)

	freeBefore := dest.FreeResources()

	if _, err := executor.Begin(vm, source, dest, 1); err != nil {
		t.Fatalf("could not begin migration: %v", err)
	}

	job := executor.CancelFor(vm)
	if job == nil {
		t.Fatalf("cancel found no pending migration")
	}

	if vm.MigrationState != model.NOT_MIGRATING {
		t.Fatalf("cancelled vm is still marked migrating")
	}
	if executor.Pending(vm) != nil {
		t.Fatalf("cancelled migration still tracked as pending")
	}

	freeAfter := dest.FreeResources()
	if freeBefore.AtVec(model.RES_RAM) != freeAfter.AtVec(model.RES_RAM) {
		t.Fatalf("reservation leaked after cancel")
	}
	if len(dest.MigratingIn) != 0 {
		t.Fatalf("destination still lists the vm as migrating in")
	}

	// The finish event was cancelled, so the queue is effectively empty.
	if sim.Advance() {
		t.Fatalf("withdrawn finish event was still dispatched")
	}
}

func TestCancelWithoutPendingMigrationIsNil(t *testing.T) {
	_, _, vm := buildTopology(t)

	executor := NewExecutor(core.NewSimulation(1), 0.5)

	if executor.CancelFor(vm) != nil {
		t.Fatalf("cancel invented a job for a vm that is not migrating")
	}
}
