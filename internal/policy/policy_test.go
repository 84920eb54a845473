package policy

import (
	"testing"

	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/internal/model/testing_tool"
	"github.com/ppmaniotis/cloudsim/internal/scheduler"
)

type plannedMigration struct {
	vm     *model.Vm
	source *model.Host
	dest   *model.Host
}

// recordMigrations mirrors the executor's observable effect on the
// destination: the reservation that later selections must see.
func recordMigrations(t *testing.T, out *[]plannedMigration) MigrateFn {
	return func(vm *model.Vm, source, dest *model.Host) error {
		t.Helper()
		if err := dest.ReserveMigration(vm); err != nil {
			return err
		}
		vm.MigrationState = model.MIGRATING_OUT
		*out = append(*out, plannedMigration{vm: vm, source: source, dest: dest})

		return nil
	}
}

func newBuilder() *testing_tool.Builder {
	builder := testing_tool.New()
	builder.ImportVmDescs([]*testing_tool.VmDesc{
		{Name: "hot", Pes: 2, Mips: 1000, Ram: 2000, Bw: 1000, Storage: 4000, CpuUsage: 0.9},
		{Name: "warm", Pes: 2, Mips: 1000, Ram: 2000, Bw: 1000, Storage: 4000, CpuUsage: 0.8},
		{Name: "cold", Pes: 1, Mips: 1000, Ram: 1000, Bw: 500, Storage: 2000, CpuUsage: 0.2},
	})

	return builder
}

func place(t *testing.T, host *model.Host, vms ...*model.Vm) {
	t.Helper()
	for _, vm := range vms {
		if err := host.AddVm(vm); err != nil {
			t.Fatalf("could not place vm %d: %v", vm.Id, err)
		}
	}
}

func recomputeAll(hosts []*model.Host, now float64) {
	ts := scheduler.NewTimeShared()
	for _, host := range hosts {
		ts.Recompute(host, now)
	}
}

func TestThresholdValidation(t *testing.T) {
	if _, err := New(0.5, 0.5, 10, nil, nil); err == nil {
		t.Fatalf("under >= over accepted")
	}
	if _, err := New(1.2, 0.1, 10, nil, nil); err == nil {
		t.Fatalf("over > 1 accepted")
	}

	pol, err := New(0.9, 0.1, 10, nil, nil)
	if err != nil {
		t.Fatalf("valid thresholds rejected: %v", err)
	}

	if err := pol.SetOverThreshold(0.05); err == nil {
		t.Fatalf("over below under accepted at runtime")
	}
	if err := pol.SetOverThreshold(0.7); err != nil {
		t.Fatalf("could not tighten over threshold: %v", err)
	}
	if pol.OverThreshold() != 0.7 {
		t.Fatalf("over threshold is %f, want 0.7", pol.OverThreshold())
	}
	if err := pol.SetUnderThreshold(0.8); err == nil {
		t.Fatalf("under above over accepted at runtime")
	}
}

func TestOverloadedHostEvacuatesMinimumUtilizationVm(t *testing.T) {
	builder := newBuilder()
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
		{Pes: 5, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
	})

	hot := builder.GetVm("hot")
	warm := builder.GetVm("warm")
	place(t, hosts[0], hot, warm)
	recomputeAll(hosts, 1)

	pol, err := New(0.7, 0.1, 60, nil, nil)
	if err != nil {
		t.Fatalf("could not build policy: %v", err)
	}

	var migrations []plannedMigration
	pol.Evaluate(hosts, 1, recordMigrations(t, &migrations))

	if len(migrations) != 1 {
		t.Fatalf("issued %d migrations, want 1", len(migrations))
	}
	if migrations[0].vm != warm {
		t.Fatalf("selected vm %d, want the lowest-utilization vm %d", migrations[0].vm.Id, warm.Id)
	}
	if migrations[0].dest != hosts[1] {
		t.Fatalf("selected host %d as destination, want host %d", migrations[0].dest.Id, hosts[1].Id)
	}
}

func TestVmSelectionTieBreaksOnLowerId(t *testing.T) {
	builder := newBuilder()
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
		{Pes: 5, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
	})

	first := builder.GetVm("warm")
	second := builder.GetVm("warm")
	place(t, hosts[0], first, second)
	recomputeAll(hosts, 1)

	pol, err := New(0.7, 0.1, 60, nil, nil)
	if err != nil {
		t.Fatalf("could not build policy: %v", err)
	}

	var migrations []plannedMigration
	pol.Evaluate(hosts, 1, recordMigrations(t, &migrations))

	if len(migrations) != 1 || migrations[0].vm != first {
		t.Fatalf("tie-break did not pick the lower vm id")
	}
}

func TestNoDestinationDefersRetry(t *testing.T) {
	builder := newBuilder()
	// No second host exists, so evacuation cannot be placed.
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
	})

	hot := builder.GetVm("hot")
	warm := builder.GetVm("warm")
	place(t, hosts[0], hot, warm)
	recomputeAll(hosts, 1)

	pol, err := New(0.7, 0.1, 60, nil, nil)
	if err != nil {
		t.Fatalf("could not build policy: %v", err)
	}

	var migrations []plannedMigration
	pol.Evaluate(hosts, 1, recordMigrations(t, &migrations))

	if len(migrations) != 0 {
		t.Fatalf("migration issued without a destination")
	}
	if hosts[0].NextSearchTime != 61 {
		t.Fatalf("next search time is %f, want 61", hosts[0].NextSearchTime)
	}

	// Before the retry delay passes, the host is left alone.
	pol.Evaluate(hosts, 30, recordMigrations(t, &migrations))
	if len(migrations) != 0 || hosts[0].NextSearchTime != 61 {
		t.Fatalf("deferred host was re-evaluated too early")
	}
}

func TestConsolidationEvacuatesWholeHost(t *testing.T) {
	builder := newBuilder()
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
		{Pes: 8, Mips: 1000, Ram: 32000, Bw: 16000, Storage: 100000},
	})

	a := builder.GetVm("cold")
	b := builder.GetVm("cold")
	place(t, hosts[0], a, b)
	recomputeAll(hosts, 1)

	pol, err := New(0.7, 0.2, 60, nil, nil)
	if err != nil {
		t.Fatalf("could not build policy: %v", err)
	}

	var migrations []plannedMigration
	pol.Evaluate(hosts, 1, recordMigrations(t, &migrations))

	if len(migrations) != 2 {
		t.Fatalf("issued %d migrations, want the whole host evacuated", len(migrations))
	}
	for _, m := range migrations {
		if m.dest != hosts[1] {
			t.Fatalf("consolidation chose host %d, want host %d", m.dest.Id, hosts[1].Id)
		}
	}
}

func TestConsolidationIsAllOrNothing(t *testing.T) {
	builder := newBuilder()
	// The second host's RAM fits only one of the two cold VMs.
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
		{Pes: 8, Mips: 1000, Ram: 1500, Bw: 16000, Storage: 100000},
	})

	a := builder.GetVm("cold")
	b := builder.GetVm("cold")
	place(t, hosts[0], a, b)
	recomputeAll(hosts, 1)

	pol, err := New(0.7, 0.2, 60, nil, nil)
	if err != nil {
		t.Fatalf("could not build policy: %v", err)
	}

	var migrations []plannedMigration
	pol.Evaluate(hosts, 1, recordMigrations(t, &migrations))

	if len(migrations) != 0 {
		t.Fatalf("partial consolidation issued %d migrations, want none", len(migrations))
	}
	if len(hosts[0].Vms) != 2 {
		t.Fatalf("host lost vms although consolidation was infeasible")
	}
	if hosts[0].NextSearchTime != 61 {
		t.Fatalf("infeasible consolidation did not defer retry")
	}
}

func TestBestFitPicksSmallestSufficientSpare(t *testing.T) {
	builder := newBuilder()
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 8, Mips: 1000, Ram: 32000, Bw: 16000, Storage: 100000},
		{Pes: 3, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
	})
	recomputeAll(hosts, 1)

	vm := builder.GetVm("cold")

	dest := BestFit{}.SelectHostForMigration(vm, hosts)
	if dest != hosts[1] {
		t.Fatalf("best fit chose host %d, want the tighter host %d", dest.Id, hosts[1].Id)
	}
}

func TestPlacementRespectsOverThreshold(t *testing.T) {
	builder := newBuilder()
	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 2, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 100000},
	})

	resident := builder.GetVm("warm")
	place(t, hosts[0], resident)
	recomputeAll(hosts, 1)

	pol, err := New(0.7, 0.1, 60, nil, nil)
	if err != nil {
		t.Fatalf("could not build policy: %v", err)
	}

	// The host is at 0.8 already: placement must return the nil
	// sentinel rather than overload it further.
	if got := pol.SelectHostForPlacement(builder.GetVm("cold"), hosts); got != nil {
		t.Fatalf("placement on an overloaded host was allowed")
	}
}
