package policy

import (
	"fmt"
	"sort"

	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/internal/utils"
	"github.com/ppmaniotis/cloudsim/logging"
	"github.com/ppmaniotis/cloudsim/statistics"
	"gonum.org/v1/gonum/mat"
)

var log = logging.Get()

// MigrateFn starts one migration. The policy expects it to reserve
// destination capacity immediately, so later selections within the same
// evaluation observe it.
type MigrateFn func(vm *model.Vm, source, dest *model.Host) error

// Policy watches host utilization at every scheduling tick and decides
// which VMs to move. Thresholds are mutable at runtime; a caller may
// start with an inflated over-threshold during initial placement and
// tighten it afterwards.
type Policy struct {
	over  float64
	under float64

	// hostSearchRetryDelay is how long a host is left alone after a
	// target search found no suitable destination.
	hostSearchRetryDelay float64

	vmSelection   VmSelection
	hostSelection HostSelection
}

func New(over, under, hostSearchRetryDelay float64, vmSelection VmSelection, hostSelection HostSelection) (*Policy, error) {
	if over <= 0 || over > 1 {
		return nil, fmt.Errorf("over utilization threshold %f must be in (0, 1]", over)
	}
	if under < 0 || under >= over {
		return nil, fmt.Errorf("under threshold %f must be below over threshold %f", under, over)
	}
	if hostSearchRetryDelay < 0 {
		return nil, fmt.Errorf("host search retry delay must be non-negative")
	}

	if vmSelection == nil {
		vmSelection = MinimumUtilization{}
	}
	if hostSelection == nil {
		hostSelection = BestFit{}
	}

	return &Policy{
		over:                 over,
		under:                under,
		hostSearchRetryDelay: hostSearchRetryDelay,
		vmSelection:          vmSelection,
		hostSelection:        hostSelection,
	}, nil
}

func (p *Policy) OverThreshold() float64 {
	return p.over
}

func (p *Policy) UnderThreshold() float64 {
	return p.under
}

// HostSearchRetryDelay is the wait before a failed placement or target
// search is attempted again.
func (p *Policy) HostSearchRetryDelay() float64 {
	return p.hostSearchRetryDelay
}

// SetOverThreshold changes the over-utilization threshold; it takes
// effect from the next evaluation.
func (p *Policy) SetOverThreshold(over float64) error {
	if over <= 0 || over > 1 || over <= p.under {
		return fmt.Errorf("over threshold %f must be in (0, 1] and above the under threshold %f", over, p.under)
	}

	p.over = over
	return nil
}

func (p *Policy) SetUnderThreshold(under float64) error {
	if under < 0 || under >= p.over {
		return fmt.Errorf("under threshold %f must be below over threshold %f", under, p.over)
	}

	p.under = under
	return nil
}

// Evaluate inspects every host and issues migrations through migrate.
// Hosts whose last target search failed are skipped until their retry
// time passes.
func (p *Policy) Evaluate(hosts []*model.Host, now float64, migrate MigrateFn) {
	// Demand headed to each host from migrations issued during this
	// evaluation: destination CPU utilization only rises once a
	// migration finishes, so it has to be projected here.
	plannedMips := make(map[int]float64)

	for _, host := range hosts {
		if now < host.NextSearchTime {
			continue
		}

		if host.CpuUtilization > p.over {
			p.relieveOverloaded(host, hosts, now, plannedMips, migrate)
		} else if host.CpuUtilization < p.under && len(host.Vms) > 0 {
			p.consolidateUnderloaded(host, hosts, now, plannedMips, migrate)
		}
	}
}

// SelectHostForPlacement picks a host for a new VM, subject to the
// placement not pushing the host over the current over-threshold.
// It returns nil when no host qualifies.
func (p *Policy) SelectHostForPlacement(vm *model.Vm, hosts []*model.Host) *model.Host {
	candidates := make([]*model.Host, 0, len(hosts))
	for _, host := range hosts {
		if p.projectedUtilization(host, vm, 0) > p.over {
			continue
		}
		candidates = append(candidates, host)
	}

	return p.hostSelection.SelectHostForMigration(vm, candidates)
}

func (p *Policy) relieveOverloaded(host *model.Host, hosts []*model.Host, now float64, plannedMips map[int]float64, migrate MigrateFn) {
	vm := p.vmSelection.SelectVmToMigrate(host)
	if vm == nil {
		return
	}

	candidates := p.migrationCandidates(vm, host, hosts, plannedMips, nil)
	dest := p.hostSelection.SelectHostForMigration(vm, candidates)
	if dest == nil {
		p.deferSearch(host, now, "no destination for overloaded host")
		return
	}

	log.Info().Msgf(
		"host %d over threshold (%.2f > %.2f), migrating vm %d to host %d",
		host.Id, host.CpuUtilization, p.over, vm.Id, dest.Id,
	)

	if err := migrate(vm, host, dest); err != nil {
		log.Err(err).Msgf("could not start migration of vm %d", vm.Id)
		return
	}

	plannedMips[dest.Id] += p.vmDemand(dest, vm)
}

// consolidateUnderloaded tries to evacuate every resident VM so the
// host can be powered down. Placement is all-or-nothing: the whole
// evacuation is planned against cloned capacity first and only issued
// if every VM found a destination.
func (p *Policy) consolidateUnderloaded(host *model.Host, hosts []*model.Host, now float64, plannedMips map[int]float64, migrate MigrateFn) {
	for _, vm := range host.Vms {
		if vm.MigrationState != model.NOT_MIGRATING {
			return
		}
	}

	vms := append([]*model.Vm(nil), host.Vms...)
	sort.Slice(vms, func(i, j int) bool { return vms[i].Id < vms[j].Id })

	type assignment struct {
		vm   *model.Vm
		dest *model.Host
	}

	plannedFree := make(map[int]*mat.VecDense)
	extraMips := make(map[int]float64)
	plan := make([]assignment, 0, len(vms))

	for _, vm := range vms {
		candidates := p.migrationCandidates(vm, host, hosts, plannedMips, func(dest *model.Host) bool {
			free, ok := plannedFree[dest.Id]
			if !ok {
				free = dest.FreeResources()
				plannedFree[dest.Id] = free
			}
			if extraMips[dest.Id] > 0 && p.projectedUtilization(dest, vm, plannedMips[dest.Id]+extraMips[dest.Id]) > p.over {
				return false
			}

			return utils.LEThan(vm.Resources, free)
		})

		dest := p.hostSelection.SelectHostForMigration(vm, candidates)
		if dest == nil {
			p.deferSearch(host, now, "consolidation could not place every vm")
			return
		}

		plan = append(plan, assignment{vm: vm, dest: dest})
		utils.SSubVec(plannedFree[dest.Id], vm.Resources)
		extraMips[dest.Id] += p.vmDemand(dest, vm)
	}

	log.Info().Msgf(
		"host %d under threshold (%.2f < %.2f), evacuating %d vms for consolidation",
		host.Id, host.CpuUtilization, p.under, len(plan),
	)

	for _, a := range plan {
		if err := migrate(a.vm, host, a.dest); err != nil {
			log.Err(err).Msgf("could not start consolidation migration of vm %d", a.vm.Id)
			return
		}

		plannedMips[a.dest.Id] += p.vmDemand(a.dest, a.vm)
	}

	statistics.Change("consolidations", 1)
}

// migrationCandidates filters hosts for a migration of vm off source:
// non-source hosts that are not already overloaded and would stay at or
// under the over-threshold after admitting the VM. An optional extra
// predicate narrows the set further.
func (p *Policy) migrationCandidates(vm *model.Vm, source *model.Host, hosts []*model.Host, plannedMips map[int]float64, keep func(*model.Host) bool) []*model.Host {
	candidates := make([]*model.Host, 0, len(hosts))
	for _, host := range hosts {
		if host.Id == source.Id {
			continue
		}
		if host.CpuUtilization > p.over {
			continue
		}
		if p.projectedUtilization(host, vm, plannedMips[host.Id]) > p.over {
			continue
		}
		if keep != nil && !keep(host) {
			continue
		}

		candidates = append(candidates, host)
	}

	return candidates
}

func (p *Policy) deferSearch(host *model.Host, now float64, reason string) {
	host.NextSearchTime = now + p.hostSearchRetryDelay
	statistics.Change("deferred searches", 1)

	log.Info().Msgf(
		"%s, host %d search deferred until %.2f",
		reason, host.Id, host.NextSearchTime,
	)
}

func (p *Policy) projectedUtilization(host *model.Host, vm *model.Vm, extraMips float64) float64 {
	totalMips := host.TotalMips()
	if totalMips <= 0 {
		return 1
	}

	allocated := host.CpuUtilization*totalMips + extraMips + p.vmDemand(host, vm)
	return allocated / totalMips
}

func (p *Policy) vmDemand(host *model.Host, vm *model.Vm) float64 {
	return host.RequestedMips(vm) * vm.CpuModel.Utilization()
}
