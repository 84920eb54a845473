package policy

import (
	"sort"

	"github.com/ppmaniotis/cloudsim/internal/model"
)

// VmSelection picks the VM to evacuate from an overloaded host.
// Returning nil means no candidate exists; absence is an expected,
// frequent outcome, not a fault, so callers check for nil instead of
// an error.
type VmSelection interface {
	SelectVmToMigrate(host *model.Host) *model.Vm
}

// HostSelection picks a migration destination among candidate hosts
// already filtered by the policy. Returning nil means no host fits.
type HostSelection interface {
	SelectHostForMigration(vm *model.Vm, candidates []*model.Host) *model.Host
}

// MinimumUtilization selects the resident VM with the lowest current
// CPU utilization, which relieves pressure at the lowest migration
// cost per unit moved. Ties break on the lower VM id.
type MinimumUtilization struct{}

func (MinimumUtilization) SelectVmToMigrate(host *model.Host) *model.Vm {
	var chosen *model.Vm
	for _, vm := range host.Vms {
		if vm.MigrationState != model.NOT_MIGRATING {
			continue
		}

		if chosen == nil {
			chosen = vm
			continue
		}

		a := vm.CpuModel.Utilization()
		b := chosen.CpuModel.Utilization()
		if a < b || (a == b && vm.Id < chosen.Id) {
			chosen = vm
		}
	}

	return chosen
}

// BestFit selects the candidate with the smallest sufficient spare MIPS
// capacity, breaking ties on (spare ascending, host id ascending).
type BestFit struct{}

func (BestFit) SelectHostForMigration(vm *model.Vm, candidates []*model.Host) *model.Host {
	fitting := make([]*model.Host, 0, len(candidates))
	for _, host := range candidates {
		if host.CanAdmit(vm) {
			fitting = append(fitting, host)
		}
	}

	if len(fitting) == 0 {
		return nil
	}

	sort.Slice(fitting, func(i, j int) bool {
		a := spareMips(fitting[i])
		b := spareMips(fitting[j])
		if a != b {
			return a < b
		}

		return fitting[i].Id < fitting[j].Id
	})

	return fitting[0]
}

func spareMips(host *model.Host) float64 {
	return host.TotalMips() * (1 - host.CpuUtilization)
}
