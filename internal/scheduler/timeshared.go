package scheduler

import (
	"math"

	"github.com/ppmaniotis/cloudsim/internal/model"
)

// MIGRATION_OVERHEAD caps the CPU allocation of a migrating VM at 90%
// of its otherwise-computed share, modeling hypervisor migration cost.
const MIGRATION_OVERHEAD = 0.9

// INBOUND_SHARE is the fraction of an incoming VM's requested MIPS the
// destination host spends receiving its memory image.
const INBOUND_SHARE = 0.1

// Scheduler multiplexes a host's PEs among its resident VMs.
type Scheduler interface {
	// Recompute reassigns MIPS shares at the given simulated time and
	// returns the host's instantaneous CPU utilization.
	Recompute(host *model.Host, now float64) float64
}

// TimeShared grants every VM its full requested share while the host
// has spare MIPS; when the total request exceeds capacity, every share
// is scaled by the same factor, so all VMs degrade equally in relative
// terms and none starves.
type TimeShared struct{}

func NewTimeShared() *TimeShared {
	return &TimeShared{}
}

func (ts *TimeShared) Recompute(host *model.Host, now float64) float64 {
	totalMips := host.TotalMips()

	requests := make([]float64, len(host.Vms))
	var totalRequested float64
	for ind, vm := range host.Vms {
		requests[ind] = host.RequestedMips(vm) * vm.CpuUtilization(now)
		totalRequested += requests[ind]
	}

	// The receiving side of an in-flight migration also costs CPU.
	var inboundRequested float64
	for _, vm := range host.MigratingIn {
		inboundRequested += host.RequestedMips(vm) * INBOUND_SHARE
	}
	totalRequested += inboundRequested

	scale := 1.0
	if totalRequested > totalMips {
		scale = totalMips / totalRequested
	}

	totalAllocated := inboundRequested * scale
	for ind, vm := range host.Vms {
		allocated := requests[ind] * scale
		if vm.MigrationState != model.NOT_MIGRATING {
			allocated *= MIGRATION_OVERHEAD
		}

		vm.RequestedMips = requests[ind]
		vm.AllocatedMips = allocated
		totalAllocated += allocated
	}

	utilization := 0.0
	if totalMips > 0 {
		utilization = totalAllocated / totalMips
	}
	host.CpuUtilization = utilization

	markBusyPes(host, totalAllocated)
	host.RecordHistory(model.HistoryEntry{
		Time:           now,
		CpuUtilization: utilization,
		RamUtilization: ramUtilization(host, now),
	})

	return utilization
}

func markBusyPes(host *model.Host, totalAllocated float64) {
	busy := 0
	if len(host.Pes) > 0 && host.Pes[0].Mips > 0 {
		busy = int(math.Ceil(totalAllocated / host.Pes[0].Mips))
		if busy > len(host.Pes) {
			busy = len(host.Pes)
		}
	}

	for ind, pe := range host.Pes {
		if ind < busy {
			pe.Status = model.PE_BUSY
		} else {
			pe.Status = model.PE_FREE
		}
	}
}

func ramUtilization(host *model.Host, now float64) float64 {
	if host.Ram() <= 0 {
		return 0
	}

	var used float64
	for _, vm := range host.Vms {
		used += vm.Ram() * vm.RamModel.Evaluate(now)
	}

	return used / host.Ram()
}
