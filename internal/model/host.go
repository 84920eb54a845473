package model

import (
	"fmt"

	"github.com/ppmaniotis/cloudsim/internal/utils"
	"github.com/ppmaniotis/cloudsim/logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.Get()

// HistoryEntry is one utilization sample of a host, recorded at every
// scheduler recompute when history recording is enabled.
type HistoryEntry struct {
	Time           float64
	CpuUtilization float64
	RamUtilization float64
}

type Host struct {
	Id  int
	Pes []*Pe

	// Resources holds total (ram, bw, storage); used tracks resident
	// VM requests and reserved tracks inbound migration holds.
	Resources *mat.VecDense
	used      *mat.VecDense
	reserved  *mat.VecDense

	Vms []*Vm

	// MigratingIn lists VMs whose migration to this host is underway:
	// their capacity is reserved here while they keep running on their
	// source host.
	MigratingIn []*Vm

	// CpuUtilization is the instantaneous fraction computed by the
	// host scheduler at the last recompute.
	CpuUtilization float64

	HistoryEnabled bool
	history        []HistoryEntry

	// NextSearchTime defers policy re-evaluation of this host after a
	// failed migration target search.
	NextSearchTime float64

	// ConsolidationCandidate marks a fully evacuated under-utilized
	// host, signaling power-down candidacy to external collaborators.
	ConsolidationCandidate bool
}

func NewHost(id, pes int, mips, ram, bw, storage float64) *Host {
	host := &Host{
		Id:        id,
		Resources: mat.NewVecDense(RESOURCE_COUNT, []float64{ram, bw, storage}),
		used:      utils.ZeroVec(RESOURCE_COUNT),
		reserved:  utils.ZeroVec(RESOURCE_COUNT),
	}

	for i := 0; i < pes; i++ {
		host.Pes = append(host.Pes, &Pe{Id: i, Mips: mips})
	}

	return host
}

func (host *Host) TotalMips() float64 {
	var total float64
	for _, pe := range host.Pes {
		total += pe.Mips
	}

	return total
}

func (host *Host) Ram() float64 {
	return host.Resources.AtVec(RES_RAM)
}

func (host *Host) Bw() float64 {
	return host.Resources.AtVec(RES_BW)
}

// FreeResources excludes both resident VM requests and capacity held
// for inbound migrations.
func (host *Host) FreeResources() *mat.VecDense {
	free := utils.SubVec(host.Resources, host.used)
	utils.SSubVec(free, host.reserved)

	return free
}

func (host *Host) UsedResources() *mat.VecDense {
	return utils.CloneVec(host.used)
}

// RequestedMips is the total MIPS the given VM asks from this host.
func (host *Host) RequestedMips(vm *Vm) float64 {
	return float64(vm.Pes) * vm.Mips
}

// CanAdmit reports whether the host has enough free PEs and scalar
// capacity for the VM.
func (host *Host) CanAdmit(vm *Vm) bool {
	if vm.Pes > len(host.Pes) {
		return false
	}

	return utils.LEThan(vm.Resources, host.FreeResources())
}

// AddVm places the VM on this host, rejecting placements that would
// overcommit physical capacity.
func (host *Host) AddVm(vm *Vm) error {
	if !host.CanAdmit(vm) {
		return fmt.Errorf(
			"not enough free capacity on host %d for vm %d, free %s, requested %s",
			host.Id, vm.Id, utils.ToString(host.FreeResources()), utils.ToString(vm.Resources),
		)
	}

	host.attach(vm)

	return nil
}

func (host *Host) attach(vm *Vm) {
	host.Vms = append(host.Vms, vm)
	utils.SAddVec(host.used, vm.Resources)
	vm.Host = host
	host.ConsolidationCandidate = false

	log.Debug().Msgf("placed vm %d on host %d", vm.Id, host.Id)
}

// RemoveVm detaches the VM and releases its capacity. It reports
// whether the VM was resident here.
func (host *Host) RemoveVm(vm *Vm) bool {
	vmInd := -1
	for ind, resident := range host.Vms {
		if resident.Id == vm.Id {
			vmInd = ind
			break
		}
	}

	if vmInd == -1 {
		return false
	}

	host.Vms[vmInd] = host.Vms[len(host.Vms)-1]
	host.Vms = host.Vms[:len(host.Vms)-1]
	utils.SSubVec(host.used, vm.Resources)
	vm.Host = nil

	log.Debug().Msgf("removed vm %d from host %d", vm.Id, host.Id)

	return true
}

// ReserveMigration holds the VM's memory image and disk on this host
// while the VM keeps running on its source.
func (host *Host) ReserveMigration(vm *Vm) error {
	if !host.CanAdmit(vm) {
		return fmt.Errorf(
			"cannot reserve migration capacity on host %d for vm %d",
			host.Id, vm.Id,
		)
	}

	utils.SAddVec(host.reserved, vm.MigrationReservation())
	host.MigratingIn = append(host.MigratingIn, vm)

	return nil
}

// ReleaseReservation gives back a migration hold, either on completion
// or when the VM is destroyed mid-migration.
func (host *Host) ReleaseReservation(vm *Vm) {
	utils.SSubVec(host.reserved, vm.MigrationReservation())

	for ind, incoming := range host.MigratingIn {
		if incoming.Id == vm.Id {
			host.MigratingIn[ind] = host.MigratingIn[len(host.MigratingIn)-1]
			host.MigratingIn = host.MigratingIn[:len(host.MigratingIn)-1]
			break
		}
	}
}

// CommitMigration converts the reservation of an inbound VM into a
// normal residency. It cannot fail: the admission check ran when the
// reservation was taken, and bandwidth, the only dimension a
// reservation leaves open, is throttled rather than guaranteed, so a
// destination that lost free bandwidth mid-migration still attaches
// the VM.
func (host *Host) CommitMigration(vm *Vm) {
	host.ReleaseReservation(vm)
	host.attach(vm)
}

// RecordHistory appends a utilization sample. A sample at the same time
// as the last one replaces it, so recomputes within one event instant
// do not duplicate entries.
func (host *Host) RecordHistory(entry HistoryEntry) {
	if !host.HistoryEnabled {
		return
	}

	if n := len(host.history); n > 0 && host.history[n-1].Time == entry.Time {
		host.history[n-1] = entry
		return
	}

	host.history = append(host.history, entry)
}

// History exposes the recorded samples as a read-only ordered sequence.
func (host *Host) History() []HistoryEntry {
	return host.history
}

func (host *Host) String() string {
	return fmt.Sprintf("host %d (%d PEs x %g MIPS)", host.Id, len(host.Pes), host.Pes[0].Mips)
}
