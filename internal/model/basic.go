package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Indices of the scalar capacity vector carried by hosts and VMs.
const (
	RES_RAM = iota
	RES_BW
	RES_STORAGE

	RESOURCE_COUNT
)

type PeStatus int

const (
	PE_FREE PeStatus = iota
	PE_BUSY
)

// Pe is a single processing element of a host, with a MIPS-equivalent
// speed. A host owns its PEs exclusively.
type Pe struct {
	Id     int
	Mips   float64
	Status PeStatus
}

type MigrationState int

const (
	NOT_MIGRATING MigrationState = iota
	MIGRATING_OUT
	MIGRATING_IN
)

type Vm struct {
	Id   int
	Pes  int
	Mips float64

	// Resources holds requested (ram, bw, storage).
	Resources *mat.VecDense

	CpuModel UtilizationModel
	RamModel UtilizationModel
	BwModel  UtilizationModel

	Cloudlet *Cloudlet

	// Host is a non-owning back-reference; nil means the VM is not
	// placed or has been destroyed. During a migration the VM stays
	// resident on the source host until the migration finishes.
	Host           *Host
	MigrationState MigrationState

	// AllocatedMips is the share granted by the host scheduler at the
	// last recompute. RequestedMips is what the VM asked for then.
	AllocatedMips float64
	RequestedMips float64

	CreatedTime   float64
	DestroyedTime float64
}

func NewVm(id, pes int, mips, ram, bw, storage float64, cpuModel UtilizationModel) *Vm {
	return &Vm{
		Id:            id,
		Pes:           pes,
		Mips:          mips,
		Resources:     mat.NewVecDense(RESOURCE_COUNT, []float64{ram, bw, storage}),
		CpuModel:      cpuModel,
		RamModel:      NewUtilizationModelFull(),
		BwModel:       NewUtilizationModelFull(),
		CreatedTime:   -1,
		DestroyedTime: -1,
	}
}

func (vm *Vm) Ram() float64 {
	return vm.Resources.AtVec(RES_RAM)
}

func (vm *Vm) Bw() float64 {
	return vm.Resources.AtVec(RES_BW)
}

func (vm *Vm) Storage() float64 {
	return vm.Resources.AtVec(RES_STORAGE)
}

// MigrationReservation is the capacity held on a migration destination
// while the VM is still running on the source: its memory image and
// disk, but not bandwidth, which is only throttled.
func (vm *Vm) MigrationReservation() *mat.VecDense {
	return mat.NewVecDense(RESOURCE_COUNT, []float64{vm.Ram(), 0, vm.Storage()})
}

// CpuUtilization evaluates the VM's CPU demand fraction at the given
// simulated time.
func (vm *Vm) CpuUtilization(now float64) float64 {
	return vm.CpuModel.Evaluate(now)
}

// MigrationStateOn reports the migration state of the VM as seen from
// the given host: a migrating VM is MIGRATING_OUT on its source, where
// it stays resident for allocation purposes, and MIGRATING_IN on the
// destination holding its reservation.
func (vm *Vm) MigrationStateOn(host *Host) MigrationState {
	if vm.Host != nil && vm.Host.Id == host.Id {
		return vm.MigrationState
	}

	for _, incoming := range host.MigratingIn {
		if incoming.Id == vm.Id {
			return MIGRATING_IN
		}
	}

	return NOT_MIGRATING
}

func (vm *Vm) IsActive() bool {
	return vm.CreatedTime >= 0 && vm.DestroyedTime < 0
}

func (vm *Vm) String() string {
	return fmt.Sprintf("vm %d (%d PEs x %g MIPS)", vm.Id, vm.Pes, vm.Mips)
}
