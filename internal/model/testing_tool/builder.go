// Because it is a testing package, no errors are returned,
// all problems cause a panic.

package testing_tool

import (
	"fmt"

	"github.com/ppmaniotis/cloudsim/internal/model"
)

type HostDesc struct {
	Pes     int
	Mips    float64
	Ram     float64
	Bw      float64
	Storage float64
}

type VmDesc struct {
	Name    string
	Pes     int
	Mips    float64
	Ram     float64
	Bw      float64
	Storage float64

	// CpuUsage is the fixed CPU demand fraction of the VM's workload.
	CpuUsage float64

	// CloudletLength in MI; zero means effectively endless, for tests
	// that end the run themselves.
	CloudletLength float64
}

type Builder struct {
	vmDescs map[string]*VmDesc

	lastVmId       int
	lastHostId     int
	lastCloudletId int
}

func New() *Builder {
	return &Builder{
		vmDescs: make(map[string]*VmDesc),
	}
}

func (builder *Builder) ImportVmDescs(descs []*VmDesc) {
	for _, desc := range descs {
		builder.vmDescs[desc.Name] = desc
	}
}

func (builder *Builder) GetVm(name string) *model.Vm {
	desc, ok := builder.vmDescs[name]
	if !ok {
		panic(fmt.Sprintf("there is no vm desc named %s", name))
	}

	cpuModel := model.NewUtilizationModelDynamic(desc.CpuUsage, 1)

	vm := model.NewVm(builder.lastVmId, desc.Pes, desc.Mips, desc.Ram, desc.Bw, desc.Storage, cpuModel)
	builder.lastVmId += 1

	length := desc.CloudletLength
	if length <= 0 {
		length = 1e12
	}
	vm.Cloudlet = model.NewCloudlet(builder.lastCloudletId, length)
	builder.lastCloudletId += 1

	return vm
}

func (builder *Builder) GetVms(names []string) []*model.Vm {
	vms := make([]*model.Vm, 0, len(names))
	for _, name := range names {
		vms = append(vms, builder.GetVm(name))
	}

	return vms
}

func (builder *Builder) GetHost(desc *HostDesc) *model.Host {
	host := model.NewHost(builder.lastHostId, desc.Pes, desc.Mips, desc.Ram, desc.Bw, desc.Storage)
	host.HistoryEnabled = true
	builder.lastHostId += 1

	return host
}

func (builder *Builder) GetHosts(descs []*HostDesc) []*model.Host {
	hosts := make([]*model.Host, 0, len(descs))
	for _, desc := range descs {
		hosts = append(hosts, builder.GetHost(desc))
	}

	return hosts
}
