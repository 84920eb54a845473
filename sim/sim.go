package sim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppmaniotis/cloudsim/internal/broker"
	"github.com/ppmaniotis/cloudsim/internal/core"
	"github.com/ppmaniotis/cloudsim/internal/migration"
	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/internal/model/testing_tool"
	"github.com/ppmaniotis/cloudsim/internal/policy"
	"github.com/ppmaniotis/cloudsim/internal/scheduler"
	"github.com/ppmaniotis/cloudsim/logging"
	"github.com/ppmaniotis/cloudsim/statistics"
)

// Frame injects VM arrivals and departures at one simulated instant.
type Frame struct {
	At         float64  `json:"at"`
	NewVms     []string `json:"new_vms"`
	DeletedVms []string `json:"delete_vms"`
}

var report struct {
	Migrations int       `json:"migrations"`
	MeanCpu    []float64 `json:"mean_cpu"`
	MaxCpu     []float64 `json:"max_cpu"`
}

var log = logging.Get()

var (
	builder    *testing_tool.Builder
	datacenter *broker.Datacenter
	simulation *core.Simulation
	createdVms map[string][]*model.Vm
)

func setUpDatacenter() {
	builder = testing_tool.New()
	builder.ImportVmDescs([]*testing_tool.VmDesc{
		{Name: "A", Pes: 2, Mips: 1000, Ram: 2000, Bw: 1000, Storage: 4000, CpuUsage: 0.8},
		{Name: "B", Pes: 2, Mips: 1000, Ram: 2000, Bw: 1000, Storage: 4000, CpuUsage: 0.5},
		{Name: "C", Pes: 1, Mips: 1000, Ram: 1000, Bw: 500, Storage: 2000, CpuUsage: 0.3},
	})

	hosts := builder.GetHosts([]*testing_tool.HostDesc{
		{Pes: 4, Mips: 1000, Ram: 15000, Bw: 16000, Storage: 1000000},
		{Pes: 5, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 1000000},
		{Pes: 5, Mips: 1000, Ram: 16000, Bw: 16000, Storage: 1000000},
	})

	pol, err := policy.New(0.7, 0.1, 10, nil, nil)
	if err != nil {
		panic(err)
	}

	simulation = core.NewSimulation(1)
	executor := migration.NewExecutor(simulation, migration.DEFAULT_BANDWIDTH_PERCENT)
	datacenter = broker.NewDatacenter(simulation, hosts, pol, scheduler.NewTimeShared(), executor)
	createdVms = make(map[string][]*model.Vm)
}

func scheduleFrames(frames []*Frame) {
	for _, frame := range frames {
		for _, name := range frame.NewVms {
			vm := builder.GetVm(name)
			createdVms[name] = append(createdVms[name], vm)

			if err := datacenter.SubmitVm(vm, frame.At); err != nil {
				panic(err)
			}
		}

		for _, name := range frame.DeletedVms {
			vms := createdVms[name]
			if len(vms) == 0 {
				panic(fmt.Sprintf("no vm of desc %s left to delete", name))
			}
			vm := vms[0]
			createdVms[name] = vms[1:]

			if err := datacenter.RequestDestroy(vm, frame.At); err != nil {
				panic(err)
			}
		}
	}
}

// Start replays a scenario file against a fixed three-host datacenter
// and writes a summary report next to it.
func Start(scenarioPath string) {
	statistics.Init()

	content, err := os.ReadFile(scenarioPath)
	if err != nil {
		panic(err)
	}

	var frames []*Frame
	if err := json.Unmarshal(content, &frames); err != nil {
		panic(err)
	}

	setUpDatacenter()
	scheduleFrames(frames)

	log.Info().Msgf("replaying %d frames", len(frames))
	simulation.Run()

	report.Migrations = statistics.Get("migrations")
	for _, host := range datacenter.Hosts {
		summary := broker.HostUtilizationSummary(host)
		report.MeanCpu = append(report.MeanCpu, summary.MeanCpu)
		report.MaxCpu = append(report.MaxCpu, summary.MaxCpu)
	}

	for ind := range report.MeanCpu {
		fmt.Printf("%f, %f\n", report.MeanCpu[ind], report.MaxCpu[ind])
	}

	content, _ = json.MarshalIndent(report, "", " ")
	_ = os.WriteFile("./sim/report.json", content, 0644)
}
