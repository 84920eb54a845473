package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ppmaniotis/cloudsim/internal/broker"
	"github.com/ppmaniotis/cloudsim/internal/config"
	"github.com/ppmaniotis/cloudsim/internal/core"
	"github.com/ppmaniotis/cloudsim/internal/gui"
	"github.com/ppmaniotis/cloudsim/internal/migration"
	"github.com/ppmaniotis/cloudsim/internal/model"
	"github.com/ppmaniotis/cloudsim/internal/policy"
	"github.com/ppmaniotis/cloudsim/internal/scheduler"
	"github.com/ppmaniotis/cloudsim/logging"
	"github.com/ppmaniotis/cloudsim/sim"
	"github.com/ppmaniotis/cloudsim/statistics"
	"gopkg.in/yaml.v2"
)

var log = logging.Get()

// consoleReporter prints migration progress the way the final report
// reads: which VM moved where and what each end allocated at the time.
type consoleReporter struct {
	broker.BaseListener
}

func (consoleReporter) OnMigrationStart(info broker.EventInfo) {
	fmt.Printf("# %.2f: %s started migrating from %s to %s\n",
		info.Time, info.Vm, info.Source, info.Dest)
	showHostAllocatedMips(info.Time, info.Source)
	showHostAllocatedMips(info.Time, info.Dest)
}

func (consoleReporter) OnPlacementFailed(info broker.EventInfo) {
	fmt.Printf("# %.2f: no host can admit %s\n", info.Time, info.Vm)
}

func (consoleReporter) OnMigrationFinish(info broker.EventInfo) {
	fmt.Printf("# %.2f: %s finished migrating to %s\n",
		info.Time, info.Vm, info.Dest)
	showHostAllocatedMips(info.Time, info.Source)
	showHostAllocatedMips(info.Time, info.Dest)
}

func showHostAllocatedMips(time float64, host *model.Host) {
	fmt.Printf("\t%.2f: %s allocated %.2f MIPS from %.2f total capacity\n",
		time, host, host.CpuUtilization*host.TotalMips(), host.TotalMips())
}

func buildCpuModel(spec config.VmSpec) model.UtilizationModel {
	um := model.NewUtilizationModelDynamic(spec.InitialCpuUsage, spec.MaxCpuUsage)
	if spec.CpuIncrement > 0 {
		increment := spec.CpuIncrement
		um.SetUpdateFn(func(elapsed, current float64) float64 {
			return current + elapsed*increment
		})
	}

	return um
}

func main() {
	configFilePath := flag.String("config_file", "", "Path to config file")
	scenarioPath := flag.String("scenario", "", "Path to a scenario file to replay instead")
	flag.Parse()

	if *scenarioPath != "" {
		sim.Start(*scenarioPath)
		return
	}

	yamlFile, err := os.ReadFile(*configFilePath)
	if err != nil {
		log.Err(err).Msgf("could not load config")
		os.Exit(1)
	}

	var cfg config.SimulationConfig
	if err := yaml.UnmarshalStrict(yamlFile, &cfg); err != nil {
		log.Err(err).Msgf("could not load config")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Err(err).Msg("invalid config")
		os.Exit(1)
	}

	statistics.Init()
	statistics.Set("hosts", len(cfg.Hosts))
	statistics.Set("submitted vms", len(cfg.Vms))

	hosts := make([]*model.Host, 0, len(cfg.Hosts))
	for ind, spec := range cfg.Hosts {
		host := model.NewHost(ind, spec.Pes, spec.Mips, spec.Ram, spec.Bw, spec.Storage)
		host.HistoryEnabled = cfg.RecordHostHistory
		hosts = append(hosts, host)
	}

	// The policy starts with the inflated placement threshold when a
	// grace window is configured, then tightens it once the initial
	// batch is placed.
	over := cfg.Policy.OverThreshold
	if cfg.Policy.PlacementThreshold > 0 {
		over = cfg.Policy.PlacementThreshold
	}

	pol, err := policy.New(over, cfg.Policy.UnderThreshold, cfg.Policy.HostSearchRetryDelay, nil, nil)
	if err != nil {
		log.Err(err).Msg("could not build migration policy")
		os.Exit(1)
	}

	simulation := core.NewSimulation(cfg.SchedulingInterval)
	executor := migration.NewExecutor(simulation, cfg.BandwidthPercentForMigration)
	datacenter := broker.NewDatacenter(simulation, hosts, pol, scheduler.NewTimeShared(), executor)

	datacenter.AddListener(consoleReporter{})

	for ind, spec := range cfg.Vms {
		vm := model.NewVm(ind, spec.Pes, spec.Mips, spec.Ram, spec.Bw, spec.Storage, buildCpuModel(spec))
		vm.Cloudlet = model.NewCloudlet(ind, spec.CloudletLength)

		if err := datacenter.SubmitVm(vm, 0); err != nil {
			log.Err(err).Msgf("could not submit %s", vm)
			os.Exit(1)
		}
	}

	if cfg.Policy.PlacementThreshold > 0 {
		datacenter.SetOnAllVmsCreated(func(now float64) {
			if err := pol.SetOverThreshold(cfg.Policy.OverThreshold); err != nil {
				log.Err(err).Msg("could not tighten over threshold")
				return
			}
			log.Info().Msgf("all vms placed at %.2f, over threshold tightened to %.2f", now, cfg.Policy.OverThreshold)
		})
	}

	if cfg.GuiPort > 0 {
		bridge := broker.NewBridge()
		datacenter.ServeBridge(bridge)
		gui.SetUp(bridge)
		go gui.Run(cfg.GuiPort)
	}

	simulation.Run()

	fmt.Println("\nFinished cloudlets:")
	for _, fc := range datacenter.FinishedCloudlets() {
		fmt.Printf("cloudlet %d on vm %d (last host %d) finished at %.2f\n",
			fc.Cloudlet.Id, fc.VmId, fc.HostId, fc.Finish)
	}

	if cfg.RecordHostHistory {
		fmt.Println("\nHost CPU usage history (allocated below requested means migration overhead):")
		for _, host := range hosts {
			summary := broker.HostUtilizationSummary(host)
			fmt.Printf("%s: %d samples, mean %.2f, max %.2f\n",
				host, summary.Samples, summary.MeanCpu, summary.MaxCpu)
		}
	}

	fmt.Println()
	fmt.Print(statistics.Display())
}
