package config

import "fmt"

// HostSpec describes one physical host of the simulated datacenter.
type HostSpec struct {
	Pes     int     `yaml:"pes"`
	Mips    float64 `yaml:"mips"`
	Ram     float64 `yaml:"ram"`     // MB
	Bw      float64 `yaml:"bw"`      // Mb/s
	Storage float64 `yaml:"storage"` // MB
}

// VmSpec describes one virtual machine and the workload bound to it.
type VmSpec struct {
	Pes     int     `yaml:"pes"`
	Mips    float64 `yaml:"mips"`
	Ram     float64 `yaml:"ram"`
	Bw      float64 `yaml:"bw"`
	Storage float64 `yaml:"storage"`

	CloudletLength  float64 `yaml:"cloudlet_length"` // MI
	InitialCpuUsage float64 `yaml:"initial_cpu_usage"`
	MaxCpuUsage     float64 `yaml:"max_cpu_usage"`
	CpuIncrement    float64 `yaml:"cpu_increment_per_second"`
}

// PolicyConfig holds the migration policy knobs.
type PolicyConfig struct {
	OverThreshold  float64 `yaml:"over_utilization_threshold"`
	UnderThreshold float64 `yaml:"under_utilization_threshold"`

	// PlacementThreshold is the inflated over-threshold used while the
	// initial VM batch is being placed. Zero means no grace window.
	PlacementThreshold float64 `yaml:"placement_threshold"`

	HostSearchRetryDelay float64 `yaml:"host_search_retry_delay"`
}

type SimulationConfig struct {
	Name string `yaml:"name"`

	SchedulingInterval          float64 `yaml:"scheduling_interval"`
	BandwidthPercentForMigration float64 `yaml:"bandwidth_percent_for_migration"`
	RecordHostHistory           bool    `yaml:"record_host_history"`
	GuiPort                     int     `yaml:"gui_port"`

	Policy PolicyConfig `yaml:"policy"`
	Hosts  []HostSpec   `yaml:"hosts"`
	Vms    []VmSpec     `yaml:"vms"`
}

// Validate rejects broken topologies before the clock starts.
func (c *SimulationConfig) Validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("no hosts configured")
	}
	if len(c.Vms) == 0 {
		return fmt.Errorf("no vms configured")
	}

	for i, h := range c.Hosts {
		if h.Pes <= 0 || h.Mips <= 0 {
			return fmt.Errorf("host %d must have positive pes and mips", i)
		}
		if h.Ram <= 0 || h.Bw <= 0 || h.Storage <= 0 {
			return fmt.Errorf("host %d must have positive ram, bw and storage", i)
		}
	}

	for i, v := range c.Vms {
		if v.Pes <= 0 || v.Mips <= 0 {
			return fmt.Errorf("vm %d must have positive pes and mips", i)
		}
		if v.Ram <= 0 || v.Bw <= 0 || v.Storage <= 0 {
			return fmt.Errorf("vm %d must have positive ram, bw and storage", i)
		}
		if v.CloudletLength <= 0 {
			return fmt.Errorf("vm %d must have a positive cloudlet length", i)
		}
		if v.InitialCpuUsage < 0 || v.InitialCpuUsage > 1 {
			return fmt.Errorf("vm %d initial cpu usage must be in [0, 1]", i)
		}
	}

	p := c.Policy
	if p.OverThreshold <= 0 || p.OverThreshold > 1 {
		return fmt.Errorf("over utilization threshold must be in (0, 1]")
	}
	if p.UnderThreshold < 0 || p.UnderThreshold >= p.OverThreshold {
		return fmt.Errorf("under threshold %f must be below over threshold %f", p.UnderThreshold, p.OverThreshold)
	}
	if p.HostSearchRetryDelay < 0 {
		return fmt.Errorf("host search retry delay must be non-negative")
	}

	if c.BandwidthPercentForMigration <= 0 || c.BandwidthPercentForMigration > 1 {
		return fmt.Errorf("bandwidth percent for migration must be in (0, 1]")
	}

	return nil
}
