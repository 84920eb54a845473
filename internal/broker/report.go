package broker

import (
	"sort"

	"github.com/ppmaniotis/cloudsim/internal/model"
	"gonum.org/v1/gonum/stat"
)

// FinishedCloudlets returns the completed workloads ordered by
// (host id, vm id), ready for tabular rendering.
func (dc *Datacenter) FinishedCloudlets() []FinishedCloudlet {
	finished := append([]FinishedCloudlet(nil), dc.finished...)
	sort.Slice(finished, func(i, j int) bool {
		if finished[i].HostId != finished[j].HostId {
			return finished[i].HostId < finished[j].HostId
		}
		return finished[i].VmId < finished[j].VmId
	})

	return finished
}

// UtilizationSummary condenses a host's recorded state history.
type UtilizationSummary struct {
	Samples int
	MeanCpu float64
	MaxCpu  float64
}

func HostUtilizationSummary(host *model.Host) UtilizationSummary {
	history := host.History()
	if len(history) == 0 {
		return UtilizationSummary{}
	}

	values := make([]float64, len(history))
	max := 0.0
	for ind, entry := range history {
		values[ind] = entry.CpuUtilization
		if entry.CpuUtilization > max {
			max = entry.CpuUtilization
		}
	}

	return UtilizationSummary{
		Samples: len(history),
		MeanCpu: stat.Mean(values, nil),
		MaxCpu:  max,
	}
}
