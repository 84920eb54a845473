package model

// Cloudlet is the workload bound to a VM. Only its CPU demand matters
// to the allocation core: it executes at whatever MIPS share the host
// scheduler grants its VM.
type Cloudlet struct {
	Id         int
	Length     float64 // MI
	FileSize   float64
	OutputSize float64

	executed   float64
	FinishTime float64
}

func NewCloudlet(id int, length float64) *Cloudlet {
	return &Cloudlet{
		Id:         id,
		Length:     length,
		FinishTime: -1,
	}
}

// Advance executes the cloudlet for elapsed seconds at the given MIPS
// share and reports whether it finished.
func (c *Cloudlet) Advance(allocatedMips, elapsed float64) bool {
	if c.Finished() {
		return true
	}

	c.executed += allocatedMips * elapsed
	if c.executed >= c.Length {
		c.executed = c.Length
	}

	return c.Finished()
}

func (c *Cloudlet) Finished() bool {
	// Tolerates float drift when execution lands exactly on the
	// predicted completion instant.
	return c.Length-c.executed <= 1e-9
}

func (c *Cloudlet) RemainingLength() float64 {
	return c.Length - c.executed
}

// EstimateFinish predicts the absolute finish time assuming the current
// MIPS share holds. It returns ok=false while the share is zero.
func (c *Cloudlet) EstimateFinish(now, allocatedMips float64) (float64, bool) {
	if allocatedMips <= 0 {
		return 0, false
	}

	return now + c.RemainingLength()/allocatedMips, true
}
