package model

// UtilizationModel yields the fractional resource demand of a VM as a
// function of elapsed simulated time.
type UtilizationModel interface {
	// Evaluate returns the demand fraction at the given simulated
	// time. Evaluating twice at the same time returns the same value.
	Evaluate(now float64) float64

	// Utilization returns the fraction from the last evaluation
	// without advancing the model.
	Utilization() float64
}

// UpdateFn maps (elapsed simulated seconds, previous fraction) to the
// next fraction. The result is clamped to [0, max] by the model.
type UpdateFn func(elapsed, current float64) float64

type UtilizationModelDynamic struct {
	fraction float64
	max      float64
	lastTime float64
	started  bool
	updateFn UpdateFn
}

func NewUtilizationModelDynamic(initial, max float64) *UtilizationModelDynamic {
	if max <= 0 {
		max = 1
	}

	um := &UtilizationModelDynamic{max: max}
	um.fraction = um.clamp(initial)

	return um
}

// SetUpdateFn installs the increment function and returns the model for
// chaining. A model without an update function keeps its initial value.
func (um *UtilizationModelDynamic) SetUpdateFn(fn UpdateFn) *UtilizationModelDynamic {
	um.updateFn = fn
	return um
}

func (um *UtilizationModelDynamic) Evaluate(now float64) float64 {
	if !um.started {
		um.started = true
		um.lastTime = now

		return um.fraction
	}

	if now == um.lastTime {
		return um.fraction
	}

	if um.updateFn != nil {
		elapsed := now - um.lastTime
		um.fraction = um.clamp(um.updateFn(elapsed, um.fraction))
	}
	um.lastTime = now

	return um.fraction
}

func (um *UtilizationModelDynamic) Utilization() float64 {
	return um.fraction
}

func (um *UtilizationModelDynamic) MaxUtilization() float64 {
	return um.max
}

func (um *UtilizationModelDynamic) clamp(fraction float64) float64 {
	if fraction < 0 {
		return 0
	}
	if fraction > um.max {
		return um.max
	}

	return fraction
}

// UtilizationModelFull pins the demand at a constant fraction, used for
// resources held at fixed demand regardless of elapsed time.
type UtilizationModelFull struct {
	max float64
}

func NewUtilizationModelFull() *UtilizationModelFull {
	return &UtilizationModelFull{max: 1}
}

func (um *UtilizationModelFull) Evaluate(now float64) float64 {
	return um.max
}

func (um *UtilizationModelFull) Utilization() float64 {
	return um.max
}
