package market

import (
	"math"

	"adversim/internal/rng"
)

// minValue is the hard floor on the latent value. It guarantees positive
// prices and keeps the informed trader's edge computation well-defined.
const minValue = 0.01

// ValueProcess advances the latent "true value" by geometric jump-diffusion:
// a Gaussian increment plus an occasional fixed-size jump with a fair-coin
// sign. The generator is shared with the rest of the simulation, and the
// draw order per step (diffusion, jump, sign) is fixed.
type ValueProcess struct {
	rng        *rng.Rand
	value      float64
	volatility float64
	jumpProb   float64
	jumpSize   float64
}

func NewValueProcess(r *rng.Rand, initial, volatility, jumpProb, jumpSize float64) *ValueProcess {
	return &ValueProcess{
		rng:        r,
		value:      initial,
		volatility: volatility,
		jumpProb:   jumpProb,
		jumpSize:   jumpSize,
	}
}

// Value returns the current latent value.
func (p *ValueProcess) Value() float64 {
	return p.value
}

// Step advances the process once and reports whether a jump fired.
func (p *ValueProcess) Step() (float64, bool) {
	d := p.rng.Normal(0, p.volatility)

	j := 0.0
	jumped := false
	if p.rng.Bool(p.jumpProb) {
		jumped = true
		if p.rng.Bool(0.5) {
			j = p.jumpSize
		} else {
			j = -p.jumpSize
		}
	}

	p.value = math.Max(minValue, p.value*(1+d+j))
	return p.value, jumped
}
