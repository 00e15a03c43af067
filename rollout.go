package adr

import (
	"math"
	"sort"

	"github.com/unixpickle/anyvec"
)

// A Rollout records the observations, actions, and
// rewards of one episode.
type Rollout struct {
	// Observations has one entry per time step, plus a
	// final entry for the observation seen after the
	// last action.
	Observations []anyvec.Vector

	// Actions has one entry per time step.
	Actions []anyvec.Vector

	// Rewards has one entry per time step.
	Rewards []float64
}

// Len returns the number of time steps.
func (r *Rollout) Len() int {
	return len(r.Actions)
}

// UndiscountedReturn sums the rewards.
func (r *Rollout) UndiscountedReturn() float64 {
	var sum float64
	for _, x := range r.Rewards {
		sum += x
	}
	return sum
}

// Convert rebuilds the rollout's numeric backing storage
// under a different vector creator.
func (r *Rollout) Convert(c anyvec.Creator) *Rollout {
	res := &Rollout{
		Observations: make([]anyvec.Vector, len(r.Observations)),
		Actions:      make([]anyvec.Vector, len(r.Actions)),
		Rewards:      append([]float64{}, r.Rewards...),
	}
	for i, obs := range r.Observations {
		res.Observations[i] = convertVec(c, obs)
	}
	for i, act := range r.Actions {
		res.Actions[i] = convertVec(c, act)
	}
	return res
}

func convertVec(c anyvec.Creator, vec anyvec.Vector) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(vecToFloats(vec)))
}

// ConcatRollouts joins rollout batches into one batch,
// preserving episode boundaries so that the result can
// still be iterated per sub-rollout.
func ConcatRollouts(batches ...[]*Rollout) []*Rollout {
	var res []*Rollout
	for _, batch := range batches {
		res = append(res, batch...)
	}
	return res
}

// MeanReturn averages the undiscounted returns of a
// batch of rollouts.
func MeanReturn(rollouts []*Rollout) float64 {
	if len(rollouts) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rollouts {
		sum += r.UndiscountedReturn()
	}
	return sum / float64(len(rollouts))
}

func returnStats(rollouts []*Rollout) (mean, median, stddev float64) {
	if len(rollouts) == 0 {
		return
	}
	rets := make([]float64, len(rollouts))
	for i, r := range rollouts {
		rets[i] = r.UndiscountedReturn()
		mean += rets[i]
	}
	mean /= float64(len(rets))
	for _, x := range rets {
		stddev += (x - mean) * (x - mean)
	}
	stddev = math.Sqrt(stddev / float64(len(rets)))
	sort.Float64s(rets)
	if len(rets)%2 == 1 {
		median = rets[len(rets)/2]
	} else {
		median = (rets[len(rets)/2-1] + rets[len(rets)/2]) / 2
	}
	return
}

func meanLength(rollouts []*Rollout) float64 {
	if len(rollouts) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rollouts {
		sum += float64(r.Len())
	}
	return sum / float64(len(rollouts))
}
