package experiments

import (
	"fmt"
	"path/filepath"

	"github.com/unixpickle/adr"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyrl"
	"github.com/unixpickle/anyrl/anypg"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A PGSubrtn is a minimal policy-gradient subroutine
// implementing adr.Algorithm. It optimizes a Gaussian
// MLP policy with normalized total-reward advantages.
type PGSubrtn struct {
	// Creator is the anyvec.Creator behind the policy.
	Creator anyvec.Creator

	// Net maps observations to Gaussian action
	// parameters.
	Net anynet.Net

	// StepSize is the learning rate.
	//
	// If 0, a default of 1e-3 is used.
	StepSize float64

	// SaveDir is where snapshots go. If empty, snapshots
	// are skipped.
	SaveDir string

	adam        *anysgd.Adam
	sampleCount int
	bestMetric  float64
	haveBest    bool
}

// NewPGSubrtn creates a subroutine for the environment
// with a single hidden layer of the given size.
func NewPGSubrtn(c anyvec.Creator, spec *adr.EnvSpec, hiddenSize int) *PGSubrtn {
	obsDim := spec.ObsSpace.Dim()
	actDim := spec.ActSpace.Dim()
	return &PGSubrtn{
		Creator: c,
		Net: anynet.Net{
			anynet.NewFC(c, obsDim, hiddenSize),
			anynet.Tanh,
			anynet.NewFCZero(c, hiddenSize, actDim*2),
		},
	}
}

// Policy returns the control policy being optimized.
func (p *PGSubrtn) Policy() adr.Policy {
	return &netPolicy{creator: p.Creator, net: p.Net}
}

// SampleCount counts the environment steps consumed by
// Update so far.
func (p *PGSubrtn) SampleCount() int {
	return p.sampleCount
}

// Update performs one policy-gradient step on the batch.
func (p *PGSubrtn) Update(rollouts []*adr.Rollout) error {
	if len(rollouts) == 0 {
		return nil
	}
	rewards := make(anyrl.Rewards, len(rollouts))
	for i, ro := range rollouts {
		rewards[i] = append([]float64{}, ro.Rewards...)
		p.sampleCount += ro.Len()
	}
	// TotalJudger only consults the rewards of the set.
	judger := &anypg.TotalJudger{Normalize: true}
	advantages := judger.JudgeActions(&anyrl.RolloutSet{Rewards: rewards})

	vars := anynet.AllParameters(p.Net)
	grad := anydiff.NewGrad(vars...)
	for i, ro := range rollouts {
		for t := 0; t < ro.Len(); t++ {
			obs := convertVec(p.Creator, ro.Observations[t])
			act := convertVec(p.Creator, ro.Actions[t])
			out := p.Net.Apply(anydiff.NewConst(obs), 1)
			logProb := anyrl.Gaussian{}.LogProb(out, act, 1)
			obj := anydiff.Scale(logProb, p.Creator.MakeNumeric(advantages[i][t]))
			obj.Propagate(anyvec.Ones(p.Creator, 1), grad)
		}
	}

	if p.adam == nil {
		p.adam = &anysgd.Adam{}
	}
	step := p.adam.Transform(grad)
	step.Scale(p.Creator.MakeNumeric(p.stepSize()))
	step.AddToVars()
	return nil
}

// MakeSnapshot saves the policy according to the mode:
// "best" persists only on metric improvement.
func (p *PGSubrtn) MakeSnapshot(mode string, metric float64) error {
	if mode == "best" {
		if p.haveBest && metric <= p.bestMetric {
			return nil
		}
		p.bestMetric = metric
		p.haveBest = true
	}
	return p.SaveSnapshot(nil)
}

// SaveSnapshot persists the policy weights.
func (p *PGSubrtn) SaveSnapshot(meta map[string]string) error {
	if p.SaveDir == "" {
		return nil
	}
	name := "subrtn_policy"
	if meta != nil {
		name = fmt.Sprintf("%s_%s", meta["prefix"], name)
	}
	path := filepath.Join(p.SaveDir, name)
	return essentials.AddCtx("save subrtn", serializer.SaveAny(path, p.Net))
}

func (p *PGSubrtn) stepSize() float64 {
	if p.StepSize == 0 {
		return 1e-3
	}
	return p.StepSize
}

type netPolicy struct {
	creator anyvec.Creator
	net     anynet.Net
}

func (n *netPolicy) Act(obs anyvec.Vector) (anyvec.Vector, error) {
	in := convertVec(n.creator, obs)
	params := n.net.Apply(anydiff.NewConst(in), 1).Output()
	return anyrl.Gaussian{}.Sample(params, 1), nil
}

func convertVec(c anyvec.Creator, vec anyvec.Vector) anyvec.Vector {
	if vec.Creator() == c {
		return vec
	}
	return c.MakeVectorData(c.MakeNumericList(toFloats(vec.Data())))
}
