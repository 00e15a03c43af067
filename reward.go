package adr

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	// DefaultDiscriminatorHidden is the default LSTM
	// state size of the discriminator.
	DefaultDiscriminatorHidden = 256

	// DefaultDiscriminatorStepSize is the default
	// learning rate for discriminator updates.
	DefaultDiscriminatorStepSize = 3e-3
)

// A RewardGenerator scores rollouts by how hard they are
// to tell apart from rollouts under nominal physics.
//
// It is a recurrent binary classifier over per-step
// [state, action] features, trained online to separate
// nominal from randomized trajectories. Its calibrated
// uncertainty is the exploration reward: configurations
// whose rollouts the classifier cannot identify score
// highest.
type RewardGenerator struct {
	// Creator is the anyvec.Creator behind the network.
	Creator anyvec.Creator

	// Block is the recurrent classifier. It maps feature
	// sequences to per-step logits.
	Block anyrnn.Block

	// RewardMultiplier scales the log-probability output.
	RewardMultiplier float64

	// StepSize is the learning rate.
	//
	// If 0, DefaultDiscriminatorStepSize is used.
	StepSize float64

	// Logger, if non-nil, receives the final training
	// loss after each Train call.
	Logger StepLogger

	adam *anysgd.Adam
}

// NewRewardGenerator creates a discriminator for
// trajectories of the given environment spec.
//
// If hiddenSize is 0, DefaultDiscriminatorHidden is
// used.
func NewRewardGenerator(c anyvec.Creator, spec *EnvSpec, hiddenSize int,
	rewardMultiplier float64) *RewardGenerator {
	if hiddenSize == 0 {
		hiddenSize = DefaultDiscriminatorHidden
	}
	inSize := spec.ObsSpace.Dim() + spec.ActSpace.Dim()
	return &RewardGenerator{
		Creator: c,
		Block: anyrnn.Stack{
			anyrnn.NewLSTM(c, inSize, hiddenSize),
			&anyrnn.LayerBlock{Layer: anynet.NewFC(c, hiddenSize, 1)},
		},
		RewardMultiplier: rewardMultiplier,
	}
}

// GetReward computes the reward of a trajectory as
// log(mean predicted probability) scaled by the reward
// multiplier. It never mutates the network weights.
func (r *RewardGenerator) GetReward(traj *Rollout) (float64, error) {
	features, err := PreprocessRollout(r.Creator, traj)
	if err != nil {
		return 0, essentials.AddCtx("get reward", err)
	}
	seq := anyseq.ConstSeqList(r.Creator, [][]anyvec.Vector{features})
	out := anyrnn.Map(seq, r.Block)

	var meanProb float64
	batches := out.Output()
	for _, batch := range batches {
		logit := vecToFloats(batch.Packed)[0]
		meanProb += 1 / (1 + math.Exp(-logit))
	}
	meanProb /= float64(len(batches))
	return math.Log(meanProb) * r.RewardMultiplier, nil
}

// Train runs numEpochs of supervised updates. Within
// each epoch, same-index rollouts from the reference and
// randomized batches are paired up; pairing stops at the
// shorter batch and any remainder is silently unused.
// Each pair produces one binary cross-entropy gradient
// step (randomized rollouts are labeled 1, reference
// rollouts 0).
//
// It returns the last-computed loss and the total number
// of pairs consumed. With zero epochs or zero pairs, no
// optimizer step happens and the loss is 0.
func (r *RewardGenerator) Train(reference, randomized []*Rollout,
	numEpochs int) (loss float64, pairs int, err error) {
	params := anynet.AllParameters(r.Block)
	numPairs := len(reference)
	if len(randomized) < numPairs {
		numPairs = len(randomized)
	}
	for epoch := 0; epoch < numEpochs; epoch++ {
		for i := 0; i < numPairs; i++ {
			grad := anydiff.NewGrad(params...)
			refLoss, err := r.classLoss(reference[i], 0, grad)
			if err != nil {
				return 0, pairs, essentials.AddCtx("train discriminator", err)
			}
			randLoss, err := r.classLoss(randomized[i], 1, grad)
			if err != nil {
				return 0, pairs, essentials.AddCtx("train discriminator", err)
			}
			loss = refLoss + randLoss
			r.applyGrad(grad)
			pairs++
		}
	}
	if r.Logger != nil {
		r.Logger.AddValue("discriminator_loss", loss)
	}
	return loss, pairs, nil
}

// SaveCheckpoint persists the discriminator weights.
func (r *RewardGenerator) SaveCheckpoint(path string) error {
	return essentials.AddCtx("save discriminator",
		serializer.SaveAny(path, r.Block))
}

// LoadCheckpoint restores previously saved weights.
func (r *RewardGenerator) LoadCheckpoint(path string) error {
	var block anyrnn.Stack
	if err := serializer.LoadAny(path, &block); err != nil {
		return essentials.AddCtx("load discriminator", err)
	}
	r.Block = block
	return nil
}

// classLoss accumulates the BCE gradient for a single
// rollout with the given label and returns the mean
// per-step loss.
func (r *RewardGenerator) classLoss(traj *Rollout, label float64,
	grad anydiff.Grad) (float64, error) {
	features, err := PreprocessRollout(r.Creator, traj)
	if err != nil {
		return 0, err
	}
	c := r.Creator
	seq := anyseq.ConstSeqList(c, [][]anyvec.Vector{features})
	out := anyrnn.Map(seq, r.Block)
	costs := anyseq.Map(out, func(v anydiff.Res, n int) anydiff.Res {
		labels := make([]float64, n)
		for i := range labels {
			labels[i] = label
		}
		desired := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(labels)))
		return anynet.SigmoidCE{}.Cost(desired, v, n)
	})

	batches := costs.Output()
	upstream := make([]*anyseq.Batch, len(batches))
	scale := 1 / float64(len(batches))
	var total float64
	for t, batch := range batches {
		total += vecToFloats(batch.Packed)[0]
		ones := make([]float64, batch.Packed.Len())
		for i := range ones {
			ones[i] = scale
		}
		upstream[t] = &anyseq.Batch{
			Packed:  c.MakeVectorData(c.MakeNumericList(ones)),
			Present: batch.Present,
		}
	}
	costs.Propagate(upstream, grad)
	return total * scale, nil
}

func (r *RewardGenerator) applyGrad(grad anydiff.Grad) {
	if r.adam == nil {
		r.adam = &anysgd.Adam{}
	}
	stepSize := r.StepSize
	if stepSize == 0 {
		stepSize = DefaultDiscriminatorStepSize
	}
	transformed := r.adam.Transform(grad)
	transformed.Scale(r.Creator.MakeNumeric(-stepSize))
	transformed.AddToVars()
}

// PreprocessRollout converts a trajectory into the fixed
// feature sequence consumed by the discriminator: for
// every time step t with a successor observation, the
// feature vector is [state_t, action_t].
//
// It returns a *TypeError if the argument is not a valid
// trajectory.
func PreprocessRollout(c anyvec.Creator, traj *Rollout) ([]anyvec.Vector, error) {
	if traj == nil || len(traj.Observations) < 2 || len(traj.Actions) == 0 {
		return nil, &TypeError{Context: "preprocess rollout", Expected: "a trajectory"}
	}
	// States at times 0..T-1, where T is bounded by the
	// number of successor observations and by the number
	// of actions.
	numSteps := len(traj.Observations) - 1
	if len(traj.Actions) < numSteps {
		numSteps = len(traj.Actions)
	}
	res := make([]anyvec.Vector, numSteps)
	for t := 0; t < numSteps; t++ {
		res[t] = c.Concat(traj.Observations[t].Copy(), traj.Actions[t].Copy())
	}
	return res, nil
}
