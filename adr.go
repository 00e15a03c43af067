package adr

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
)

// DiscriminatorCheckpoint is the file name, tagged with
// the algorithm prefix, under which the discriminator
// weights are persisted each iteration.
const DiscriminatorCheckpoint = "adr_discriminator"

// An ADRConfig configures NewADR.
type ADRConfig struct {
	// Creator is the anyvec.Creator behind all vectors.
	Creator anyvec.Creator

	// Env is the physics environment to train in.
	Env Env

	// Subrtn performs the policy optimization.
	Subrtn Algorithm

	// NewSwarm builds the particle ensemble around the
	// constructed adapter.
	NewSwarm func(adapter *SVPGAdapter) (Swarm, error)

	// SaveDir is the directory for snapshots.
	SaveDir string

	// RandomizedParams names the physics parameters to
	// randomize. If empty, every nominal parameter of
	// the environment is randomized.
	RandomizedParams []string

	// NumParticles is the ensemble size.
	NumParticles int

	// NumDiscriminatorEpochs is the number of epochs per
	// discriminator training phase.
	NumDiscriminatorEpochs int

	// NumTrajsPerConfig is the number of trajectories
	// sampled per parameter configuration.
	NumTrajsPerConfig int

	// StepLength is the adapter's maximum normalized
	// parameter change per step.
	StepLength float64

	// Horizon is the adapter's re-randomization period.
	Horizon int

	// MaxSteps is the adapter's episode length.
	MaxSteps int

	// Warmup is the number of iterations before the
	// particle ensemble starts updating.
	Warmup int

	// NumWorkers is the sampler pool size.
	NumWorkers int

	// RewardMultiplier scales discriminator rewards.
	RewardMultiplier float64

	// DiscriminatorHidden is the discriminator's LSTM
	// state size (0 for the default).
	DiscriminatorHidden int

	// DiscriminatorStepSize is the discriminator's
	// learning rate (0 for the default).
	DiscriminatorStepSize float64

	// Logger receives per-iteration metric values.
	Logger StepLogger

	// Rand is the source for parameter re-draws.
	Rand *rand.Rand
}

// ADR is the Active Domain Randomization outer loop: it
// drives the particle ensemble through the parameter
// search adapter, feeds the collected rollouts to the
// policy subroutine, and trains the discriminator.
type ADR struct {
	env       Env
	subrtn    Algorithm
	swarm     Swarm
	adapter   *SVPGAdapter
	rewardGen *RewardGenerator

	creator  anyvec.Creator
	saveDir  string
	numEpoch int
	warmup   int
	logger   StepLogger

	iter       int
	bestMetric float64
	haveBest   bool
}

// NewADR validates the collaborators and assembles the
// algorithm. No partial state is retained on failure.
func NewADR(cfg *ADRConfig) (*ADR, error) {
	if err := ValidateEnv(cfg.Env); err != nil {
		return nil, err
	}
	if err := ValidateAlgorithm(cfg.Subrtn); err != nil {
		return nil, err
	}
	if cfg.NewSwarm == nil {
		return nil, &TypeError{Context: "new swarm", Expected: "a swarm builder"}
	}

	var params []DomainParam
	if len(cfg.RandomizedParams) == 0 {
		params = AllDomainParams(cfg.Env)
	} else {
		params = DomainParamsFromNames(cfg.RandomizedParams)
	}

	rewardGen := NewRewardGenerator(cfg.Creator, cfg.Env.Spec(),
		cfg.DiscriminatorHidden, cfg.RewardMultiplier)
	rewardGen.StepSize = cfg.DiscriminatorStepSize
	rewardGen.Logger = cfg.Logger

	adapter := &SVPGAdapter{
		Env:               cfg.Env,
		Params:            params,
		InnerPolicy:       cfg.Subrtn.Policy(),
		RewardGen:         rewardGen,
		Pool:              NewSamplerPool(cfg.NumWorkers),
		Creator:           cfg.Creator,
		NumParticles:      cfg.NumParticles,
		Rand:              cfg.Rand,
		StepLength:        cfg.StepLength,
		Horizon:           cfg.Horizon,
		NumTrajsPerConfig: cfg.NumTrajsPerConfig,
		MaxSteps:          cfg.MaxSteps,
	}

	swarm, err := cfg.NewSwarm(adapter)
	if err != nil {
		return nil, essentials.AddCtx("build swarm", err)
	}

	return &ADR{
		env:       cfg.Env,
		subrtn:    cfg.Subrtn,
		swarm:     swarm,
		adapter:   adapter,
		rewardGen: rewardGen,
		creator:   cfg.Creator,
		saveDir:   cfg.SaveDir,
		numEpoch:  cfg.NumDiscriminatorEpochs,
		warmup:    cfg.Warmup,
		logger:    cfg.Logger,
	}, nil
}

// Adapter returns the parameter search adapter owned by
// the algorithm.
func (a *ADR) Adapter() *SVPGAdapter {
	return a.adapter
}

// RewardGen returns the discriminator owned by the
// algorithm.
func (a *ADR) RewardGen() *RewardGenerator {
	return a.rewardGen
}

// SampleCount proxies the subroutine's interaction
// counter.
func (a *ADR) SampleCount() int {
	return a.subrtn.SampleCount()
}

// CurrIter returns the number of completed iterations.
func (a *ADR) CurrIter() int {
	return a.iter
}

// Step runs one outer iteration: per-particle rollout
// collection, policy subroutine updates, discriminator
// training, the warm-up-gated ensemble update, and
// snapshotting.
func (a *ADR) Step(snapshotMode string) error {
	var randTrajs, refTrajs []*Rollout
	var ros []*Rollout

	particles := a.swarm.Particles()
	for i, p := range particles {
		state, err := a.adapter.ResetParticle(i)
		if err != nil {
			return essentials.AddCtx("adr step", err)
		}
		meta := &Rollout{Observations: []anyvec.Vector{state}}
		var randNow []*Rollout
		done := false
		for !done {
			action, err := p.ExplorationPolicy().Act(state)
			if err != nil {
				return essentials.AddCtx("adr step", err)
			}
			next, reward, d, info, err := a.adapter.StepParticle(action, i)
			if err != nil {
				return essentials.AddCtx("adr step", err)
			}
			meta.Observations = append(meta.Observations, next)
			meta.Actions = append(meta.Actions, action)
			meta.Rewards = append(meta.Rewards, reward)

			randNow = append(randNow, info.Rand...)
			randTrajs = append(randTrajs, info.Rand...)
			refTrajs = append(refTrajs, info.Ref...)

			state = next
			done = d
		}
		ros = append(ros, meta)
		if a.logger != nil {
			name := fmt.Sprintf("particle_%d_mean_reward", i)
			a.logger.AddValue(name, meta.UndiscountedReturn()/float64(meta.Len()))
		}

		// Hand the subroutine detached single-precision
		// copies of this particle's randomized rollouts.
		detached := make([]*Rollout, len(randNow))
		for j, traj := range randNow {
			detached[j] = traj.Convert(anyvec32.CurrentCreator())
		}
		if err := a.subrtn.Update(detached); err != nil {
			return essentials.AddCtx("adr step", err)
		}
	}

	mean, median, stddev := returnStats(randTrajs)
	if a.logger != nil {
		a.logger.AddValue("avg_rollout_len", meanLength(randTrajs))
		a.logger.AddValue("avg_return", mean)
		a.logger.AddValue("median_return", median)
		a.logger.AddValue("std_return", stddev)
	}

	flatRand := ConcatRollouts(randTrajs)
	flatRef := ConcatRollouts(refTrajs)
	if _, _, err := a.rewardGen.Train(flatRef, flatRand, a.numEpoch); err != nil {
		return essentials.AddCtx("adr step", err)
	}
	if a.saveDir != "" {
		path := filepath.Join(a.saveDir, DiscriminatorCheckpoint)
		if err := a.rewardGen.SaveCheckpoint(path); err != nil {
			return essentials.AddCtx("adr step", err)
		}
	}

	if a.iter > a.warmup {
		// The swarm update interface expects one rollout
		// group per particle.
		groups := make([][]*Rollout, len(ros))
		for i, ro := range ros {
			groups[i] = []*Rollout{ro}
		}
		if err := a.swarm.Update(groups); err != nil {
			return essentials.AddCtx("adr step", err)
		}
	}

	if err := a.MakeSnapshot(snapshotMode, mean); err != nil {
		return essentials.AddCtx("adr step", err)
	}
	if err := a.subrtn.MakeSnapshot("best", mean); err != nil {
		return essentials.AddCtx("adr step", err)
	}
	a.iter++
	return nil
}

// ComputeParams converts one time slice of a recorded
// normalized-configuration history into physics
// parameter dictionaries.
//
// This is a diagnostic utility; it does not participate
// in Step.
func (a *ADR) ComputeParams(simInstances [][][]float64, t int) ([]map[string]float64, error) {
	if t < 0 || t >= len(simInstances) {
		return nil, fmt.Errorf("compute params: time step %d out of range", t)
	}
	nominal := a.adapter.NominalDict()
	res := make([]map[string]float64, len(simInstances[t]))
	for i, instance := range simInstances[t] {
		if len(instance) != len(a.adapter.Params) {
			return nil, fmt.Errorf("compute params: instance has %d values, want %d",
				len(instance), len(a.adapter.Params))
		}
		d := make(map[string]float64, len(instance))
		for j, p := range a.adapter.Params {
			d[p.Name] = (instance[j] + 0.5) * nominal[p.Name]
		}
		res[i] = d
	}
	return res, nil
}

// MakeSnapshot saves a snapshot according to the mode:
// "best" persists only when metric improves on the best
// value seen so far, anything else persists always.
func (a *ADR) MakeSnapshot(mode string, metric float64) error {
	if mode == "best" {
		if a.haveBest && metric <= a.bestMetric {
			return nil
		}
		a.bestMetric = metric
		a.haveBest = true
	}
	return a.SaveSnapshot(nil)
}

// SaveSnapshot persists the algorithm state. ADR only
// runs as the top-level driver: it unconditionally saves
// the wrapped environment's configuration, so invoking
// it with non-nil meta (as a nested subroutine would)
// fails.
func (a *ADR) SaveSnapshot(meta map[string]string) error {
	if meta != nil {
		return ErrNotSubroutine
	}
	if a.saveDir != "" {
		if err := a.saveEnvConfig(); err != nil {
			return essentials.AddCtx("save snapshot", err)
		}
	}
	return a.subrtn.SaveSnapshot(nil)
}

func (a *ADR) saveEnvConfig() error {
	config := map[string]map[string]float64{
		"nominal": a.env.NominalDomainParam(),
		"current": a.env.DomainParam(),
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(a.saveDir, "env.json")
	return os.WriteFile(path, data, 0644)
}
