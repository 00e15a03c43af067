package experiments

import "flag"

// ADRFlags holds the hyperparameters of the ADR outer
// loop for command-line programs.
type ADRFlags struct {
	// SaveDir is the snapshot directory.
	SaveDir string

	// NumIters is the number of outer iterations.
	NumIters int

	// NumParticles is the ensemble size.
	NumParticles int

	// Horizon is the particle re-randomization period.
	Horizon int

	// MaxSteps is the parameter search episode length.
	MaxSteps int

	// NumTrajsPerConfig is the number of trajectories
	// per sampled configuration.
	NumTrajsPerConfig int

	// StepLength is the maximum normalized parameter
	// change per search step.
	StepLength float64

	// Warmup is the number of iterations before the
	// ensemble starts updating.
	Warmup int

	// NumWorkers is the sampler pool size.
	NumWorkers int

	// DiscriminatorEpochs is the number of epochs per
	// discriminator training phase.
	DiscriminatorEpochs int

	// RewardMultiplier scales discriminator rewards.
	RewardMultiplier float64
}

// AddFlags adds the options to the flag package's global
// set of flags.
func (a *ADRFlags) AddFlags() {
	flag.StringVar(&a.SaveDir, "outdir", "out", "snapshot directory")
	flag.IntVar(&a.NumIters, "iters", 200, "number of outer iterations")
	flag.IntVar(&a.NumParticles, "particles", 4, "number of search particles")
	flag.IntVar(&a.Horizon, "horizon", 8, "steps between particle re-randomizations")
	flag.IntVar(&a.MaxSteps, "maxsteps", 8, "parameter search episode length")
	flag.IntVar(&a.NumTrajsPerConfig, "trajs", 4, "trajectories per configuration")
	flag.Float64Var(&a.StepLength, "steplength", 0.05, "max parameter change per step")
	flag.IntVar(&a.Warmup, "warmup", 0, "iterations before ensemble updates")
	flag.IntVar(&a.NumWorkers, "workers", 4, "sampler pool size")
	flag.IntVar(&a.DiscriminatorEpochs, "discepochs", 1, "discriminator epochs per iteration")
	flag.Float64Var(&a.RewardMultiplier, "rewardmult", 1, "discriminator reward multiplier")
}
