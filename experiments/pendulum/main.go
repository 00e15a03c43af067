// Trains a pendulum swing-up policy with Active Domain
// Randomization over gravity, mass, and length.

package main

import (
	"flag"
	"log"
	"math/rand"
	"os"

	"github.com/unixpickle/adr"
	"github.com/unixpickle/adr/experiments"
	"github.com/unixpickle/adr/svpg"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
)

func main() {
	flags := &experiments.ADRFlags{}
	flags.AddFlags()
	seed := flag.Int64("seed", 0, "seed for parameter re-draws (0 for random)")
	flag.Parse()

	if *seed == 0 {
		*seed = rand.Int63()
	}
	if err := os.MkdirAll(flags.SaveDir, 0755); err != nil {
		essentials.Die(err)
	}

	creator := anyvec64.DefaultCreator{}
	env := &experiments.Pendulum{Creator: creator}
	subrtn := experiments.NewPGSubrtn(creator, env.Spec(), 32)
	subrtn.SaveDir = flags.SaveDir

	algo, err := adr.NewADR(&adr.ADRConfig{
		Creator: creator,
		Env:     env,
		Subrtn:  subrtn,
		NewSwarm: func(adapter *adr.SVPGAdapter) (adr.Swarm, error) {
			builder := &svpg.Builder{Temperature: 1e-3}
			return builder.Build(adapter)
		},
		SaveDir:                flags.SaveDir,
		NumParticles:           flags.NumParticles,
		NumDiscriminatorEpochs: flags.DiscriminatorEpochs,
		NumTrajsPerConfig:      flags.NumTrajsPerConfig,
		StepLength:             flags.StepLength,
		Horizon:                flags.Horizon,
		MaxSteps:               flags.MaxSteps,
		Warmup:                 flags.Warmup,
		NumWorkers:             flags.NumWorkers,
		RewardMultiplier:       flags.RewardMultiplier,
		Logger:                 &adr.PrintLogger{Prefix: "adr: "},
		Rand:                   rand.New(rand.NewSource(*seed)),
	})
	if err != nil {
		essentials.Die(err)
	}

	for i := 0; i < flags.NumIters; i++ {
		log.Printf("iteration %d (samples=%d)", i, algo.SampleCount())
		if err := algo.Step("best"); err != nil {
			essentials.Die(err)
		}
	}
}
