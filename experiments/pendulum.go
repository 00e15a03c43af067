// Package experiments provides environments and glue
// for running Active Domain Randomization end to end.
package experiments

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/adr"
	"github.com/unixpickle/anyvec"
)

// Nominal physics values for the pendulum.
const (
	PendulumGravity = 9.8
	PendulumMass    = 1.0
	PendulumLength  = 1.0

	pendulumDt          = 0.05
	pendulumSpeedBound  = 8.0
	pendulumTorqueBound = 2.0
)

// A Pendulum is a torque-limited pendulum swing-up task
// with randomizable gravity, mass, and length.
//
// Observations are [angle, angular velocity]; actions
// are a 1-D torque in [-2, 2]. The reward is the cosine
// of the angle, so holding the pendulum upright scores
// highest.
type Pendulum struct {
	// Creator is the anyvec.Creator behind observation
	// vectors.
	Creator anyvec.Creator

	// Steps is the per-episode step bound.
	//
	// If 0, a default of 200 is used.
	Steps int

	// Rand is the source for start states. If nil, a
	// randomly seeded source is created on first use.
	Rand *rand.Rand

	gravity float64
	mass    float64
	length  float64

	th    float64
	thdot float64
}

// Spec describes the observation and action spaces.
func (p *Pendulum) Spec() *adr.EnvSpec {
	return &adr.EnvSpec{
		ObsSpace: &adr.BoxSpace{
			Low:  []float64{-math.Pi, -pendulumSpeedBound},
			High: []float64{math.Pi, pendulumSpeedBound},
		},
		ActSpace: &adr.BoxSpace{
			Low:  []float64{-pendulumTorqueBound},
			High: []float64{pendulumTorqueBound},
		},
	}
}

// StateSpace matches the observation space; the task is
// fully observed.
func (p *Pendulum) StateSpace() *adr.BoxSpace {
	return p.Spec().ObsSpace
}

// MaxSteps is the per-episode step bound.
func (p *Pendulum) MaxSteps() int {
	if p.Steps == 0 {
		return 200
	}
	return p.Steps
}

// NominalDomainParam returns the default physics values.
func (p *Pendulum) NominalDomainParam() map[string]float64 {
	return map[string]float64{
		"gravity": PendulumGravity,
		"mass":    PendulumMass,
		"length":  PendulumLength,
	}
}

// DomainParam returns the currently installed physics
// values.
func (p *Pendulum) DomainParam() map[string]float64 {
	p.ensurePhysics()
	return map[string]float64{
		"gravity": p.gravity,
		"mass":    p.mass,
		"length":  p.length,
	}
}

// Reset starts a new episode, optionally installing
// domain parameters or a fixed start state first.
func (p *Pendulum) Reset(opts ...adr.ResetOption) (anyvec.Vector, error) {
	p.ensurePhysics()
	cfg := adr.BuildResetConfig(opts...)
	if cfg.DomainParam != nil {
		for name, value := range cfg.DomainParam {
			switch name {
			case "gravity":
				p.gravity = value
			case "mass":
				p.mass = value
			case "length":
				p.length = value
			default:
				return nil, fmt.Errorf("reset pendulum: unknown domain parameter %q", name)
			}
		}
	}
	if cfg.InitState != nil {
		state := cfg.InitState.Data()
		vals := toFloats(state)
		if len(vals) != 2 {
			return nil, fmt.Errorf("reset pendulum: init state has %d values, want 2", len(vals))
		}
		p.th, p.thdot = vals[0], vals[1]
	} else {
		p.th = (p.rand().Float64()*2 - 1) * math.Pi
		p.thdot = p.rand().Float64()*2 - 1
	}
	return p.observation(), nil
}

// Step applies a torque for one time step.
func (p *Pendulum) Step(action anyvec.Vector) (anyvec.Vector, float64, bool, error) {
	p.ensurePhysics()
	vals := toFloats(action.Data())
	if len(vals) != 1 {
		return nil, 0, false, fmt.Errorf("step pendulum: action has %d values, want 1", len(vals))
	}
	torque := clip(vals[0], -pendulumTorqueBound, pendulumTorqueBound)

	newThdot := p.thdot + (-3*p.gravity/(2*p.length)*math.Sin(p.th+math.Pi)+
		3/(p.mass*p.length*p.length)*torque)*pendulumDt
	newThdot = clip(newThdot, -pendulumSpeedBound, pendulumSpeedBound)
	newTh := normalizeAngle(p.th + newThdot*pendulumDt)

	p.th, p.thdot = newTh, newThdot
	reward := math.Cos(newTh)
	return p.observation(), reward, false, nil
}

// Clone creates an independent pendulum with the same
// physics, for parallel sampling.
func (p *Pendulum) Clone() adr.Env {
	p.ensurePhysics()
	return &Pendulum{
		Creator: p.Creator,
		Steps:   p.Steps,
		Rand:    rand.New(rand.NewSource(p.rand().Int63())),
		gravity: p.gravity,
		mass:    p.mass,
		length:  p.length,
	}
}

func (p *Pendulum) observation() anyvec.Vector {
	data := []float64{p.th, p.thdot}
	return p.Creator.MakeVectorData(p.Creator.MakeNumericList(data))
}

func (p *Pendulum) ensurePhysics() {
	if p.mass == 0 {
		p.gravity = PendulumGravity
		p.mass = PendulumMass
		p.length = PendulumLength
	}
}

func (p *Pendulum) rand() *rand.Rand {
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	return p.Rand
}

func normalizeAngle(th float64) float64 {
	for th > math.Pi {
		th -= 2 * math.Pi
	}
	for th < -math.Pi {
		th += 2 * math.Pi
	}
	return th
}

func clip(x, min, max float64) float64 {
	if x < min {
		return min
	} else if x > max {
		return max
	}
	return x
}

func toFloats(data interface{}) []float64 {
	switch data := data.(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic("unsupported numeric type")
	}
}
