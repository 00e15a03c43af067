package adr

import (
	"sync"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A SamplerPool evaluates rollouts across a fixed number
// of worker goroutines.
//
// A pool never fails to construct. Degenerate sizes
// produce a degraded pool which samples serially; the
// caller can inspect this via Degraded.
type SamplerPool struct {
	workers  int
	degraded bool
}

// NewSamplerPool creates a pool with the given number of
// workers. Sizes below two yield a degraded serial pool.
func NewSamplerPool(numWorkers int) *SamplerPool {
	if numWorkers < 2 {
		return &SamplerPool{workers: 1, degraded: true}
	}
	return &SamplerPool{workers: numWorkers}
}

// NumWorkers returns the number of workers.
func (s *SamplerPool) NumWorkers() int {
	return s.workers
}

// Degraded reports whether the pool fell back to serial
// sampling.
func (s *SamplerPool) Degraded() bool {
	return s.degraded
}

// EvalDomainParams runs the policy once per domain
// parameter configuration and returns one rollout per
// configuration, in input order.
//
// Parallel sampling uses independent clones of env; the
// env itself is only stepped when the pool is degraded.
func EvalDomainParams(pool *SamplerPool, env Env, policy Policy,
	params []map[string]float64) ([]*Rollout, error) {
	res := make([]*Rollout, len(params))
	if pool == nil || pool.Degraded() || len(params) < 2 {
		for i, p := range params {
			rollout, err := rolloutEpisode(env, policy, p)
			if err != nil {
				return nil, essentials.AddCtx("eval domain params", err)
			}
			res[i] = rollout
		}
		return res, nil
	}

	jobs := make(chan int, len(params))
	for i := range params {
		jobs <- i
	}
	close(jobs)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup
	numWorkers := pool.NumWorkers()
	if numWorkers > len(params) {
		numWorkers = len(params)
	}
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerEnv Env) {
			defer wg.Done()
			for idx := range jobs {
				rollout, err := rolloutEpisode(workerEnv, policy, params[idx])
				if err != nil {
					select {
					case errChan <- err:
					default:
					}
					return
				}
				res[idx] = rollout
			}
		}(env.Clone())
	}
	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, essentials.AddCtx("eval domain params", err)
	}
	return res, nil
}

func rolloutEpisode(env Env, policy Policy,
	param map[string]float64) (*Rollout, error) {
	obs, err := env.Reset(WithDomainParam(param))
	if err != nil {
		return nil, err
	}
	res := &Rollout{Observations: []anyvec.Vector{obs}}
	for t := 0; t < env.MaxSteps(); t++ {
		action, err := policy.Act(obs)
		if err != nil {
			return nil, err
		}
		var reward float64
		var done bool
		obs, reward, done, err = env.Step(action)
		if err != nil {
			return nil, err
		}
		res.Observations = append(res.Observations, obs)
		res.Actions = append(res.Actions, action)
		res.Rewards = append(res.Rewards, reward)
		if done {
			break
		}
	}
	return res, nil
}
