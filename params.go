package adr

import "sort"

// A DomainParam identifies one randomized physics
// parameter of a task, together with a scalar weighting.
//
// DomainParams are immutable after construction.
type DomainParam struct {
	Name   string
	Weight float64
}

// DomainParamsFromNames creates uniformly weighted
// domain parameters for the given names, preserving the
// name order.
func DomainParamsFromNames(names []string) []DomainParam {
	res := make([]DomainParam, len(names))
	for i, name := range names {
		res[i] = DomainParam{Name: name, Weight: 1}
	}
	return res
}

// AllDomainParams creates uniformly weighted domain
// parameters for every nominal parameter of the
// environment, in sorted name order so that the ordering
// is stable across runs.
func AllDomainParams(env Env) []DomainParam {
	nominal := env.NominalDomainParam()
	names := make([]string, 0, len(nominal))
	for name := range nominal {
		names = append(names, name)
	}
	sort.Strings(names)
	return DomainParamsFromNames(names)
}

func paramNames(params []DomainParam) []string {
	res := make([]string, len(params))
	for i, p := range params {
		res[i] = p.Name
	}
	return res
}
