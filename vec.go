package adr

import "github.com/unixpickle/anyvec"

func vecToFloats(vec anyvec.Vector) []float64 {
	var res []float64
	switch data := vec.Data().(type) {
	case []float64:
		res = data
	case []float32:
		for _, x := range data {
			res = append(res, float64(x))
		}
	default:
		panic("unsupported numeric type")
	}
	return res
}

// smallVec is a native vector type optimized to be used
// with a small number of components.
//
// Most smallVec methods return the receiver so that
// vector operations can be chained more easily.
type smallVec []float64

func (s smallVec) Copy() smallVec {
	return append(smallVec{}, s...)
}

func (s smallVec) Scale(scale float64) smallVec {
	for i, x := range s {
		s[i] = x * scale
	}
	return s
}

func (s smallVec) Add(other smallVec) smallVec {
	for i, x := range other {
		s[i] += x
	}
	return s
}

func (s smallVec) AddScalar(x float64) smallVec {
	for i := range s {
		s[i] += x
	}
	return s
}

func (s smallVec) Mul(other smallVec) smallVec {
	for i, x := range other {
		s[i] *= x
	}
	return s
}

func (s smallVec) Clip(min, max float64) smallVec {
	for i, x := range s {
		if x < min {
			s[i] = min
		} else if x > max {
			s[i] = max
		}
	}
	return s
}
