package adr

import (
	"math"
	"testing"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestRolloutReturnAndLen(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	ro := testingRollout(c, 4, 0.25)
	if ro.Len() != 4 {
		t.Errorf("expected length 4, got %d", ro.Len())
	}
	if math.Abs(ro.UndiscountedReturn()-1) > 1e-9 {
		t.Errorf("expected return 1, got %f", ro.UndiscountedReturn())
	}
}

func TestRolloutConvert(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	ro := testingRollout(c, 3, 0.5)
	converted := ro.Convert(anyvec32.CurrentCreator())
	if converted.Len() != ro.Len() {
		t.Fatal("length changed")
	}
	if _, ok := converted.Observations[0].Data().([]float32); !ok {
		t.Error("expected float32 backing storage")
	}
	orig := vecToFloats(ro.Observations[1])
	conv := vecToFloats(converted.Observations[1])
	for i, x := range orig {
		if math.Abs(conv[i]-x) > 1e-5 {
			t.Errorf("component %d: expected %f but got %f", i, x, conv[i])
		}
	}
	// The copy must not alias the original.
	converted.Rewards[0] = 123
	if ro.Rewards[0] == 123 {
		t.Error("rewards alias the original rollout")
	}
}

func TestConcatRollouts(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	a := []*Rollout{testingRollout(c, 2, 1), testingRollout(c, 3, 1)}
	b := []*Rollout{testingRollout(c, 4, 1)}
	joined := ConcatRollouts(a, b)
	if len(joined) != 3 {
		t.Fatalf("expected 3 rollouts, got %d", len(joined))
	}
	lengths := []int{2, 3, 4}
	for i, ro := range joined {
		if ro.Len() != lengths[i] {
			t.Errorf("rollout %d: expected length %d, got %d", i, lengths[i], ro.Len())
		}
	}
}

func TestReturnStats(t *testing.T) {
	rollouts := []*Rollout{
		{Rewards: []float64{1, 1}, Actions: actsFor(2)},
		{Rewards: []float64{2, 2}, Actions: actsFor(2)},
		{Rewards: []float64{3, 3}, Actions: actsFor(2)},
	}
	mean, median, stddev := returnStats(rollouts)
	if math.Abs(mean-4) > 1e-9 {
		t.Errorf("expected mean 4, got %f", mean)
	}
	if math.Abs(median-4) > 1e-9 {
		t.Errorf("expected median 4, got %f", median)
	}
	expectedStd := math.Sqrt(8.0 / 3.0)
	if math.Abs(stddev-expectedStd) > 1e-9 {
		t.Errorf("expected stddev %f, got %f", expectedStd, stddev)
	}
	if meanLength(rollouts) != 2 {
		t.Errorf("expected mean length 2, got %f", meanLength(rollouts))
	}
}

func actsFor(steps int) []anyvec.Vector {
	c := anyvec64.DefaultCreator{}
	res := make([]anyvec.Vector, steps)
	for i := range res {
		res[i] = makeVec(c, 0)
	}
	return res
}
