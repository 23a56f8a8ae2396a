// Package forest holds the in-memory form of a parsed tree ensemble.
//
// A Forest is built once by the parser and never mutated afterwards, so it
// can be shared freely between the interpreter, the lowering pass and any
// number of concurrent predictions.
package forest

import (
	"strconv"
)

// Forest is an ordered ensemble of trees plus prediction metadata.
type Forest struct {
	Version             string
	Trees               []*Tree
	NumFeatures         int
	NumClass            int
	NumTreePerIteration int
	LabelIndex          int
	Objective           Objective
	AverageOutput       bool
	FeatureNames        []string
	FeatureInfos        []string
	// Fingerprint is the xxhash of the model text.
	Fingerprint uint64
}

// NumOutputs is the number of scores produced per row.
func (f *Forest) NumOutputs() int {
	if f.NumClass > 1 {
		return f.NumClass
	}
	return 1
}

// NumIterations is the number of boosting rounds.
func (f *Forest) NumIterations() int {
	per := f.NumTreePerIteration
	if per < 1 {
		per = 1
	}
	return len(f.Trees) / per
}

// Slot returns the output slot tree i accumulates into.
func (f *Forest) Slot(i int) int {
	if f.NumTreePerIteration <= 1 {
		return 0
	}
	return i % f.NumTreePerIteration
}

// Finish turns the summed raw scores of one row into the final output.
// raw and out may alias. The interpreter and the compiled kernels both end in
// FinishScores so the reduction tail is identical on every path.
func (f *Forest) Finish(raw, out []float64) {
	FinishScores(raw, out, f.AverageOutput, f.NumIterations(), f.Objective)
}

// FinishScores copies raw into out, divides by iterations when average is set
// and applies the objective's transform. raw and out may alias.
func FinishScores(raw, out []float64, average bool, iterations int, obj Objective) {
	copy(out, raw[:len(out)])
	if average && iterations > 0 {
		div := float64(iterations)
		for i := range out {
			out[i] /= div
		}
	}
	obj.Apply(out)
}

// FingerprintHex formats Fingerprint for logs.
func (f *Forest) FingerprintHex() string {
	return strconv.FormatUint(f.Fingerprint, 16)
}
