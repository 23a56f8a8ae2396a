// Package interp is the reference tree-walking evaluator.
//
// It is the correctness oracle for every compiled kernel: the compiled path
// must reproduce its results bit for bit. Trees are summed in file order and
// the raw scores are finished with forest.Forest.Finish.
package interp

import (
	"math"

	"github.com/YuminosukeSato/forestjit/forest"
)

// Decision semantics shared with the lowering pass.

// NumericGoesLeft reports the direction a numeric split sends value x.
func NumericGoesLeft(n *forest.Node, x float64) bool {
	if math.IsNaN(x) && n.Missing != forest.MissingNaN {
		x = 0
	}
	if (n.Missing == forest.MissingZero && IsZero(x)) || (n.Missing == forest.MissingNaN && math.IsNaN(x)) {
		return n.DefaultLeft
	}
	return x <= n.Threshold
}

// CategoricalGoesLeft reports the direction a categorical split sends value x.
func CategoricalGoesLeft(n *forest.Node, x float64) bool {
	c := CategoryOf(x, n.Missing)
	if c < 0 {
		return n.DefaultLeft
	}
	return n.Bitset.Contains(c)
}

// CategoryOf converts a feature value to a category index, or -1 when the
// value must follow the default direction. The value is truncated toward zero
// first, so anything in (-1, 1) is category 0. NaN is category 0 unless the
// split treats NaN as missing.
func CategoryOf(x float64, missing forest.MissingType) int {
	if math.IsNaN(x) {
		if missing == forest.MissingNaN {
			return -1
		}
		return 0
	}
	t := math.Trunc(x)
	if t < 0 || t > math.MaxInt32 {
		return -1
	}
	return int(t)
}

// IsZero matches LightGBM's zero test for MissingZero splits.
func IsZero(x float64) bool {
	return x >= -forest.ZeroThreshold && x <= forest.ZeroThreshold
}

// EvalTree returns the leaf value t assigns to x.
func EvalTree(t *forest.Tree, x []float64) float64 {
	return t.Nodes[leafOf(t, x)].Value
}

func leafOf(t *forest.Tree, x []float64) forest.NodeID {
	id := t.Root
	for {
		n := &t.Nodes[id]
		switch n.Kind {
		case forest.KindLeaf:
			return id
		case forest.KindNumeric:
			if NumericGoesLeft(n, x[n.Feature]) {
				id = n.Left
			} else {
				id = n.Right
			}
		case forest.KindCategorical:
			if CategoricalGoesLeft(n, x[n.Feature]) {
				id = n.Left
			} else {
				id = n.Right
			}
		default:
			panic("interp: unhandled node kind " + n.Kind.String())
		}
	}
}

// PredictRaw writes the summed tree outputs of row x into raw, one entry per
// output slot.
func PredictRaw(f *forest.Forest, x []float64, raw []float64) {
	for i := range raw {
		raw[i] = 0
	}
	for i, t := range f.Trees {
		raw[f.Slot(i)] += EvalTree(t, x)
	}
}

// Predict writes the finished prediction of row x into out.
func Predict(f *forest.Forest, x []float64, out []float64) {
	PredictRaw(f, x, out)
	f.Finish(out, out)
}

// PredictLeafIndices writes, for every tree, the LightGBM index of the leaf x reaches.
func PredictLeafIndices(f *forest.Forest, x []float64, leaves []int) {
	for i, t := range f.Trees {
		leaves[i] = int(t.Nodes[leafOf(t, x)].LeafIndex)
	}
}
