// Package closure is the in-tree backend. It performs instruction selection
// of IR blocks into specialized Go closures: every decision becomes a closure
// that tests one feature and tail-calls the closure of the chosen successor,
// so no generic interpreter loop runs at prediction time.
//
// Optimization levels:
//
//	O0  direct selection
//	O1  folds branches whose successors return the same constant
//	O2  O1 plus jump threading and dead block elimination
//	O3  O2 plus fused compare-and-branch for numeric splits
package closure

import (
	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/ir"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// Name is the registry name of this backend.
const Name = "closure"

func init() {
	backend.Register(Backend{})
}

// Backend compiles IR into closures.
type Backend struct{}

// Name implements backend.Backend.
func (Backend) Name() string { return Name }

// Compile implements backend.Backend. Panics raised while selecting
// instructions are reported as a CompilationError.
func (Backend) Compile(m *ir.Module, level backend.OptLevel) (kernel backend.Kernel, err error) {
	if !level.Valid() {
		return nil, errors.NewCompilationError(Name, "unsupported optimization level "+level.String(), nil)
	}
	if err := ir.Verify(m); err != nil {
		return nil, errors.NewCompilationError(Name, "module rejected by verifier", err)
	}
	defer func() {
		if err != nil {
			kernel = nil
			err = errors.NewCompilationError(Name, "instruction selection failed", err)
		}
	}()
	defer errors.Recover(&err, "closure.Compile")

	trees := make([]treeFunc, len(m.Funcs))
	for i, fn := range m.Funcs {
		opt := Optimize(fn, level)
		sel := &selector{module: m, fn: opt, fuse: level >= backend.O3, memo: make([]treeFunc, len(opt.Blocks))}
		trees[i] = sel.block(0)
	}
	return newKernel(m, trees), nil
}

func newKernel(m *ir.Module, trees []treeFunc) backend.Kernel {
	slots := m.Reduce.Slots
	finish := finisher(m.Reduce)
	numSlots := m.NumSlots
	numFeatures := m.NumFeatures

	if numSlots == 1 {
		return func(features []float64, stride int, out []float64, start, end int) {
			var raw [1]float64
			for r := start; r < end; r++ {
				row := features[r*stride : r*stride+numFeatures]
				sum := 0.0
				for _, tree := range trees {
					sum += tree(row)
				}
				raw[0] = sum
				finish(raw[:], out[r:r+1])
			}
		}
	}
	return func(features []float64, stride int, out []float64, start, end int) {
		raw := make([]float64, numSlots)
		for r := start; r < end; r++ {
			row := features[r*stride : r*stride+numFeatures]
			for i := range raw {
				raw[i] = 0
			}
			for t, tree := range trees {
				raw[slots[t]] += tree(row)
			}
			finish(raw, out[r*numSlots:(r+1)*numSlots])
		}
	}
}

// finisher selects the reduction tail for r. Identity without averaging is a
// plain copy; everything else shares forest.FinishScores with the interpreter.
func finisher(r ir.Reduction) func(raw, out []float64) {
	if r.Transform == forest.TransformIdentity && !r.Average {
		return func(raw, out []float64) { copy(out, raw) }
	}
	obj := r.Objective()
	average, iterations := r.Average, r.Iterations
	return func(raw, out []float64) {
		forest.FinishScores(raw, out, average, iterations, obj)
	}
}
