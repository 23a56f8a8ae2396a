package engine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/core/parallel"
	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/interp"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// Predict evaluates every row of X with the compiled kernel on threads
// workers (0 or 1 runs on the calling goroutine). The result has one row per
// input row and ep.NumOutputs() columns.
func Predict(ep *EntryPoint, X mat.Matrix, threads int) (*mat.Dense, error) {
	if ep == nil {
		return nil, errors.NewNotCompiledError("Predict")
	}
	return predictMatrix("Predict", ep.kernel, ep.NumFeatures(), ep.NumOutputs(), X, threads)
}

// PredictRange evaluates rows [start, end) of a row-major feature buffer
// holding rows rows and writes ep.NumOutputs() values per row into out.
// Shapes are validated before any worker starts, so a rejected call never
// writes to out.
func PredictRange(ep *EntryPoint, features []float64, rows int, out []float64, start, end, threads int) error {
	if ep == nil {
		return errors.NewNotCompiledError("PredictRange")
	}
	nf, no := ep.NumFeatures(), ep.NumOutputs()
	if rows < 0 || len(features) < rows*nf {
		return errors.NewInvalidInputError("PredictRange", rows*nf, len(features), 1)
	}
	if start < 0 || end < start || end > rows {
		return errors.NewInvalidInputError("PredictRange", rows, end, 0)
	}
	if len(out) < rows*no {
		return errors.NewInvalidInputError("PredictRange", rows*no, len(out), 2)
	}
	return run(ep.kernel, features, nf, out, start, end, threads)
}

// InterpretedKernel adapts the reference interpreter to the kernel calling
// convention, so both prediction paths share partitioning and validation.
func InterpretedKernel(f *forest.Forest) backend.Kernel {
	nf, no := f.NumFeatures, f.NumOutputs()
	return func(features []float64, stride int, out []float64, start, end int) {
		for r := start; r < end; r++ {
			interp.Predict(f, features[r*stride:r*stride+nf], out[r*no:(r+1)*no])
		}
	}
}

// PredictInterpreted is Predict for the reference interpreter.
func PredictInterpreted(f *forest.Forest, X mat.Matrix, threads int) (*mat.Dense, error) {
	return predictMatrix("PredictInterpreted", InterpretedKernel(f), f.NumFeatures, f.NumOutputs(), X, threads)
}

func predictMatrix(op string, kernel backend.Kernel, nf, no int, X mat.Matrix, threads int) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != nf {
		return nil, errors.NewInvalidInputError(op, nf, cols, 1)
	}
	if rows == 0 {
		return nil, errors.NewInvalidInputError(op, 1, 0, 0)
	}

	dense, ok := X.(*mat.Dense)
	if !ok {
		errors.Warn(errors.NewDataConversionWarning(fmt.Sprintf("%T", X), "*mat.Dense", "row-major feature storage required"))
		dense = mat.DenseCopyOf(X)
	}
	raw := dense.RawMatrix()

	predictions := mat.NewDense(rows, no, nil)
	if err := run(kernel, raw.Data, raw.Stride, predictions.RawMatrix().Data, 0, rows, threads); err != nil {
		return nil, err
	}
	return predictions, nil
}

func run(kernel backend.Kernel, features []float64, stride int, out []float64, start, end, threads int) error {
	err := parallel.Range(start, end, threads, func(s, e int) {
		kernel(features, stride, out, s, e)
	})
	if err != nil {
		return errors.Wrap(err, "prediction worker failed")
	}
	return nil
}
