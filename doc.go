// Package forestjit compiles trained LightGBM models into specialized Go
// code that predicts much faster than walking the trees, while returning
// bit-identical results to the reference interpreter.
//
// forestjit is designed for backend services that serve gradient-boosted
// models in process: load the text dump written by LightGBM's save_model,
// compile it once, and predict from any number of goroutines.
//
// # Features
//
// - Exact parity: compiled kernels and the interpreter share one reduction tail
// - Full LightGBM split semantics: missing-value routing, categorical bitsets
// - Objectives: regression, binary, multiclass, multiclassova, poisson, xentropy
// - Batched prediction with a per-call worker count
// - Structured errors and logging
//
// # Installation
//
//	go get github.com/YuminosukeSato/forestjit
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/forestjit"
//	    "github.com/YuminosukeSato/forestjit/backend"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    model, err := forestjit.Load("model.txt", forestjit.WithThreads(4))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Predictions are served by the interpreter until the model is compiled.
//	    if _, err := model.Compile(backend.O3); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    X := mat.NewDense(2, model.NumFeatures(), nil)
//	    predictions, err := model.Predict(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(predictions))
//	}
//
// # Packages
//
//   - lightgbm: model text parser
//   - forest: tree arena, forest and objective transforms
//   - catbitset: categorical split bitset codec
//   - interp: reference interpreter
//   - ir, codegen: intermediate representation and lowering
//   - backend, backend/closure: code generation backends
//   - engine: compiled runtime and batched prediction
//   - core/model: Loaded/Compiled state machine
//   - core/parallel: row partitioning across workers
//   - metrics: Prometheus collectors and parity comparisons
//   - config: viper configuration for the command line tool
//
// # Lifecycle
//
// A Model starts Loaded and moves to Compiled exactly once. Compile is
// idempotent: later calls return the same entry point without lowering
// again. PredictCompiled fails with a NotCompiledError on a Loaded model
// rather than falling back to the interpreter.
//
// # License
//
// forestjit is released under the MIT License.
package forestjit
