// Package log defines standard attribute keys for compiler and runtime operations.
//
// Using these keys everywhere keeps records from the parser, the lowering
// pass, the backends and the prediction runtime queryable with the same
// field names. Keys follow a hierarchical naming convention ("model.trees",
// "data.samples") so they can be filtered by prefix.

package log

// Model and Operation Context
const (
	// ModelFingerprintKey is the xxhash fingerprint of the model text, in hex.
	ModelFingerprintKey = "model.fingerprint"

	// ModelPathKey is the path the model was loaded from, if any.
	ModelPathKey = "model.path"

	// ObjectiveKey is the objective declared by the model file.
	// Examples: "regression", "binary sigmoid:1", "multiclass num_class:3"
	ObjectiveKey = "model.objective"

	// TreesKey is the number of trees in the forest.
	TreesKey = "model.trees"

	// OutputsKey is the number of output columns per row.
	OutputsKey = "model.outputs"

	// OperationKey specifies the operation being performed.
	// Standard values: "load", "lower", "compile", "predict"
	OperationKey = "op.name"

	// ComponentKey identifies which package is emitting the record.
	// Examples: "lightgbm", "codegen", "engine", "forestjit"
	ComponentKey = "op.component"

	// PathKey records which prediction path served a call.
	// Standard values: "compiled", "interpreted"
	PathKey = "op.path"
)

// Compilation
const (
	// BackendKey is the name of the code generation backend.
	BackendKey = "compile.backend"

	// OptLevelKey is the optimization level requested for compilation.
	OptLevelKey = "compile.opt_level"

	// TreeIndexKey identifies a single tree during lowering.
	TreeIndexKey = "compile.tree"

	// BlocksKey is the number of IR blocks in a function or module.
	BlocksKey = "compile.blocks"

	// InstrsKey is the number of IR instructions in a function or module.
	InstrsKey = "compile.instrs"
)

// Data Shape
const (
	// SamplesKey indicates the number of rows being predicted.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features per row.
	FeaturesKey = "data.features"

	// ThreadsKey is the number of workers used for a batch prediction.
	ThreadsKey = "data.threads"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// DurationMicrosKey records the execution time of short operations.
	DurationMicrosKey = "perf.duration_us"
)

// Error Context
const (
	// ErrorKey carries the error value itself.
	ErrorKey = "error"

	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// StacktraceKey contains stack trace information for debugging.
	// Populated automatically from cockroachdb/errors stacks.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationLoad    = "load"
	OperationLower   = "lower"
	OperationCompile = "compile"
	OperationPredict = "predict"

	PathCompiled    = "compiled"
	PathInterpreted = "interpreted"

	ErrorMalformedModel = "MALFORMED_MODEL"
	ErrorCompilation    = "COMPILATION_ERROR"
	ErrorNotCompiled    = "NOT_COMPILED"
	ErrorInvalidInput   = "INVALID_INPUT"
)
