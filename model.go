package forestjit

import (
	"io"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/codegen"
	"github.com/YuminosukeSato/forestjit/core"
	"github.com/YuminosukeSato/forestjit/core/model"
	"github.com/YuminosukeSato/forestjit/engine"
	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/interp"
	"github.com/YuminosukeSato/forestjit/ir"
	"github.com/YuminosukeSato/forestjit/lightgbm"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

var _ core.Model = (*Model)(nil)

// Model is a loaded forest together with its compiled entry point, once
// there is one. All methods are safe for concurrent use.
type Model struct {
	forest *forest.Forest
	opts   options
	logger log.Logger
	state  *model.StateManager

	// Written once under the state manager's write lock.
	module *ir.Module
	entry  *engine.EntryPoint
}

// Load parses the LightGBM model file at path.
func Load(path string, opts ...Option) (*Model, error) {
	f, err := lightgbm.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return newModel(f, path, opts)
}

// LoadString parses a model held in memory.
func LoadString(text string, opts ...Option) (*Model, error) {
	f, err := lightgbm.ParseString(text)
	if err != nil {
		return nil, err
	}
	return newModel(f, "", opts)
}

// LoadReader parses a model from r.
func LoadReader(r io.Reader, opts ...Option) (*Model, error) {
	f, err := lightgbm.Parse(r)
	if err != nil {
		return nil, err
	}
	return newModel(f, "", opts)
}

// New wraps a forest that was parsed or built elsewhere. f must be well
// formed and is not modified.
func New(f *forest.Forest, opts ...Option) (*Model, error) {
	return newModel(f, "", opts)
}

func newModel(f *forest.Forest, path string, opts []Option) (*Model, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = log.GetLoggerWithName("forestjit")
	}
	logger = logger.With(log.ModelFingerprintKey, f.FingerprintHex())

	m := &Model{
		forest: f,
		opts:   o,
		logger: logger,
		state:  model.NewStateManager(f.NumFeatures, f.NumOutputs()),
	}
	fields := []any{
		log.OperationKey, log.OperationLoad,
		log.TreesKey, len(f.Trees),
		log.FeaturesKey, f.NumFeatures,
		log.OutputsKey, f.NumOutputs(),
		log.ObjectiveKey, f.Objective.Name,
	}
	if path != "" {
		fields = append(fields, log.ModelPathKey, path)
	}
	logger.Info("Model loaded", fields...)
	return m, nil
}

// Compile lowers the forest and compiles it with the configured backend.
// Only the first successful call does any work; later calls return the same
// entry point whatever level they ask for. On failure the model stays
// Loaded and keeps predicting through the interpreter.
func (m *Model) Compile(level backend.OptLevel) (*engine.EntryPoint, error) {
	ran, err := m.state.Compile(func() error {
		return m.compile(level)
	})
	if err != nil {
		m.logger.Error("Compilation failed", err,
			log.OperationKey, log.OperationCompile,
			log.BackendKey, m.opts.backend,
			log.OptLevelKey, level.String(),
			log.ErrorCodeKey, log.ErrorCompilation,
		)
		return nil, err
	}
	ep := m.EntryPoint()
	if !ran && ep.Level() != level {
		m.logger.Debug("Model already compiled",
			log.OptLevelKey, ep.Level().String(),
		)
	}
	return ep, nil
}

// CompileDefault compiles at the level set by WithOptLevel.
func (m *Model) CompileDefault() (*engine.EntryPoint, error) {
	return m.Compile(m.opts.level)
}

// compile runs with the state manager's write lock held.
func (m *Model) compile(level backend.OptLevel) error {
	start := time.Now()
	mod, err := codegen.Lower(m.forest, codegen.WithSmallSetThreshold(m.opts.smallSet))
	if err != nil {
		err = errors.NewCompilationError(m.opts.backend, "lowering failed", err)
		m.opts.metrics.ObserveCompile(m.opts.backend, level.String(), time.Since(start), err)
		return err
	}
	ep, err := engine.Compile(mod, engine.Options{
		Backend: m.opts.backend,
		Level:   level,
		Logger:  m.logger,
	})
	elapsed := time.Since(start)
	m.opts.metrics.ObserveCompile(m.opts.backend, level.String(), elapsed, err)
	if err != nil {
		return err
	}

	m.module, m.entry = mod, ep
	blocks, instrs := mod.Stats()
	m.logger.Info("Model compiled",
		log.OperationKey, log.OperationCompile,
		log.BackendKey, ep.Backend(),
		log.OptLevelKey, level.String(),
		log.BlocksKey, blocks,
		log.InstrsKey, instrs,
		log.DurationMsKey, float64(elapsed.Microseconds())/1000,
	)
	return nil
}

// Predict predicts every row of X with the configured thread count, on the
// compiled path when the model is compiled and the interpreter otherwise.
func (m *Model) Predict(X mat.Matrix) (*mat.Dense, error) {
	return m.PredictWithThreads(X, m.opts.threads)
}

// PredictWithThreads is Predict with an explicit worker count.
func (m *Model) PredictWithThreads(X mat.Matrix, threads int) (*mat.Dense, error) {
	if ep := m.EntryPoint(); ep != nil {
		return m.predictCompiled(ep, X, threads)
	}
	return m.observe(log.PathInterpreted, X, threads, func() (*mat.Dense, error) {
		return engine.PredictInterpreted(m.forest, X, threads)
	})
}

// PredictCompiled predicts on the compiled path only. It returns a
// NotCompiledError if Compile has not succeeded yet.
func (m *Model) PredictCompiled(X mat.Matrix, threads int) (*mat.Dense, error) {
	if err := m.state.RequireCompiled("PredictCompiled"); err != nil {
		return nil, err
	}
	return m.predictCompiled(m.EntryPoint(), X, threads)
}

func (m *Model) predictCompiled(ep *engine.EntryPoint, X mat.Matrix, threads int) (*mat.Dense, error) {
	return m.observe(log.PathCompiled, X, threads, func() (*mat.Dense, error) {
		return engine.Predict(ep, X, threads)
	})
}

func (m *Model) observe(path string, X mat.Matrix, threads int, predict func() (*mat.Dense, error)) (*mat.Dense, error) {
	rows, _ := X.Dims()
	start := time.Now()
	out, err := predict()
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	m.opts.metrics.ObservePredict(path, rows, elapsed)
	m.logger.Debug("Batch predicted",
		log.OperationKey, log.OperationPredict,
		log.PathKey, path,
		log.SamplesKey, rows,
		log.ThreadsKey, threads,
		log.DurationMicrosKey, elapsed.Microseconds(),
	)
	return out, nil
}

// PredictRow evaluates a single feature vector with the interpreter.
func (m *Model) PredictRow(x []float64) ([]float64, error) {
	if err := m.checkRow("PredictRow", x); err != nil {
		return nil, err
	}
	out := make([]float64, m.forest.NumOutputs())
	interp.Predict(m.forest, x, out)
	return out, nil
}

// PredictRaw returns the untransformed, unaveraged per-slot scores of x.
func (m *Model) PredictRaw(x []float64) ([]float64, error) {
	if err := m.checkRow("PredictRaw", x); err != nil {
		return nil, err
	}
	raw := make([]float64, m.forest.NumOutputs())
	interp.PredictRaw(m.forest, x, raw)
	return raw, nil
}

// PredictLeafIndices returns, for every tree, the index of the leaf x lands in.
func (m *Model) PredictLeafIndices(x []float64) ([]int, error) {
	if err := m.checkRow("PredictLeafIndices", x); err != nil {
		return nil, err
	}
	leaves := make([]int, len(m.forest.Trees))
	interp.PredictLeafIndices(m.forest, x, leaves)
	return leaves, nil
}

func (m *Model) checkRow(op string, x []float64) error {
	if len(x) != m.forest.NumFeatures {
		return errors.NewInvalidInputError(op, m.forest.NumFeatures, len(x), 1)
	}
	return nil
}

// NumFeatures returns the number of input features.
func (m *Model) NumFeatures() int { return m.forest.NumFeatures }

// NumOutputs returns the number of output columns per row.
func (m *Model) NumOutputs() int { return m.forest.NumOutputs() }

// NumTrees returns the number of trees in the forest.
func (m *Model) NumTrees() int { return len(m.forest.Trees) }

// State returns Loaded or Compiled.
func (m *Model) State() model.State { return m.state.State() }

// Info returns a snapshot of the lifecycle state and dimensions.
func (m *Model) Info() model.ModelState { return m.state.GetState() }

// Forest returns the parsed forest. It must not be modified.
func (m *Model) Forest() *forest.Forest { return m.forest }

// IR returns the lowered module, or nil before compilation.
func (m *Model) IR() *ir.Module {
	var mod *ir.Module
	_ = m.state.WithState(func(model.State) error {
		mod = m.module
		return nil
	})
	return mod
}

// EntryPoint returns the compiled entry point, or nil before compilation.
func (m *Model) EntryPoint() *engine.EntryPoint {
	var ep *engine.EntryPoint
	_ = m.state.WithState(func(model.State) error {
		ep = m.entry
		return nil
	})
	return ep
}
