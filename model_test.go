package forestjit_test

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit"
	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/core/model"
	"github.com/YuminosukeSato/forestjit/engine"
	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/internal/forestgen"
	"github.com/YuminosukeSato/forestjit/metrics"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

func fixture(name string) string {
	return filepath.Join("lightgbm", "testdata", name)
}

func quietLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelError)
	return logger
}

func load(t *testing.T, name string, opts ...forestjit.Option) *forestjit.Model {
	t.Helper()
	opts = append([]forestjit.Option{forestjit.WithLogger(quietLogger())}, opts...)
	m, err := forestjit.Load(fixture(name), opts...)
	require.NoError(t, err)
	return m
}

func sameBits(t *testing.T, want, got *mat.Dense) {
	t.Helper()
	report, err := metrics.Compare(want, got)
	require.NoError(t, err)
	assert.True(t, report.Identical(), "%d mismatches, max abs error %v", report.Mismatches, report.MaxAbsError)
}

func TestLoadMetadata(t *testing.T) {
	m := load(t, "multiclass.txt")
	assert.Equal(t, model.Loaded, m.State())
	assert.Equal(t, 6, m.NumTrees())
	assert.Equal(t, 3, m.NumOutputs())
	assert.Equal(t, m.Forest().NumFeatures, m.NumFeatures())
	assert.Nil(t, m.IR())
	assert.Nil(t, m.EntryPoint())
	assert.Equal(t, model.ModelState{State: "Loaded", NFeatures: m.NumFeatures(), NOutputs: 3}, m.Info())
}

func TestLoadVariants(t *testing.T) {
	text, err := os.ReadFile(fixture("numeric_missing.txt"))
	require.NoError(t, err)

	fromString, err := forestjit.LoadString(string(text), forestjit.WithLogger(quietLogger()))
	require.NoError(t, err)
	fromReader, err := forestjit.LoadReader(strings.NewReader(string(text)), forestjit.WithLogger(quietLogger()))
	require.NoError(t, err)
	fromFile := load(t, "numeric_missing.txt")

	assert.Equal(t, fromFile.Forest().Fingerprint, fromString.Forest().Fingerprint)
	assert.Equal(t, fromFile.Forest().Fingerprint, fromReader.Forest().Fingerprint)
}

func TestLoadRejectsMalformed(t *testing.T) {
	_, err := forestjit.Load(fixture("bad_child.txt"), forestjit.WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, errors.IsMalformedModel(err))

	_, err = forestjit.LoadString("version=v4\n", forestjit.WithLogger(quietLogger()))
	assert.True(t, errors.IsMalformedModel(err))
}

func TestLoadRejectsBadOptions(t *testing.T) {
	opts := []forestjit.Option{
		forestjit.WithThreads(-1),
		forestjit.WithOptLevel(backend.OptLevel(7)),
		forestjit.WithSmallSetThreshold(-2),
		forestjit.WithBackend(""),
	}
	for _, opt := range opts {
		_, err := forestjit.Load(fixture("numeric_missing.txt"), opt, forestjit.WithLogger(quietLogger()))
		assert.Error(t, err)
	}
}

func TestPureCategoricalModel(t *testing.T) {
	m := load(t, "pure_categorical.txt")
	_, err := m.Compile(backend.O3)
	require.NoError(t, err)

	X := mat.NewDense(6, 3, []float64{
		0, 9, 0,
		4, 5, 1,
		5, 5, 9,
		-1, -1, 0, // negative categories go the default (right) way
		3, 1e12, 0,
		math.NaN(), math.Inf(1), 0, // NaN is category 0, +Inf is out of range
	})
	want := []float64{
		12.616231057968633,
		10.048276920678525,
		9.2489478721549396,
		9.2489478721549396,
		10.048276920678525,
		10.048276920678525,
	}
	got, err := m.PredictCompiled(X, 2)
	require.NoError(t, err)
	assert.Equal(t, want, mat.Col(nil, 0, got))
}

func TestCompileIsIdempotent(t *testing.T) {
	m := load(t, "binary.txt")

	ep, err := m.Compile(backend.O1)
	require.NoError(t, err)
	require.NotNil(t, ep)
	mod := m.IR()
	require.NotNil(t, mod)
	assert.Equal(t, model.Compiled, m.State())
	assert.Equal(t, "Compiled", m.Info().State)

	again, err := m.Compile(backend.O3)
	require.NoError(t, err)
	assert.Same(t, ep, again)
	assert.Same(t, mod, m.IR())
	assert.Equal(t, backend.O1, again.Level())

	viaDefault, err := m.CompileDefault()
	require.NoError(t, err)
	assert.Same(t, ep, viaDefault)
}

func TestConcurrentCompileSharesEntryPoint(t *testing.T) {
	m := load(t, "multiclass.txt")

	const n = 12
	eps := make([]*engine.EntryPoint, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ep, err := m.Compile(backend.O2)
			assert.NoError(t, err)
			eps[i] = ep
		}(i)
	}
	wg.Wait()
	for _, ep := range eps {
		assert.Same(t, eps[0], ep)
	}
}

func TestPredictCompiledRequiresCompile(t *testing.T) {
	m := load(t, "numeric_missing.txt")
	_, err := m.PredictCompiled(mat.NewDense(1, m.NumFeatures(), nil), 1)
	assert.True(t, errors.IsNotCompiled(err))
}

func TestCompiledMatchesInterpreted(t *testing.T) {
	for _, name := range []string{"numeric_missing.txt", "multiclass.txt", "binary.txt", "pure_categorical.txt"} {
		t.Run(name, func(t *testing.T) {
			m := load(t, name, forestjit.WithThreads(3))
			rng := rand.New(rand.NewSource(int64(len(name))))
			n := 64
			X := mat.NewDense(n, m.NumFeatures(), forestgen.Rows(rng, n, m.NumFeatures()))

			interpreted, err := m.Predict(X)
			require.NoError(t, err)
			for r := 0; r < n; r++ {
				row, err := m.PredictRow(mat.Row(nil, r, X))
				require.NoError(t, err)
				assert.Equal(t, mat.Row(nil, r, interpreted), row)
			}

			_, err = m.CompileDefault()
			require.NoError(t, err)
			for _, threads := range []int{0, 1, 4} {
				compiled, err := m.PredictWithThreads(X, threads)
				require.NoError(t, err)
				sameBits(t, interpreted, compiled)
			}
		})
	}
}

func TestRandomForestsThroughFacade(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 4; trial++ {
		f := forestgen.Forest(rng, forestgen.Config{Trees: 16, Features: 5, MaxDepth: 6, CategoricalRate: 0.3, Classes: 1 + trial%3})
		X := mat.NewDense(50, 5, forestgen.Rows(rng, 50, 5))

		interpreted, err := engine.PredictInterpreted(f, X, 1)
		require.NoError(t, err)
		for _, level := range []backend.OptLevel{backend.O0, backend.O3} {
			m := compileForest(t, f, level)
			got, err := m.PredictCompiled(X, 2)
			require.NoError(t, err)
			sameBits(t, interpreted, got)
		}
	}
}

func TestCompileFailureKeepsModelLoaded(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	m, err := forestjit.Load(fixture("numeric_missing.txt"),
		forestjit.WithBackend("does-not-exist"),
		forestjit.WithLogger(logger),
	)
	require.NoError(t, err)

	ep, err := m.Compile(backend.O2)
	assert.Nil(t, ep)
	assert.True(t, errors.IsCompilationError(err))
	assert.Equal(t, model.Loaded, m.State())
	assert.True(t, logger.ContainsMessage("Compilation failed"))

	out, err := m.Predict(mat.NewDense(1, m.NumFeatures(), nil))
	require.NoError(t, err)
	assert.Equal(t, 1, out.RawMatrix().Rows)
}

func TestRowLevelPredictions(t *testing.T) {
	m := load(t, "multiclass.txt")
	x := make([]float64, m.NumFeatures())

	raw, err := m.PredictRaw(x)
	require.NoError(t, err)
	require.Len(t, raw, 3)
	probs, err := m.PredictRow(x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[0]+probs[1]+probs[2], 1e-12)

	leaves, err := m.PredictLeafIndices(x)
	require.NoError(t, err)
	assert.Len(t, leaves, m.NumTrees())

	_, err = m.PredictRow(x[:len(x)-1])
	assert.True(t, errors.IsInvalidInput(err))
	_, err = m.PredictRaw(append(x, 1))
	assert.True(t, errors.IsInvalidInput(err))
	_, err = m.PredictLeafIndices(nil)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestLoggingAndMetrics(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	m, err := forestjit.Load(fixture("numeric_missing.txt"),
		forestjit.WithLogger(logger),
		forestjit.WithMetrics(collector),
		forestjit.WithThreads(1),
	)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Model loaded"))
	assert.True(t, logger.ContainsField(log.ModelFingerprintKey, m.Forest().FingerprintHex()))

	X := mat.NewDense(5, m.NumFeatures(), nil)
	_, err = m.Predict(X)
	require.NoError(t, err)
	_, err = m.Compile(backend.O2)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Model compiled"))
	_, err = m.Predict(X)
	require.NoError(t, err)
	assert.True(t, logger.ContainsField(log.PathKey, log.PathCompiled))
	assert.True(t, logger.ContainsField(log.PathKey, log.PathInterpreted))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["forestjit_compiler_compile_ops_total"])
	assert.True(t, names["forestjit_runtime_predicted_rows_total"])
}

func compileForest(t *testing.T, f *forest.Forest, level backend.OptLevel) *forestjit.Model {
	t.Helper()
	m, err := forestjit.New(f, forestjit.WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = m.Compile(level)
	require.NoError(t, err)
	return m
}
