package forestjit

import (
	"runtime"

	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/codegen"
	"github.com/YuminosukeSato/forestjit/metrics"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

// DefaultOptLevel is the level CompileDefault uses unless WithOptLevel says otherwise.
const DefaultOptLevel = backend.O2

// Option is a function that configures a Model
type Option func(*options)

type options struct {
	threads  int
	level    backend.OptLevel
	backend  string
	logger   log.Logger
	metrics  *metrics.Collector
	smallSet int
}

func defaultOptions() options {
	return options{
		threads:  runtime.NumCPU(),
		level:    DefaultOptLevel,
		backend:  backend.DefaultName,
		smallSet: codegen.DefaultSmallSetThreshold,
	}
}

func (o *options) validate() error {
	if o.threads < 0 {
		return errors.Newf("forestjit: thread count must be >= 0, got %d", o.threads)
	}
	if !o.level.Valid() {
		return errors.Newf("forestjit: unsupported optimization level %d", int(o.level))
	}
	if o.smallSet < 0 {
		return errors.Newf("forestjit: small set threshold must be >= 0, got %d", o.smallSet)
	}
	if o.backend == "" {
		return errors.New("forestjit: backend name must not be empty")
	}
	return nil
}

// WithThreads sets the number of workers Predict uses. 0 or 1 predicts on
// the calling goroutine.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// WithOptLevel sets the optimization level used by CompileDefault.
func WithOptLevel(level backend.OptLevel) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithBackend selects a registered code generation backend by name.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithLogger replaces the logger obtained from the global provider.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records compile and predict metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithSmallSetThreshold sets the largest categorical set lowered to
// equality tests instead of a bitset lookup.
func WithSmallSetThreshold(n int) Option {
	return func(o *options) {
		o.smallSet = n
	}
}
