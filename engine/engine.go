// Package engine is the compiled runtime. It submits lowered IR to a
// registered backend, keeps the resulting kernel behind an EntryPoint and
// runs batched predictions over row ranges with a caller-chosen number of
// workers.
package engine

import (
	"time"

	"github.com/YuminosukeSato/forestjit/backend"
	_ "github.com/YuminosukeSato/forestjit/backend/closure" // default backend
	"github.com/YuminosukeSato/forestjit/ir"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

// EntryPoint is a compiled forest. It is immutable and safe for concurrent
// use by any number of predictions.
type EntryPoint struct {
	kernel   backend.Kernel
	module   *ir.Module
	backend  string
	level    backend.OptLevel
	duration time.Duration
}

// Module returns the IR the entry point was compiled from.
func (ep *EntryPoint) Module() *ir.Module { return ep.module }

// Backend returns the name of the backend that produced the kernel.
func (ep *EntryPoint) Backend() string { return ep.backend }

// Level returns the optimization level used.
func (ep *EntryPoint) Level() backend.OptLevel { return ep.level }

// CompileDuration returns the wall time spent inside the backend.
func (ep *EntryPoint) CompileDuration() time.Duration { return ep.duration }

// NumFeatures returns the row width the kernel reads.
func (ep *EntryPoint) NumFeatures() int { return ep.module.NumFeatures }

// NumOutputs returns the number of output columns per row.
func (ep *EntryPoint) NumOutputs() int { return ep.module.NumSlots }

// Options configures Compile.
type Options struct {
	// Backend is the registry name; empty selects backend.DefaultName.
	Backend string
	Level   backend.OptLevel
	Logger  log.Logger
}

// Compile hands m to the configured backend and wraps the kernel it returns.
// Every failure, including a panicking backend, is reported as a
// CompilationError.
func Compile(m *ir.Module, opts Options) (*EntryPoint, error) {
	name := opts.Backend
	if name == "" {
		name = backend.DefaultName
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("engine")
	}
	if m == nil {
		return nil, errors.NewCompilationError(name, "no module to compile", nil)
	}
	b, err := backend.Lookup(name)
	if err != nil {
		return nil, errors.NewCompilationError(name, "backend not available", err)
	}

	start := time.Now()
	var kernel backend.Kernel
	err = errors.SafeExecute("engine.Compile", func() error {
		var cerr error
		kernel, cerr = b.Compile(m, opts.Level)
		return cerr
	})
	elapsed := time.Since(start)
	switch {
	case err != nil && errors.IsCompilationError(err):
		return nil, err
	case err != nil:
		return nil, errors.NewCompilationError(name, "backend failed", err)
	case kernel == nil:
		return nil, errors.NewCompilationError(name, "backend returned no kernel", nil)
	}

	blocks, instrs := m.Stats()
	logger.Debug("Module compiled",
		log.BackendKey, name,
		log.OptLevelKey, opts.Level.String(),
		log.BlocksKey, blocks,
		log.InstrsKey, instrs,
		log.DurationMsKey, float64(elapsed.Microseconds())/1000,
	)
	return &EntryPoint{
		kernel:   kernel,
		module:   m,
		backend:  name,
		level:    opts.Level,
		duration: elapsed,
	}, nil
}
