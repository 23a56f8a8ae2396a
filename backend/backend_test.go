package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/forestjit/ir"
)

type stubBackend struct{ name string }

func (s stubBackend) Name() string { return s.name }

func (s stubBackend) Compile(*ir.Module, OptLevel) (Kernel, error) {
	return func([]float64, int, []float64, int, int) {}, nil
}

func TestRegisterLookup(t *testing.T) {
	Register(stubBackend{name: "stub-registry"})

	b, err := Lookup("stub-registry")
	require.NoError(t, err)
	assert.Equal(t, "stub-registry", b.Name())
	assert.Contains(t, Names(), "stub-registry")

	assert.Panics(t, func() { Register(stubBackend{name: "stub-registry"}) })
	assert.Panics(t, func() { Register(nil) })

	_, err = Lookup("llvm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "llvm"`)
}

func TestParseOptLevel(t *testing.T) {
	for in, want := range map[string]OptLevel{"0": O0, "1": O1, "O2": O2, "o3": O3} {
		got, err := ParseOptLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"4", "-1", "fast", "O"} {
		_, err := ParseOptLevel(in)
		assert.Error(t, err, in)
	}
	assert.Equal(t, "O2", O2.String())
	assert.False(t, OptLevel(7).Valid())
}
