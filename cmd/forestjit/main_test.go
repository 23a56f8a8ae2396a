package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/forestjit"
)

func fixture(name string) string {
	return filepath.Join("..", "..", "lightgbm", "testdata", name)
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := cliParser()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInfo(t *testing.T) {
	out, err := run(t, "", "info", fixture("multiclass.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "objective:")
	assert.Contains(t, out, "multiclass num_class:3")
	assert.Contains(t, out, "softmax")
	assert.Regexp(t, `trees:\s+6`, out)
	assert.Regexp(t, `outputs:\s+3`, out)
	assert.Regexp(t, `state:\s+Loaded`, out)
}

func TestInfoRequiresModel(t *testing.T) {
	_, err := run(t, "", "info")
	assert.ErrorIs(t, err, errMissingModel)
}

func TestIR(t *testing.T) {
	out, err := run(t, "", "ir", fixture("pure_categorical.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "func tree_0 -> slot 0 {")
	assert.Contains(t, out, "reduce sum")

	stats, err := run(t, "", "ir", fixture("numeric_missing.txt"), "--stats")
	require.NoError(t, err)
	assert.Contains(t, stats, "functions: 3")

	optimized, err := run(t, "", "ir", fixture("numeric_missing.txt"), "--optimized", "--opt-level", "O2")
	require.NoError(t, err)
	assert.Contains(t, optimized, "func tree_2")
}

func TestPredictMatchesLibrary(t *testing.T) {
	input := "0,0,2\n0.5,3.0000000000000004,1.5\n,5,0\n1,nan,?\n"
	path := writeFile(t, "rows.csv", input)

	m, err := forestjit.Load(fixture("numeric_missing.txt"))
	require.NoError(t, err)
	var want strings.Builder
	rows, err := readRows(strings.NewReader(input), m.NumFeatures(), false, nil)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		p, err := m.PredictRow(rows.RawRowView(i))
		require.NoError(t, err)
		want.WriteString(strconv.FormatFloat(p[0], 'g', -1, 64) + "\n")
	}

	for _, extra := range [][]string{nil, {"--interpreted"}, {"--threads", "3", "--opt-level", "3"}} {
		args := append([]string{"predict", fixture("numeric_missing.txt"), "--input", path}, extra...)
		out, err := run(t, "", args...)
		require.NoError(t, err, "args %v", extra)
		assert.Equal(t, want.String(), out, "args %v", extra)
	}

	stdinOut, err := run(t, input, "predict", fixture("numeric_missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, want.String(), stdinOut)
}

func TestPredictHeaderReordersColumns(t *testing.T) {
	// Column_1 decides the first split, Column_0 the second.
	input := "Column_1,extra,Column_2,Column_0\n9,x,0,0\n5,x,1,4\n5,x,9,5\n"
	out, err := run(t, input, "predict", fixture("pure_categorical.txt"), "--header")
	require.NoError(t, err)
	assert.Equal(t, "12.616231057968633\n10.048276920678525\n9.24894787215494\n", out)
}

func TestPredictRawScores(t *testing.T) {
	out, err := run(t, "0,0\n", "predict", fixture("multiclass.txt"), "--raw")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), ","), 3)
}

func TestPredictRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
	}{
		{name: "not a number", input: "0,abc,1\n"},
		{name: "too few columns", input: "0,1\n"},
		{name: "no rows", input: ""},
		{name: "unknown header", input: "a,b,c\n1,2,3\n", args: []string{"--header"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"predict", fixture("numeric_missing.txt")}, tt.args...)
			_, err := run(t, tt.input, args...)
			assert.Error(t, err)
		})
	}
}

func TestVerify(t *testing.T) {
	out, err := run(t, "", "verify", fixture("binary.txt"), "--random", "300", "--threads", "2")
	require.NoError(t, err)
	for _, level := range []string{"O0", "O1", "O2", "O3"} {
		assert.Contains(t, out, level+" rows=300")
	}
	assert.NotContains(t, out, "MISMATCH")

	path := writeFile(t, "rows.csv", "0,0,0\n1,2,3\n")
	out, err = run(t, "", "verify", fixture("numeric_missing.txt"), "--input", path)
	require.NoError(t, err)
	assert.Contains(t, out, "mismatches=0")
}

func TestEnvironmentSelectsModel(t *testing.T) {
	t.Setenv("FORESTJIT_MODEL", fixture("binary.txt"))
	out, err := run(t, "", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "binary")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	_, err := run(t, "", "info", fixture("binary.txt"), "--opt-level", "O7")
	assert.Error(t, err)
}
