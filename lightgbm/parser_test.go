package lightgbm

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/forestjit/catbitset"
	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestParsePureCategorical(t *testing.T) {
	f, err := ParseFile(filepath.Join("testdata", "pure_categorical.txt"))
	require.NoError(t, err)

	assert.Equal(t, "v4", f.Version)
	assert.Equal(t, 3, f.NumFeatures)
	assert.Equal(t, 1, f.NumOutputs())
	assert.Equal(t, forest.TransformIdentity, f.Objective.Transform)
	assert.Equal(t, []string{"Column_0", "Column_1", "Column_2"}, f.FeatureNames)
	require.Len(t, f.Trees, 1)

	want := []forest.Node{
		{Kind: forest.KindCategorical, Feature: 1, Categories: catbitset.Set{9}, Bitset: catbitset.Words{512}, Left: 1, Right: 2},
		{Kind: forest.KindLeaf, Value: 12.616231057968633, LeafIndex: 0},
		{Kind: forest.KindCategorical, Feature: 0, Categories: catbitset.Set{0, 1, 2, 3, 4}, Bitset: catbitset.Words{31}, Left: 3, Right: 4},
		{Kind: forest.KindLeaf, Value: 10.048276920678525, LeafIndex: 1},
		{Kind: forest.KindLeaf, Value: 9.2489478721549396, LeafIndex: 2},
	}
	if diff := cmp.Diff(want, f.Trees[0].Nodes); diff != "" {
		t.Errorf("arena mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, f.Trees[0].Depth())
}

func TestParseNumericMissing(t *testing.T) {
	f, err := ParseString(readFixture(t, "numeric_missing.txt"))
	require.NoError(t, err)
	require.Len(t, f.Trees, 3)

	root := f.Trees[0].Node(0)
	assert.Equal(t, forest.KindNumeric, root.Kind)
	assert.Equal(t, forest.MissingNaN, root.Missing)
	assert.True(t, root.DefaultLeft)

	inner := f.Trees[0].Node(root.Left)
	assert.Equal(t, forest.MissingZero, inner.Missing)
	assert.False(t, inner.DefaultLeft)
	assert.Equal(t, uint32(2), inner.Feature)

	assert.Equal(t, 0.1, f.Trees[1].Shrinkage)
	single := f.Trees[2]
	require.Len(t, single.Nodes, 1)
	assert.True(t, single.Nodes[0].IsLeaf())
	assert.Equal(t, 0.01, single.Nodes[0].Value)
}

func TestParseMulticlassAndBinary(t *testing.T) {
	mc, err := ParseFile(filepath.Join("testdata", "multiclass.txt"))
	require.NoError(t, err)
	assert.Equal(t, 3, mc.NumOutputs())
	assert.Equal(t, 3, mc.NumTreePerIteration)
	assert.Equal(t, 2, mc.NumIterations())
	assert.Equal(t, forest.TransformSoftmax, mc.Objective.Transform)

	bin, err := ParseFile(filepath.Join("testdata", "binary.txt"))
	require.NoError(t, err)
	assert.Equal(t, forest.TransformSigmoid, bin.Objective.Transform)
	root := bin.Trees[0].Node(0)
	assert.Equal(t, catbitset.Set{1, 40}, root.Categories)
	assert.Equal(t, forest.MissingNaN, root.Missing)
}

func TestParseFingerprint(t *testing.T) {
	text := readFixture(t, "pure_categorical.txt")
	a, err := ParseString(text)
	require.NoError(t, err)
	b, err := ParseString(text)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotZero(t, a.Fingerprint)

	// trailing sections are part of the fingerprint
	c, err := ParseString(strings.Replace(text, "[num_leaves: 3]", "[num_leaves: 4]", 1))
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestParseAverageOutput(t *testing.T) {
	text := strings.Replace(readFixture(t, "numeric_missing.txt"),
		"objective=regression\n", "objective=regression\naverage_output\n", 1)
	f, err := ParseString(text)
	require.NoError(t, err)
	assert.True(t, f.AverageOutput)
}

func TestParseBadChildFixture(t *testing.T) {
	f, err := ParseFile(filepath.Join("testdata", "bad_child.txt"))
	require.Error(t, err)
	assert.Nil(t, f)

	var malformed *errors.MalformedModelError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 0, malformed.Tree)
	assert.Equal(t, 0, malformed.Node)
	assert.Equal(t, "left_child", malformed.Field)
	assert.Equal(t, 19, malformed.Line)
}

func TestParseRejectsMalformed(t *testing.T) {
	base := readFixture(t, "numeric_missing.txt")
	cat := readFixture(t, "pure_categorical.txt")

	tests := []struct {
		name  string
		text  string
		field string
	}{
		{"missing max_feature_idx", strings.Replace(base, "max_feature_idx=2\n", "", 1), "max_feature_idx"},
		{"missing tree_sizes", strings.Replace(base, "tree_sizes=420 380 120\n", "", 1), "tree_sizes"},
		{"fewer trees than declared", strings.Replace(base, "tree_sizes=420 380 120", "tree_sizes=420 380 120 99", 1), "tree_sizes"},
		{"more trees than declared", strings.Replace(base, "tree_sizes=420 380 120", "tree_sizes=420 380", 1), "tree_sizes"},
		{"feature out of range", strings.Replace(base, "split_feature=0 2\n", "split_feature=0 3\n", 1), "split_feature"},
		{"right child out of range", strings.Replace(base, "right_child=-2 -3\n", "right_child=-2 -7\n", 1), "right_child"},
		{"leaf referenced twice", strings.Replace(base, "right_child=-2 -3\n", "right_child=-2 -1\n", 1), "right_child"},
		{"root referenced as child", strings.Replace(base, "left_child=1 -1\n", "left_child=1 0\n", 1), "left_child"},
		{"array length", strings.Replace(base, "threshold=0.5 1.5\n", "threshold=0.5\n", 1), "threshold"},
		{"leaf count", strings.Replace(base, "leaf_value=-0.5 0.25\n", "leaf_value=-0.5\n", 1), "leaf_value"},
		{"bad number", strings.Replace(base, "threshold=0.5 1.5\n", "threshold=0.5 abc\n", 1), "threshold"},
		{"linear tree", strings.Replace(base, "is_linear=0\nshrinkage=0.1\n\n\nTree=2", "is_linear=1\nshrinkage=0.1\n\n\nTree=2", 1), "is_linear"},
		{"num_leaves not first", strings.Replace(base, "Tree=1\nnum_leaves=2\nnum_cat=0\n", "Tree=1\nnum_cat=0\nnum_leaves=2\n", 1), "num_cat"},
		{"invalid missing type", strings.Replace(base, "decision_type=10 4\n", "decision_type=14 4\n", 1), "decision_type"},
		{"categorical index out of range", strings.Replace(cat, "threshold=0 1\n", "threshold=0 2\n", 1), "threshold"},
		{"cat boundaries past words", strings.Replace(cat, "cat_boundaries=0 1 2\n", "cat_boundaries=0 1 3\n", 1), "cat_boundaries"},
		{"cat boundaries not monotonic", strings.Replace(cat, "cat_boundaries=0 1 2\n", "cat_boundaries=0 2 1\n", 1), "cat_boundaries"},
		{"negative cat word", strings.Replace(cat, "cat_threshold=512 31\n", "cat_threshold=512 -31\n", 1), "cat_threshold"},
		{"unknown objective", strings.Replace(base, "objective=regression\n", "objective=frobnicate\n", 1), "objective"},
		{"tree index gap", strings.Replace(base, "Tree=1\n", "Tree=4\n", 1), "Tree"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, base, tt.text, "mutation did not apply")
			f, err := ParseString(tt.text)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.True(t, errors.IsMalformedModel(err), "got %v", err)

			var malformed *errors.MalformedModelError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.field, malformed.Field, err.Error())
			assert.Greater(t, malformed.Line, 0, err.Error())
		})
	}
}

func TestParseCycleIsRejected(t *testing.T) {
	// node 1 points back at node 0
	text := `tree
version=v4
max_feature_idx=0
objective=regression
tree_sizes=1

Tree=0
num_leaves=3
split_feature=0 0
threshold=1 2
decision_type=0 0
left_child=1 -1
right_child=-2 0
leaf_value=1 2 3
`
	_, err := ParseString(text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "referenced more than once")
}

func TestParseNoTrailingSections(t *testing.T) {
	text := `tree
max_feature_idx=0
tree_sizes=1

Tree=0
num_leaves=1
leaf_value=0.5
`
	f, err := ParseString(text)
	require.NoError(t, err)
	require.Len(t, f.Trees, 1)
	assert.Equal(t, 0.5, f.Trees[0].Nodes[0].Value)
	assert.Equal(t, 1, f.NumTreePerIteration)
	assert.False(t, math.IsNaN(f.Trees[0].Shrinkage))
}
