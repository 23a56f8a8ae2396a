package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/forestjit/catbitset"
	"github.com/YuminosukeSato/forestjit/forest"
)

var none = [2]Value{NoValue, NoValue}

// x0 <= 0.5 ? 1 : (x1 in #0 ? 2 : 3)
func sampleModule() *Module {
	fn := &Func{Name: "tree_0", Blocks: []*Block{
		{
			Instrs: []Instr{
				{Op: OpLoad, Dst: 0, Args: none, Feature: 0},
				{Op: OpNaNToZero, Dst: 1, Args: [2]Value{0, NoValue}},
				{Op: OpCmpLE, Dst: 2, Args: [2]Value{1, NoValue}, Imm: 0.5},
			},
			Term: Term{Kind: TermCondBr, Cond: 2, Then: 1, Else: 2},
		},
		{Term: Term{Kind: TermRet, Value: 1, Leaf: 0}},
		{
			Instrs: []Instr{
				{Op: OpLoad, Dst: 0, Args: none, Feature: 1},
				{Op: OpNaNToZero, Dst: 1, Args: [2]Value{0, NoValue}},
				{Op: OpCatIndex, Dst: 2, Args: [2]Value{1, NoValue}},
				{Op: OpBitTest, Dst: 3, Args: [2]Value{2, NoValue}, Pool: 0},
			},
			Term: Term{Kind: TermCondBr, Cond: 3, Then: 3, Else: 4},
		},
		{Term: Term{Kind: TermRet, Value: 2, Leaf: 1}},
		{Term: Term{Kind: TermRet, Value: 3, Leaf: 2}},
	}}
	return &Module{
		Name:        "sample",
		NumFeatures: 2,
		NumSlots:    1,
		Funcs:       []*Func{fn},
		Bitsets:     []catbitset.Words{{576}},
		Reduce: Reduction{
			Slots:      []int{0},
			Iterations: 1,
			Transform:  forest.TransformIdentity,
		},
	}
}

func TestVerifyAcceptsWellFormed(t *testing.T) {
	require.NoError(t, Verify(sampleModule()))
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Module)
		msg    string
	}{
		{"missing target", func(m *Module) { m.Funcs[0].Blocks[0].Term.Else = 9 }, "missing block"},
		{"no terminator", func(m *Module) { m.Funcs[0].Blocks[1].Term = Term{} }, "no terminator"},
		{"use before def", func(m *Module) { m.Funcs[0].Blocks[0].Instrs[1].Args[0] = 2 }, "before definition"},
		{"operand type", func(m *Module) { m.Funcs[0].Blocks[2].Instrs[3].Args[0] = 1 }, "wants i32"},
		{"cond not bool", func(m *Module) { m.Funcs[0].Blocks[0].Term.Cond = 1 }, "condbr on f64"},
		{"feature range", func(m *Module) { m.Funcs[0].Blocks[2].Instrs[0].Feature = 2 }, "load of feature 2"},
		{"pool range", func(m *Module) { m.Funcs[0].Blocks[2].Instrs[3].Pool = 1 }, "pool range"},
		{"cycle", func(m *Module) { m.Funcs[0].Blocks[1].Term = Term{Kind: TermBr, Then: 0} }, "cycle"},
		{"slot range", func(m *Module) { m.Reduce.Slots[0] = 1 }, "slot 1"},
		{"unknown transform", func(m *Module) { m.Reduce.Transform = forest.TransformKind(99) }, "unknown transform"},
		{"sigmoid without slope", func(m *Module) { m.Reduce.Transform = forest.TransformSigmoid }, "slope 0"},
		{"extra operand", func(m *Module) { m.Funcs[0].Blocks[0].Instrs[0].Args[0] = 0 }, "takes 0 operands"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			err := Verify(m)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPrint(t *testing.T) {
	out := Print(sampleModule())
	for _, want := range []string{
		`module "sample" features=2 slots=1 trees=1`,
		"bitset #0 = [576]",
		"func tree_0 -> slot 0 {",
		"%0 = load f0",
		"%2 = cmple %1, 0.5",
		"%3 = bittest %2, #0",
		"condbr %3, b3, b4",
		"ret 3 ; leaf 2",
		"reduce sum average=false iterations=1 transform=identity",
	} {
		assert.Contains(t, out, want)
	}
}

func TestReductionFinish(t *testing.T) {
	m := sampleModule()
	m.Reduce.Average = true
	m.Reduce.Iterations = 2
	m.Reduce.Transform = forest.TransformSigmoid
	m.Reduce.Slope = 0.5
	require.NoError(t, Verify(m))

	row := []float64{3}
	m.Reduce.Finish(row, row)
	assert.Equal(t, 1.0/(1.0+math.Exp(-0.75)), row[0])
	assert.Contains(t, Print(m), "reduce sum average=true iterations=2 transform=sigmoid slope=0.5\n")
}

func TestCloneIsDeep(t *testing.T) {
	m := sampleModule()
	m.Funcs[0].Blocks[2].Instrs[3] = Instr{Op: OpEqAny, Dst: 3, Args: [2]Value{2, NoValue}, Set: []int32{6, 9}}
	clone := m.Funcs[0].Clone()

	clone.Blocks[0].Term.Then = 2
	clone.Blocks[2].Instrs[3].Set[0] = 7

	assert.Equal(t, 1, m.Funcs[0].Blocks[0].Term.Then)
	assert.Equal(t, int32(6), m.Funcs[0].Blocks[2].Instrs[3].Set[0])
}

func TestStatsAndOps(t *testing.T) {
	blocks, instrs := sampleModule().Stats()
	assert.Equal(t, 5, blocks)
	assert.Equal(t, 7, instrs)

	for op := OpLoad; op < numOps; op++ {
		assert.NotEqual(t, TypeNone, op.Result(), op.String())
	}
	assert.Equal(t, "Op(200)", Op(200).String())
}
