// Package codegen lowers a forest.Forest into an ir.Module.
//
// Each tree becomes one function with a block per AST node, numbered in
// pre-order. Decision nodes load their feature, fold the missing value rules
// into a single boolean and branch on it. Leaves return their value as an
// immediate. The decision rules are the ones implemented by package interp.
package codegen

import (
	"fmt"

	"github.com/YuminosukeSato/forestjit/catbitset"
	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/ir"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// DefaultSmallSetThreshold is the largest category set lowered to equality tests.
const DefaultSmallSetThreshold = 4

type config struct {
	smallSet int
	name     string
}

// Option configures Lower.
type Option func(*config)

// WithSmallSetThreshold sets the largest category set lowered to OpEqAny
// rather than a bitset test. Zero always uses bitset tests.
func WithSmallSetThreshold(n int) Option {
	return func(c *config) {
		c.smallSet = n
	}
}

// WithName sets the module name.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Lower translates f into a verified IR module.
func Lower(f *forest.Forest, opts ...Option) (*ir.Module, error) {
	cfg := config{smallSet: DefaultSmallSetThreshold, name: fmt.Sprintf("forest_%016x", f.Fingerprint)}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &ir.Module{
		Name:        cfg.name,
		NumFeatures: f.NumFeatures,
		NumSlots:    f.NumOutputs(),
		Funcs:       make([]*ir.Func, len(f.Trees)),
		Reduce: ir.Reduction{
			Slots:      make([]int, len(f.Trees)),
			Average:    f.AverageOutput,
			Iterations: f.NumIterations(),
			Transform:  f.Objective.Transform,
			Slope:      f.Objective.Sigmoid,
		},
	}
	l := &lowerer{module: m, cfg: cfg, pool: map[string]int{}}
	for i, t := range f.Trees {
		m.Funcs[i] = l.lowerTree(i, t)
		m.Reduce.Slots[i] = f.Slot(i)
	}
	if err := ir.Verify(m); err != nil {
		return nil, errors.Wrap(err, "codegen: lowered module failed verification")
	}
	return m, nil
}

type lowerer struct {
	module *ir.Module
	cfg    config
	// pool deduplicates identical bitsets across trees.
	pool map[string]int
}

func (l *lowerer) lowerTree(index int, t *forest.Tree) *ir.Func {
	fn := &ir.Func{Name: fmt.Sprintf("tree_%d", index), Tree: index}
	blockOf := make(map[forest.NodeID]int, len(t.Nodes))
	t.Walk(func(id forest.NodeID, _ *forest.Node) {
		blockOf[id] = len(blockOf)
	})
	fn.Blocks = make([]*ir.Block, len(blockOf))
	t.Walk(func(id forest.NodeID, n *forest.Node) {
		fn.Blocks[blockOf[id]] = l.lowerNode(n, blockOf)
	})
	return fn
}

func (l *lowerer) lowerNode(n *forest.Node, blockOf map[forest.NodeID]int) *ir.Block {
	b := &blockBuilder{}
	switch n.Kind {
	case forest.KindLeaf:
		b.block.Term = ir.Term{Kind: ir.TermRet, Value: n.Value, Leaf: n.LeafIndex}
		return &b.block
	case forest.KindNumeric:
		l.lowerNumeric(b, n)
	case forest.KindCategorical:
		l.lowerCategorical(b, n)
	default:
		panic("codegen: unhandled node kind " + n.Kind.String())
	}
	b.block.Term = ir.Term{
		Kind: ir.TermCondBr,
		Cond: b.last(),
		Then: blockOf[n.Left],
		Else: blockOf[n.Right],
	}
	return &b.block
}

// lowerNumeric leaves the "goes left" condition as the block's last value.
func (l *lowerer) lowerNumeric(b *blockBuilder, n *forest.Node) {
	x := b.load(n.Feature)
	switch n.Missing {
	case forest.MissingNone:
		x = b.unary(ir.OpNaNToZero, x)
		b.cmpLE(x, n.Threshold)
	case forest.MissingZero:
		x = b.unary(ir.OpNaNToZero, x)
		zero := b.unary(ir.OpIsZero, x)
		le := b.cmpLE(x, n.Threshold)
		if n.DefaultLeft {
			b.binary(ir.OpOr, zero, le)
		} else {
			b.binary(ir.OpAnd, b.unary(ir.OpNot, zero), le)
		}
	case forest.MissingNaN:
		// NaN compares false, so it already goes right.
		if n.DefaultLeft {
			nan := b.unary(ir.OpIsNaN, x)
			b.binary(ir.OpOr, nan, b.cmpLE(x, n.Threshold))
		} else {
			b.cmpLE(x, n.Threshold)
		}
	default:
		panic("codegen: unhandled missing type " + n.Missing.String())
	}
}

// lowerCategorical leaves the "goes left" condition as the block's last value.
func (l *lowerer) lowerCategorical(b *blockBuilder, n *forest.Node) {
	x := b.load(n.Feature)
	if n.Missing != forest.MissingNaN {
		x = b.unary(ir.OpNaNToZero, x)
	}
	cat := b.unary(ir.OpCatIndex, x)

	var member ir.Value
	if len(n.Categories) > 0 && len(n.Categories) <= l.cfg.smallSet {
		set := make([]int32, len(n.Categories))
		for i, c := range n.Categories {
			set[i] = int32(c)
		}
		member = b.emit(ir.Instr{Op: ir.OpEqAny, Args: [2]ir.Value{cat, ir.NoValue}, Set: set})
	} else {
		member = b.emit(ir.Instr{Op: ir.OpBitTest, Args: [2]ir.Value{cat, ir.NoValue}, Pool: l.intern(n.Bitset)})
	}
	if n.DefaultLeft {
		b.binary(ir.OpOr, member, b.unary(ir.OpIsNeg, cat))
	}
}

func (l *lowerer) intern(words catbitset.Words) int {
	key := fmt.Sprint([]uint32(words))
	if idx, ok := l.pool[key]; ok {
		return idx
	}
	idx := len(l.module.Bitsets)
	l.module.Bitsets = append(l.module.Bitsets, words)
	l.pool[key] = idx
	return idx
}

// blockBuilder appends SSA instructions to a single block.
type blockBuilder struct {
	block ir.Block
}

func (b *blockBuilder) emit(in ir.Instr) ir.Value {
	in.Dst = ir.Value(len(b.block.Instrs))
	b.block.Instrs = append(b.block.Instrs, in)
	return in.Dst
}

func (b *blockBuilder) last() ir.Value {
	return ir.Value(len(b.block.Instrs) - 1)
}

func (b *blockBuilder) load(feature uint32) ir.Value {
	return b.emit(ir.Instr{Op: ir.OpLoad, Args: [2]ir.Value{ir.NoValue, ir.NoValue}, Feature: feature})
}

func (b *blockBuilder) unary(op ir.Op, v ir.Value) ir.Value {
	return b.emit(ir.Instr{Op: op, Args: [2]ir.Value{v, ir.NoValue}})
}

func (b *blockBuilder) binary(op ir.Op, x, y ir.Value) ir.Value {
	return b.emit(ir.Instr{Op: op, Args: [2]ir.Value{x, y}})
}

func (b *blockBuilder) cmpLE(x ir.Value, threshold float64) ir.Value {
	return b.emit(ir.Instr{Op: ir.OpCmpLE, Args: [2]ir.Value{x, ir.NoValue}, Imm: threshold})
}
