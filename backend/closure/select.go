package closure

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/ir"
)

type (
	treeFunc  func(row []float64) float64
	boolFunc  func(row []float64) bool
	floatFunc func(row []float64) float64
	intFunc   func(row []float64) int
)

// selector turns the blocks of one function into closures. Blocks are
// selected once each; a block shared by several predecessors gets one closure.
type selector struct {
	module *ir.Module
	fn     *ir.Func
	fuse   bool
	memo   []treeFunc
}

func (s *selector) block(i int) treeFunc {
	if f := s.memo[i]; f != nil {
		return f
	}
	b := s.fn.Blocks[i]
	var f treeFunc
	switch b.Term.Kind {
	case ir.TermRet:
		v := b.Term.Value
		f = func([]float64) float64 { return v }
	case ir.TermBr:
		f = s.block(b.Term.Then)
	case ir.TermCondBr:
		then, els := s.block(b.Term.Then), s.block(b.Term.Else)
		if s.fuse {
			if fused := s.fused(b, then, els); fused != nil {
				f = fused
				break
			}
		}
		cond := s.boolValue(b, b.Term.Cond)
		f = func(row []float64) float64 {
			if cond(row) {
				return then(row)
			}
			return els(row)
		}
	default:
		panic(fmt.Sprintf("closure: block %d of %s has terminator %s", i, s.fn.Name, b.Term.Kind))
	}
	s.memo[i] = f
	return f
}

// fused matches the numeric split shapes produced by lowering and returns a
// single closure that loads, compares and branches. It returns nil when the
// block does not match.
func (s *selector) fused(b *ir.Block, then, els treeFunc) treeFunc {
	cond := b.Instrs[b.Term.Cond]
	switch cond.Op {
	case ir.OpCmpLE:
		src := b.Instrs[cond.Args[0]]
		threshold := cond.Imm
		switch {
		case src.Op == ir.OpLoad:
			feature := src.Feature
			return func(row []float64) float64 {
				if row[feature] <= threshold {
					return then(row)
				}
				return els(row)
			}
		case src.Op == ir.OpNaNToZero && b.Instrs[src.Args[0]].Op == ir.OpLoad:
			feature := b.Instrs[src.Args[0]].Feature
			return func(row []float64) float64 {
				x := row[feature]
				if x != x {
					x = 0
				}
				if x <= threshold {
					return then(row)
				}
				return els(row)
			}
		}
	case ir.OpOr:
		nan, le := b.Instrs[cond.Args[0]], b.Instrs[cond.Args[1]]
		if nan.Op != ir.OpIsNaN || le.Op != ir.OpCmpLE || nan.Args[0] != le.Args[0] {
			return nil
		}
		src := b.Instrs[le.Args[0]]
		if src.Op != ir.OpLoad {
			return nil
		}
		feature, threshold := src.Feature, le.Imm
		return func(row []float64) float64 {
			x := row[feature]
			if x != x || x <= threshold {
				return then(row)
			}
			return els(row)
		}
	}
	return nil
}

func (s *selector) boolValue(b *ir.Block, v ir.Value) boolFunc {
	in := b.Instrs[v]
	switch in.Op {
	case ir.OpIsNaN:
		x := s.floatValue(b, in.Args[0])
		return func(row []float64) bool { return math.IsNaN(x(row)) }
	case ir.OpIsZero:
		x := s.floatValue(b, in.Args[0])
		return func(row []float64) bool {
			v := x(row)
			return v >= -forest.ZeroThreshold && v <= forest.ZeroThreshold
		}
	case ir.OpCmpLE:
		threshold := in.Imm
		if src := b.Instrs[in.Args[0]]; src.Op == ir.OpLoad {
			feature := src.Feature
			return func(row []float64) bool { return row[feature] <= threshold }
		}
		x := s.floatValue(b, in.Args[0])
		return func(row []float64) bool { return x(row) <= threshold }
	case ir.OpIsNeg:
		c := s.intValue(b, in.Args[0])
		return func(row []float64) bool { return c(row) < 0 }
	case ir.OpBitTest:
		c := s.intValue(b, in.Args[0])
		words := s.module.Bitsets[in.Pool]
		return func(row []float64) bool { return words.Contains(c(row)) }
	case ir.OpEqAny:
		c := s.intValue(b, in.Args[0])
		return eqAny(c, in.Set)
	case ir.OpOr:
		x, y := s.boolValue(b, in.Args[0]), s.boolValue(b, in.Args[1])
		return func(row []float64) bool { return x(row) || y(row) }
	case ir.OpAnd:
		x, y := s.boolValue(b, in.Args[0]), s.boolValue(b, in.Args[1])
		return func(row []float64) bool { return x(row) && y(row) }
	case ir.OpNot:
		x := s.boolValue(b, in.Args[0])
		return func(row []float64) bool { return !x(row) }
	default:
		panic(fmt.Sprintf("closure: %s does not produce a bool", in.Op))
	}
}

func eqAny(c intFunc, set []int32) boolFunc {
	switch len(set) {
	case 1:
		a := int(set[0])
		return func(row []float64) bool { return c(row) == a }
	case 2:
		a, b := int(set[0]), int(set[1])
		return func(row []float64) bool {
			v := c(row)
			return v == a || v == b
		}
	default:
		members := make([]int, len(set))
		for i, m := range set {
			members[i] = int(m)
		}
		return func(row []float64) bool {
			v := c(row)
			for _, m := range members {
				if v == m {
					return true
				}
			}
			return false
		}
	}
}

func (s *selector) floatValue(b *ir.Block, v ir.Value) floatFunc {
	in := b.Instrs[v]
	switch in.Op {
	case ir.OpLoad:
		feature := in.Feature
		return func(row []float64) float64 { return row[feature] }
	case ir.OpNaNToZero:
		x := s.floatValue(b, in.Args[0])
		return func(row []float64) float64 {
			v := x(row)
			if v != v {
				return 0
			}
			return v
		}
	default:
		panic(fmt.Sprintf("closure: %s does not produce a float", in.Op))
	}
}

func (s *selector) intValue(b *ir.Block, v ir.Value) intFunc {
	in := b.Instrs[v]
	switch in.Op {
	case ir.OpCatIndex:
		x := s.floatValue(b, in.Args[0])
		return func(row []float64) int {
			v := x(row)
			if v != v {
				return -1
			}
			t := math.Trunc(v)
			if t < 0 || t > math.MaxInt32 {
				return -1
			}
			return int(t)
		}
	default:
		panic(fmt.Sprintf("closure: %s does not produce an int", in.Op))
	}
}
