package closure

import (
	"math"

	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/ir"
)

// Optimize returns fn rewritten by the passes enabled at level. fn itself
// is never modified; at O0 it is returned as is.
func Optimize(fn *ir.Func, level backend.OptLevel) *ir.Func {
	if level < backend.O1 {
		return fn
	}
	out := fn.Clone()
	foldConstantBranches(out)
	if level >= backend.O2 {
		threadJumps(out)
		removeDeadBlocks(out)
	}
	return out
}

// foldConstantBranches replaces a conditional branch whose successors both
// return the same constant by that return. It runs to a fixed point so whole
// subtrees with a single output collapse into their root.
func foldConstantBranches(fn *ir.Func) {
	for changed := true; changed; {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			if b.Term.Kind != ir.TermCondBr {
				continue
			}
			then, els := fn.Blocks[b.Term.Then].Term, fn.Blocks[b.Term.Else].Term
			if then.Kind != ir.TermRet || els.Kind != ir.TermRet {
				continue
			}
			if math.Float64bits(then.Value) != math.Float64bits(els.Value) {
				continue
			}
			b.Instrs = nil
			b.Term = ir.Term{Kind: ir.TermRet, Value: then.Value, Leaf: then.Leaf}
			changed = true
		}
	}
}

// threadJumps retargets edges that lead to an empty unconditional branch,
// turns conditional branches with identical successors into plain branches,
// and inlines returns reached by a plain branch.
func threadJumps(fn *ir.Func) {
	resolve := func(target int) int {
		for hops := 0; hops < len(fn.Blocks); hops++ {
			t := fn.Blocks[target]
			if len(t.Instrs) != 0 || t.Term.Kind != ir.TermBr {
				break
			}
			target = t.Term.Then
		}
		return target
	}
	for _, b := range fn.Blocks {
		switch b.Term.Kind {
		case ir.TermBr:
			b.Term.Then = resolve(b.Term.Then)
		case ir.TermCondBr:
			b.Term.Then = resolve(b.Term.Then)
			b.Term.Else = resolve(b.Term.Else)
			if b.Term.Then == b.Term.Else {
				b.Instrs = nil
				b.Term = ir.Term{Kind: ir.TermBr, Then: b.Term.Then}
			}
		}
		if b.Term.Kind == ir.TermBr {
			if t := fn.Blocks[b.Term.Then]; t.Term.Kind == ir.TermRet {
				b.Instrs = nil
				b.Term = t.Term
			}
		}
	}
}

// removeDeadBlocks drops blocks unreachable from the entry and renumbers the
// survivors in their original order.
func removeDeadBlocks(fn *ir.Func) {
	live := make([]bool, len(fn.Blocks))
	live[0] = true
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range ir.Successors(fn.Blocks[i].Term) {
			if !live[s] {
				live[s] = true
				stack = append(stack, s)
			}
		}
	}

	renumber := make([]int, len(fn.Blocks))
	kept := fn.Blocks[:0]
	for i, b := range fn.Blocks {
		if live[i] {
			renumber[i] = len(kept)
			kept = append(kept, b)
		}
	}
	for _, b := range kept {
		switch b.Term.Kind {
		case ir.TermBr:
			b.Term.Then = renumber[b.Term.Then]
		case ir.TermCondBr:
			b.Term.Then = renumber[b.Term.Then]
			b.Term.Else = renumber[b.Term.Else]
		}
	}
	for i := len(kept); i < len(fn.Blocks); i++ {
		fn.Blocks[i] = nil
	}
	fn.Blocks = kept
}
