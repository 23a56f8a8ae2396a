package ir

import (
	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// Verify checks the structural invariants every backend relies on:
// branch targets exist, the control flow graph is acyclic, every operand is
// defined earlier in the same block with the right type, and pool references
// are in range.
func Verify(m *Module) error {
	if m.NumSlots < 1 {
		return errors.Newf("ir: module %q has %d output slots", m.Name, m.NumSlots)
	}
	if len(m.Reduce.Slots) != len(m.Funcs) {
		return errors.Newf("ir: module %q maps %d trees to slots but has %d funcs",
			m.Name, len(m.Reduce.Slots), len(m.Funcs))
	}
	for i, s := range m.Reduce.Slots {
		if s < 0 || s >= m.NumSlots {
			return errors.Newf("ir: tree %d reduces into slot %d of %d", i, s, m.NumSlots)
		}
	}
	if r := m.Reduce; !r.Transform.Valid() {
		return errors.Newf("ir: module %q has unknown transform %s", m.Name, r.Transform)
	} else if r.Transform.HasSlope() && !(r.Slope > 0) {
		return errors.Newf("ir: module %q has %s transform with slope %v", m.Name, r.Transform, r.Slope)
	}
	for _, fn := range m.Funcs {
		if err := verifyFunc(m, fn); err != nil {
			return err
		}
	}
	return nil
}

func verifyFunc(m *Module, fn *Func) error {
	if len(fn.Blocks) == 0 {
		return errors.Newf("ir: %s has no blocks", fn.Name)
	}
	for bi, b := range fn.Blocks {
		if b == nil {
			return errors.Newf("ir: %s block %d is nil", fn.Name, bi)
		}
		types := make([]Type, len(b.Instrs))
		for ii, in := range b.Instrs {
			if err := verifyInstr(m, in, ii, types); err != nil {
				return errors.Wrapf(err, "ir: %s b%d instr %d", fn.Name, bi, ii)
			}
			types[ii] = in.Op.Result()
		}
		if err := verifyTerm(fn, b.Term, types); err != nil {
			return errors.Wrapf(err, "ir: %s b%d", fn.Name, bi)
		}
	}
	return checkAcyclic(fn)
}

func verifyInstr(m *Module, in Instr, pos int, types []Type) error {
	if in.Op >= numOps {
		return errors.Newf("unknown opcode %d", in.Op)
	}
	if int(in.Dst) != pos {
		return errors.Newf("destination %%%d does not match position %d", in.Dst, pos)
	}
	want := in.Op.Operands()
	for k := 0; k < len(in.Args); k++ {
		arg := in.Args[k]
		if k >= len(want) {
			if arg != NoValue {
				return errors.Newf("%s takes %d operands", in.Op, len(want))
			}
			continue
		}
		if arg < 0 || int(arg) >= pos {
			return errors.Newf("operand %%%d used before definition", arg)
		}
		if types[arg] != want[k] {
			return errors.Newf("operand %%%d is %s, %s wants %s", arg, types[arg], in.Op, want[k])
		}
	}
	switch in.Op {
	case OpLoad:
		if int(in.Feature) >= m.NumFeatures {
			return errors.Newf("load of feature %d, module has %d", in.Feature, m.NumFeatures)
		}
	case OpBitTest:
		if in.Pool < 0 || in.Pool >= len(m.Bitsets) {
			return errors.Newf("bitset #%d out of pool range %d", in.Pool, len(m.Bitsets))
		}
	case OpEqAny:
		if len(in.Set) == 0 {
			return errors.New("eqany with an empty set")
		}
	}
	return nil
}

func verifyTerm(fn *Func, t Term, types []Type) error {
	inRange := func(target int) bool { return target >= 0 && target < len(fn.Blocks) }
	switch t.Kind {
	case TermRet:
	case TermBr:
		if !inRange(t.Then) {
			return errors.Newf("br to missing block %d", t.Then)
		}
	case TermCondBr:
		if !inRange(t.Then) || !inRange(t.Else) {
			return errors.Newf("condbr to missing block %d/%d", t.Then, t.Else)
		}
		if t.Cond < 0 || int(t.Cond) >= len(types) {
			return errors.Newf("condbr on undefined value %%%d", t.Cond)
		}
		if types[t.Cond] != TypeBool {
			return errors.Newf("condbr on %s value %%%d", types[t.Cond], t.Cond)
		}
	default:
		return errors.New("block has no terminator")
	}
	return nil
}

// checkAcyclic rejects back edges reachable from the entry block.
func checkAcyclic(fn *Func) error {
	const (
		unvisited = iota
		active
		done
	)
	state := make([]uint8, len(fn.Blocks))
	type frame struct {
		block int
		next  int
	}
	stack := []frame{{block: 0}}
	state[0] = active
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succ := Successors(fn.Blocks[top.block].Term)
		if top.next >= len(succ) {
			state[top.block] = done
			stack = stack[:len(stack)-1]
			continue
		}
		s := succ[top.next]
		top.next++
		switch state[s] {
		case active:
			return errors.Newf("ir: %s has a cycle through b%d", fn.Name, s)
		case unvisited:
			state[s] = active
			stack = append(stack, frame{block: s})
		}
	}
	return nil
}

// Successors lists the blocks t can jump to.
func Successors(t Term) []int {
	switch t.Kind {
	case TermBr:
		return []int{t.Then}
	case TermCondBr:
		return []int{t.Then, t.Else}
	default:
		return nil
	}
}
