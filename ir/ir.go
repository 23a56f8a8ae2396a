// Package ir defines the intermediate representation trees are lowered to
// before a backend turns them into an executable kernel.
//
// A Module holds one Func per tree plus the forest level reduction. A Func
// is a list of basic blocks, entry block first. Each block computes a few
// SSA values and ends in a terminator. Values are block local: an operand
// always refers to an earlier instruction of the same block, so a block
// can be selected into machine code (or a closure) on its own.
package ir

import (
	"fmt"

	"github.com/YuminosukeSato/forestjit/catbitset"
	"github.com/YuminosukeSato/forestjit/forest"
)

// Value names the result of an instruction within its block.
type Value int32

// NoValue marks an unused operand slot.
const NoValue Value = -1

// Type is the type of an SSA value.
type Type uint8

const (
	TypeNone Type = iota
	TypeFloat
	TypeInt
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeFloat:
		return "f64"
	case TypeInt:
		return "i32"
	case TypeBool:
		return "i1"
	default:
		return "void"
	}
}

// Op is an instruction opcode.
type Op uint8

const (
	// OpLoad reads feature Feature of the current row.
	OpLoad Op = iota
	// OpIsNaN tests a float for NaN.
	OpIsNaN
	// OpNaNToZero replaces NaN by 0.
	OpNaNToZero
	// OpIsZero tests |x| <= 1e-35.
	OpIsZero
	// OpCmpLE tests x <= Imm. NaN compares false.
	OpCmpLE
	// OpCatIndex truncates a float toward zero to a category, or -1 if it is
	// NaN or the truncated value is negative, infinite or above MaxInt32.
	OpCatIndex
	// OpIsNeg tests an integer for < 0.
	OpIsNeg
	// OpBitTest tests membership of a category in Bitsets[Pool].
	OpBitTest
	// OpEqAny tests whether a category equals one of Set.
	OpEqAny
	OpOr
	OpAnd
	OpNot
	numOps
)

type opInfo struct {
	name    string
	result  Type
	operand []Type
}

var ops = [numOps]opInfo{
	OpLoad:      {"load", TypeFloat, nil},
	OpIsNaN:     {"isnan", TypeBool, []Type{TypeFloat}},
	OpNaNToZero: {"nantozero", TypeFloat, []Type{TypeFloat}},
	OpIsZero:    {"iszero", TypeBool, []Type{TypeFloat}},
	OpCmpLE:     {"cmple", TypeBool, []Type{TypeFloat}},
	OpCatIndex:  {"catindex", TypeInt, []Type{TypeFloat}},
	OpIsNeg:     {"isneg", TypeBool, []Type{TypeInt}},
	OpBitTest:   {"bittest", TypeBool, []Type{TypeInt}},
	OpEqAny:     {"eqany", TypeBool, []Type{TypeInt}},
	OpOr:        {"or", TypeBool, []Type{TypeBool, TypeBool}},
	OpAnd:       {"and", TypeBool, []Type{TypeBool, TypeBool}},
	OpNot:       {"not", TypeBool, []Type{TypeBool}},
}

func (o Op) String() string {
	if o < numOps {
		return ops[o].name
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Result is the type o produces.
func (o Op) Result() Type {
	if o < numOps {
		return ops[o].result
	}
	return TypeNone
}

// Operands lists the operand types o expects.
func (o Op) Operands() []Type {
	if o < numOps {
		return ops[o].operand
	}
	return nil
}

// Instr is one instruction. Dst is always the instruction's position in its block.
type Instr struct {
	Op      Op
	Dst     Value
	Args    [2]Value
	Feature uint32  // OpLoad
	Imm     float64 // OpCmpLE
	Pool    int     // OpBitTest
	Set     []int32 // OpEqAny
}

// TermKind selects how a block exits.
type TermKind uint8

const (
	// TermRet returns the immediate Value as the tree output.
	TermRet TermKind = iota + 1
	// TermBr jumps to Then.
	TermBr
	// TermCondBr jumps to Then if Cond is true, else to Else.
	TermCondBr
)

func (k TermKind) String() string {
	switch k {
	case TermRet:
		return "ret"
	case TermBr:
		return "br"
	case TermCondBr:
		return "condbr"
	default:
		return fmt.Sprintf("TermKind(%d)", uint8(k))
	}
}

// Term is a block terminator.
type Term struct {
	Kind       TermKind
	Value      float64
	Leaf       int32
	Cond       Value
	Then, Else int
}

// Block is a basic block.
type Block struct {
	Instrs []Instr
	Term   Term
}

// Func evaluates one tree. Blocks[0] is the entry.
type Func struct {
	Name   string
	Tree   int
	Blocks []*Block
}

// Reduction describes how tree outputs combine into a row's prediction.
type Reduction struct {
	// Slots maps tree i to the output slot it accumulates into.
	Slots []int
	// Average divides the sums by Iterations before the transform.
	Average    bool
	Iterations int
	// Transform is applied to every row after averaging. Slope is the
	// sigmoid slope of the transforms that take one.
	Transform forest.TransformKind
	Slope     float64
}

// Objective rebuilds the transform as a forest.Objective.
func (r *Reduction) Objective() forest.Objective {
	return forest.Objective{Transform: r.Transform, Sigmoid: r.Slope}
}

// Finish averages and transforms one row of raw sums. raw and out may alias.
func (r *Reduction) Finish(raw, out []float64) {
	forest.FinishScores(raw, out, r.Average, r.Iterations, r.Objective())
}

// Module is a lowered forest.
type Module struct {
	Name        string
	NumFeatures int
	NumSlots    int
	Funcs       []*Func
	Reduce      Reduction
	Bitsets     []catbitset.Words
}

// Stats counts the blocks and instructions of m.
func (m *Module) Stats() (blocks, instrs int) {
	for _, fn := range m.Funcs {
		blocks += len(fn.Blocks)
		for _, b := range fn.Blocks {
			instrs += len(b.Instrs)
		}
	}
	return blocks, instrs
}

// Clone returns a deep copy of fn that passes may rewrite freely.
func (fn *Func) Clone() *Func {
	out := &Func{Name: fn.Name, Tree: fn.Tree, Blocks: make([]*Block, len(fn.Blocks))}
	for i, b := range fn.Blocks {
		nb := &Block{Term: b.Term, Instrs: make([]Instr, len(b.Instrs))}
		copy(nb.Instrs, b.Instrs)
		for j := range nb.Instrs {
			if s := nb.Instrs[j].Set; s != nil {
				nb.Instrs[j].Set = append([]int32(nil), s...)
			}
		}
		out.Blocks[i] = nb
	}
	return out
}
