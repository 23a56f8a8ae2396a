package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders m in a readable assembly-like form.
func Print(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %q features=%d slots=%d trees=%d\n", m.Name, m.NumFeatures, m.NumSlots, len(m.Funcs))
	for i, words := range m.Bitsets {
		fmt.Fprintf(&sb, "bitset #%d = %v\n", i, []uint32(words))
	}
	for i, fn := range m.Funcs {
		slot := 0
		if i < len(m.Reduce.Slots) {
			slot = m.Reduce.Slots[i]
		}
		sb.WriteString("\n")
		printFunc(&sb, fn, slot)
	}
	fmt.Fprintf(&sb, "\nreduce sum average=%t iterations=%d transform=%s",
		m.Reduce.Average, m.Reduce.Iterations, m.Reduce.Transform)
	if m.Reduce.Transform.HasSlope() {
		fmt.Fprintf(&sb, " slope=%s", formatFloat(m.Reduce.Slope))
	}
	sb.WriteString("\n")
	return sb.String()
}

// PrintFunc renders a single function.
func PrintFunc(fn *Func) string {
	var sb strings.Builder
	printFunc(&sb, fn, -1)
	return sb.String()
}

func printFunc(sb *strings.Builder, fn *Func, slot int) {
	if slot >= 0 {
		fmt.Fprintf(sb, "func %s -> slot %d {\n", fn.Name, slot)
	} else {
		fmt.Fprintf(sb, "func %s {\n", fn.Name)
	}
	for bi, b := range fn.Blocks {
		fmt.Fprintf(sb, "b%d:\n", bi)
		for _, in := range b.Instrs {
			fmt.Fprintf(sb, "  %%%d = %s\n", in.Dst, formatInstr(in))
		}
		fmt.Fprintf(sb, "  %s\n", formatTerm(b.Term))
	}
	sb.WriteString("}\n")
}

func formatInstr(in Instr) string {
	switch in.Op {
	case OpLoad:
		return fmt.Sprintf("load f%d", in.Feature)
	case OpCmpLE:
		return fmt.Sprintf("cmple %%%d, %s", in.Args[0], formatFloat(in.Imm))
	case OpBitTest:
		return fmt.Sprintf("bittest %%%d, #%d", in.Args[0], in.Pool)
	case OpEqAny:
		parts := make([]string, len(in.Set))
		for i, c := range in.Set {
			parts[i] = strconv.Itoa(int(c))
		}
		return fmt.Sprintf("eqany %%%d, {%s}", in.Args[0], strings.Join(parts, ", "))
	case OpOr, OpAnd:
		return fmt.Sprintf("%s %%%d, %%%d", in.Op, in.Args[0], in.Args[1])
	default:
		return fmt.Sprintf("%s %%%d", in.Op, in.Args[0])
	}
}

func formatTerm(t Term) string {
	switch t.Kind {
	case TermRet:
		return fmt.Sprintf("ret %s ; leaf %d", formatFloat(t.Value), t.Leaf)
	case TermBr:
		return fmt.Sprintf("br b%d", t.Then)
	case TermCondBr:
		return fmt.Sprintf("condbr %%%d, b%d, b%d", t.Cond, t.Then, t.Else)
	default:
		return t.Kind.String()
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
