package forest

import (
	"fmt"

	"github.com/YuminosukeSato/forestjit/catbitset"
)

// NodeID indexes a node inside its tree's arena.
type NodeID int32

// Kind is the closed set of node variants.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindNumeric
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MissingType is how a split treats missing values.
type MissingType uint8

const (
	MissingNone MissingType = iota
	MissingZero
	MissingNaN
)

func (m MissingType) String() string {
	switch m {
	case MissingNone:
		return "none"
	case MissingZero:
		return "zero"
	case MissingNaN:
		return "nan"
	default:
		return fmt.Sprintf("MissingType(%d)", uint8(m))
	}
}

// ZeroThreshold is the magnitude under which a value counts as zero for MissingZero splits.
const ZeroThreshold = 1e-35

// Node is one arena slot. Which fields are meaningful depends on Kind.
type Node struct {
	Kind Kind

	// decision fields
	Feature     uint32
	Threshold   float64
	Categories  catbitset.Set
	Bitset      catbitset.Words
	Left, Right NodeID
	DefaultLeft bool
	Missing     MissingType

	// leaf fields
	Value     float64
	LeafIndex int32
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.Kind == KindLeaf }

// Tree is an arena of nodes. Nodes are numbered in pre-order with the root at 0.
type Tree struct {
	Nodes     []Node
	Root      NodeID
	Shrinkage float64
}

// Node returns the node stored at id.
func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

// NumLeaves counts the leaves of t.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].Kind == KindLeaf {
			n++
		}
	}
	return n
}

// Depth is the number of decisions on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	type frame struct {
		id    NodeID
		depth int
	}
	maxDepth := 0
	stack := []frame{{t.Root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[f.id]
		if n.Kind == KindLeaf {
			if f.depth > maxDepth {
				maxDepth = f.depth
			}
			continue
		}
		stack = append(stack, frame{n.Right, f.depth + 1}, frame{n.Left, f.depth + 1})
	}
	return maxDepth
}

// Walk visits every node reachable from the root in pre-order, left before right.
func (t *Tree) Walk(fn func(id NodeID, n *Node)) {
	stack := []NodeID{t.Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[id]
		fn(id, n)
		if n.Kind != KindLeaf {
			stack = append(stack, n.Right, n.Left)
		}
	}
}
