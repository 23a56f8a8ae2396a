package lightgbm

import (
	"math"

	"github.com/YuminosukeSato/forestjit/catbitset"
	"github.com/YuminosukeSato/forestjit/forest"
)

// decision_type bit layout.
const (
	categoricalMask = 1 << 0
	defaultLeftMask = 1 << 1
	missingShift    = 2
	missingMask     = 3
)

// splitArrays are the per-node columns of one tree section.
type splitArrays struct {
	features    []int64
	thresholds  []float64
	decisions   []int64
	left, right []int32
	leafValues  []float64
	catBounds   []int64
	catWords    catbitset.Words
	numCat      int
	numLeaves   int
	maxFeature  int
	section     *params
}

// buildTree validates one tree section and assembles it into an arena.
func buildTree(section *params, maxFeature int) (*forest.Tree, error) {
	numLeaves, err := section.toInt("num_leaves")
	if err != nil {
		return nil, err
	}
	if numLeaves < 1 {
		return nil, section.errorf(-1, "num_leaves", "must be at least 1, got %d", numLeaves)
	}
	if v, ok := section.values["is_linear"]; ok && v.value != "0" {
		return nil, section.errorf(-1, "is_linear", "linear trees are not supported")
	}

	tree := &forest.Tree{Shrinkage: 1}
	if section.has("shrinkage") {
		s, err := section.toFloat64Slice("shrinkage", 1)
		if err != nil {
			return nil, err
		}
		tree.Shrinkage = s[0]
	}

	leafValues, err := section.toFloat64Slice("leaf_value", numLeaves)
	if err != nil {
		return nil, err
	}
	if numLeaves == 1 {
		tree.Nodes = []forest.Node{{Kind: forest.KindLeaf, Value: leafValues[0]}}
		return tree, nil
	}

	arrays, err := readSplitArrays(section, numLeaves, maxFeature)
	if err != nil {
		return nil, err
	}
	arrays.leafValues = leafValues
	if err := arrays.assemble(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func readSplitArrays(section *params, numLeaves, maxFeature int) (*splitArrays, error) {
	numNodes := numLeaves - 1
	a := &splitArrays{numLeaves: numLeaves, maxFeature: maxFeature, section: section}
	var err error
	if a.features, err = section.toInt64Slice("split_feature", numNodes); err != nil {
		return nil, err
	}
	if a.thresholds, err = section.toFloat64Slice("threshold", numNodes); err != nil {
		return nil, err
	}
	if a.decisions, err = section.toInt64Slice("decision_type", numNodes); err != nil {
		return nil, err
	}
	if a.left, err = section.toInt32Slice("left_child", numNodes); err != nil {
		return nil, err
	}
	if a.right, err = section.toInt32Slice("right_child", numNodes); err != nil {
		return nil, err
	}
	if a.numCat, err = section.toIntDefault("num_cat", 0); err != nil {
		return nil, err
	}
	if a.numCat < 0 {
		return nil, section.errorf(-1, "num_cat", "negative value %d", a.numCat)
	}
	if a.numCat > 0 {
		if err := a.readCategorical(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *splitArrays) readCategorical() error {
	s := a.section
	var err error
	if a.catBounds, err = s.toInt64Slice("cat_boundaries", a.numCat+1); err != nil {
		return err
	}
	raw, err := s.toInt64Slice("cat_threshold", -1)
	if err != nil {
		return err
	}
	if a.catWords, err = catbitset.DecodeInts(raw); err != nil {
		return withLine(withTree(err, s.tree), s.lineOf("cat_threshold"))
	}
	if a.catBounds[0] != 0 {
		return s.errorf(-1, "cat_boundaries", "must start at 0, got %d", a.catBounds[0])
	}
	for i := 1; i < len(a.catBounds); i++ {
		if a.catBounds[i] < a.catBounds[i-1] {
			return s.errorf(-1, "cat_boundaries", "not monotonic at position %d", i)
		}
	}
	if last := a.catBounds[len(a.catBounds)-1]; last != int64(len(a.catWords)) {
		return s.errorf(-1, "cat_boundaries", "ends at %d but cat_threshold has %d words", last, len(a.catWords))
	}
	return nil
}

// decode converts split record i into an AST node without children.
func (a *splitArrays) decode(i int) (forest.Node, error) {
	s := a.section
	feature := a.features[i]
	if feature < 0 || feature > int64(a.maxFeature) {
		return forest.Node{}, s.errorf(i, "split_feature", "feature %d exceeds max_feature_idx %d", feature, a.maxFeature)
	}
	dt := a.decisions[i]
	if dt < 0 || dt > 0xff {
		return forest.Node{}, s.errorf(i, "decision_type", "invalid value %d", dt)
	}
	missing := (dt >> missingShift) & missingMask
	if missing > int64(forest.MissingNaN) {
		return forest.Node{}, s.errorf(i, "decision_type", "invalid missing type %d", missing)
	}
	node := forest.Node{
		Kind:        forest.KindNumeric,
		Feature:     uint32(feature),
		Threshold:   a.thresholds[i],
		DefaultLeft: dt&defaultLeftMask != 0,
		Missing:     forest.MissingType(missing),
	}
	if dt&categoricalMask == 0 {
		if math.IsNaN(node.Threshold) {
			return forest.Node{}, s.errorf(i, "threshold", "NaN threshold")
		}
		return node, nil
	}

	node.Kind = forest.KindCategorical
	t := a.thresholds[i]
	idx := int(t)
	if t != math.Trunc(t) || idx < 0 || idx >= a.numCat {
		return forest.Node{}, s.errorf(i, "threshold", "categorical index %v out of range [0, %d)", t, a.numCat)
	}
	words := a.catWords[a.catBounds[idx]:a.catBounds[idx+1]]
	node.Bitset = append(catbitset.Words(nil), words...)
	node.Categories = catbitset.Decode(node.Bitset)
	node.Threshold = 0
	return node, nil
}

// assemble lays the nodes out in pre-order starting from split record 0.
// Each record and each leaf must be reached exactly once.
func (a *splitArrays) assemble(tree *forest.Tree) error {
	s := a.section
	numNodes := a.numLeaves - 1
	seenNode := make([]bool, numNodes)
	seenLeaf := make([]bool, a.numLeaves)

	type pending struct {
		ref    int32 // >= 0 split record, < 0 ^leaf
		parent forest.NodeID
		left   bool
		from   int // split record holding the reference, -1 for the root
	}
	tree.Nodes = make([]forest.Node, 0, numNodes+a.numLeaves)
	stack := []pending{{ref: 0, parent: -1, from: -1}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := "right_child"
		if p.left {
			key = "left_child"
		}
		id := forest.NodeID(len(tree.Nodes))
		if p.ref < 0 {
			leaf := int(^p.ref)
			if leaf >= a.numLeaves {
				return s.errorf(p.from, key, "leaf %d out of range [0, %d)", leaf, a.numLeaves)
			}
			if seenLeaf[leaf] {
				return s.errorf(p.from, key, "leaf %d referenced more than once", leaf)
			}
			seenLeaf[leaf] = true
			tree.Nodes = append(tree.Nodes, forest.Node{
				Kind:      forest.KindLeaf,
				Value:     a.leafValues[leaf],
				LeafIndex: int32(leaf),
			})
		} else {
			rec := int(p.ref)
			if rec >= numNodes {
				return s.errorf(p.from, key, "child index %d out of range [0, %d)", rec, numNodes)
			}
			if seenNode[rec] {
				return s.errorf(p.from, key, "node %d referenced more than once", rec)
			}
			seenNode[rec] = true
			node, err := a.decode(rec)
			if err != nil {
				return err
			}
			tree.Nodes = append(tree.Nodes, node)
			stack = append(stack,
				pending{ref: a.right[rec], parent: id, from: rec},
				pending{ref: a.left[rec], parent: id, left: true, from: rec},
			)
		}
		if p.parent >= 0 {
			if p.left {
				tree.Nodes[p.parent].Left = id
			} else {
				tree.Nodes[p.parent].Right = id
			}
		}
	}

	for i, ok := range seenNode {
		if !ok {
			return s.errorf(i, "left_child", "node %d is unreachable from the root", i)
		}
	}
	for i, ok := range seenLeaf {
		if !ok {
			return s.errorf(-1, "leaf_value", "leaf %d is unreachable from the root", i)
		}
	}
	return nil
}
