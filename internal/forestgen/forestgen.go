// Package forestgen builds random forests and feature rows for differential tests.
package forestgen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/YuminosukeSato/forestjit/catbitset"
	"github.com/YuminosukeSato/forestjit/forest"
)

// Config shapes a generated forest.
type Config struct {
	Trees     int
	Features  int
	Classes   int
	MaxDepth  int
	Objective string
	Average   bool
	// CategoricalRate is the probability a split is categorical.
	CategoricalRate float64
}

// Forest generates a random well-formed forest.
func Forest(rng *rand.Rand, cfg Config) *forest.Forest {
	if cfg.Classes < 1 {
		cfg.Classes = 1
	}
	objective := cfg.Objective
	if cfg.Classes > 1 && objective == "" {
		objective = fmt.Sprintf("multiclass num_class:%d", cfg.Classes)
	}
	obj, err := forest.ParseObjective(objective)
	if err != nil {
		panic(err)
	}
	f := &forest.Forest{
		NumFeatures:         cfg.Features,
		NumClass:            cfg.Classes,
		NumTreePerIteration: cfg.Classes,
		Objective:           obj,
		AverageOutput:       cfg.Average,
		Fingerprint:         rng.Uint64(),
	}
	trees := cfg.Trees - cfg.Trees%cfg.Classes
	for i := 0; i < trees; i++ {
		g := &treeGen{rng: rng, cfg: cfg, tree: &forest.Tree{Shrinkage: 1}}
		g.grow(0)
		f.Trees = append(f.Trees, g.tree)
	}
	return f
}

type treeGen struct {
	rng    *rand.Rand
	cfg    Config
	tree   *forest.Tree
	leaves int32
}

// grow appends a subtree in pre-order and returns its root.
func (g *treeGen) grow(depth int) forest.NodeID {
	id := forest.NodeID(len(g.tree.Nodes))
	if depth >= g.cfg.MaxDepth || (depth > 0 && g.rng.Intn(4) == 0) {
		g.tree.Nodes = append(g.tree.Nodes, forest.Node{
			Kind:      forest.KindLeaf,
			Value:     math.Round(g.rng.NormFloat64()*1e6) / 1e6,
			LeafIndex: g.leaves,
		})
		g.leaves++
		return id
	}

	n := forest.Node{
		Feature:     uint32(g.rng.Intn(g.cfg.Features)),
		DefaultLeft: g.rng.Intn(2) == 0,
		Missing:     forest.MissingType(g.rng.Intn(3)),
	}
	if g.rng.Float64() < g.cfg.CategoricalRate {
		n.Kind = forest.KindCategorical
		n.Bitset = make(catbitset.Words, 1+g.rng.Intn(2))
		for i := range n.Bitset {
			n.Bitset[i] = g.rng.Uint32() & g.rng.Uint32()
		}
		n.Categories = catbitset.Decode(n.Bitset)
	} else {
		n.Kind = forest.KindNumeric
		n.Threshold = float64(g.rng.Intn(21)-10) / 2
	}
	g.tree.Nodes = append(g.tree.Nodes, n)
	left := g.grow(depth + 1)
	right := g.grow(depth + 1)
	g.tree.Nodes[id].Left = left
	g.tree.Nodes[id].Right = right
	return id
}

var specials = []float64{
	math.NaN(), 0, -0.0, 1e-36, -1e-36, math.Inf(1), math.Inf(-1),
	-1, -0.5, -0.999, 1e12, math.MaxInt32 + 1.0, 63.5, 31.9,
}

// Rows generates n row-major rows mixing ordinary values, split thresholds,
// category ids and the values with special routing rules.
func Rows(rng *rand.Rand, n, features int) []float64 {
	data := make([]float64, n*features)
	for i := range data {
		switch rng.Intn(4) {
		case 0:
			data[i] = specials[rng.Intn(len(specials))]
		case 1:
			data[i] = float64(rng.Intn(21)-10) / 2
		case 2:
			data[i] = float64(rng.Intn(70))
		default:
			data[i] = rng.NormFloat64() * 5
		}
	}
	return data
}
