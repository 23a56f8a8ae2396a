// Package lightgbm reads LightGBM text model dumps into a forest.Forest.
//
// The parser accepts the format written by Booster.save_model: a header
// section, one "Tree=N" section per tree, "end of trees", then trailing
// sections (feature importances, parameters) that are skipped. Every
// structural problem is reported as a MalformedModelError carrying the tree,
// node, field and line involved; no partial Forest is ever returned.
package lightgbm

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/YuminosukeSato/forestjit/forest"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

const endOfTrees = "end of trees"

// lineReader yields trimmed lines and counts them from 1.
type lineReader struct {
	r       *bufio.Reader
	line    int
	eof     bool
	pending *string
}

// unread pushes line back so the next call to next returns it again.
func (lr *lineReader) unread(line string) {
	lr.pending = &line
}

func (lr *lineReader) next() (string, bool, error) {
	if lr.pending != nil {
		s := *lr.pending
		lr.pending = nil
		return s, true, nil
	}
	if lr.eof {
		return "", false, nil
	}
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", false, errors.Wrap(err, "read model")
	}
	if err == io.EOF {
		lr.eof = true
		if s == "" {
			return "", false, nil
		}
	}
	lr.line++
	return strings.TrimSpace(s), true, nil
}

// ParseFile parses the model stored at path.
func ParseFile(path string) (*forest.Forest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", path)
	}
	defer file.Close()
	return Parse(file)
}

// ParseString parses an in-memory model.
func ParseString(s string) (*forest.Forest, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads a complete model from r.
func Parse(r io.Reader) (*forest.Forest, error) {
	h := xxhash.New()
	lr := &lineReader{r: bufio.NewReader(io.TeeReader(r, h))}

	header, average, err := readHeader(lr)
	if err != nil {
		return nil, err
	}
	f, declaredTrees, err := buildHeader(header, average)
	if err != nil {
		return nil, err
	}

	for {
		line, ok, err := lr.next()
		if err != nil {
			return nil, err
		}
		if !ok || line == endOfTrees {
			break
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "Tree=") {
			return nil, errors.NewMalformedModelErrorf(len(f.Trees), -1, lr.line, "",
				"unexpected line %q before %q", truncate(line), endOfTrees)
		}
		idx, convErr := strconv.Atoi(strings.TrimPrefix(line, "Tree="))
		if convErr != nil || idx != len(f.Trees) {
			return nil, errors.NewMalformedModelErrorf(len(f.Trees), -1, lr.line, "Tree",
				"expected Tree=%d, got %q", len(f.Trees), line)
		}
		if idx >= declaredTrees {
			return nil, errors.NewMalformedModelErrorf(idx, -1, lr.line, "tree_sizes",
				"more trees than the %d declared", declaredTrees)
		}
		section, err := readSection(lr, idx)
		if err != nil {
			return nil, err
		}
		tree, err := buildTree(section, f.NumFeatures-1)
		if err != nil {
			return nil, err
		}
		f.Trees = append(f.Trees, tree)
	}

	if len(f.Trees) != declaredTrees {
		return nil, errors.NewMalformedModelErrorf(-1, -1, header.lineOf("tree_sizes"), "tree_sizes",
			"declared %d trees, found %d", declaredTrees, len(f.Trees))
	}
	if per := f.NumTreePerIteration; len(f.Trees)%per != 0 {
		return nil, errors.NewMalformedModelErrorf(-1, -1, header.lineOf("num_tree_per_iteration"),
			"num_tree_per_iteration", "%d trees is not a multiple of %d", len(f.Trees), per)
	}

	// Trailing sections only matter for the fingerprint.
	if _, err := io.Copy(io.Discard, lr.r); err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	f.Fingerprint = h.Sum64()

	log.GetLoggerWithName("lightgbm").Debug("Model parsed",
		log.TreesKey, len(f.Trees),
		log.FeaturesKey, f.NumFeatures,
		log.ObjectiveKey, f.Objective.Name,
		log.ModelFingerprintKey, f.FingerprintHex(),
	)
	return f, nil
}

// readHeader collects key=value lines up to the first blank line that follows
// at least one of them. The "average_output" flag line has no value.
func readHeader(lr *lineReader) (*params, bool, error) {
	header := newParams(-1, 1)
	average := false
	for {
		line, ok, err := lr.next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		if line == "" {
			if len(header.keys) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "Tree=") || line == endOfTrees {
			lr.unread(line)
			break
		}
		key, value, isKV := strings.Cut(line, "=")
		if !isKV {
			if line == "average_output" {
				average = true
			}
			continue
		}
		header.set(strings.TrimSpace(key), strings.TrimSpace(value), lr.line)
	}
	return header, average, nil
}

func buildHeader(header *params, average bool) (*forest.Forest, int, error) {
	f := &forest.Forest{AverageOutput: average}
	if v, ok := header.values["version"]; ok {
		f.Version = v.value
	}

	maxFeature, err := header.toInt("max_feature_idx")
	if err != nil {
		return nil, 0, err
	}
	if maxFeature < 0 {
		return nil, 0, header.errorf(-1, "max_feature_idx", "negative value %d", maxFeature)
	}
	f.NumFeatures = maxFeature + 1

	if !header.has("tree_sizes") {
		return nil, 0, header.errorf(-1, "tree_sizes", "missing required field")
	}
	declaredTrees := len(header.toStrings("tree_sizes"))

	if f.NumClass, err = header.toIntDefault("num_class", 1); err != nil {
		return nil, 0, err
	}
	if f.NumClass < 1 {
		return nil, 0, header.errorf(-1, "num_class", "must be at least 1, got %d", f.NumClass)
	}
	if f.NumTreePerIteration, err = header.toIntDefault("num_tree_per_iteration", f.NumClass); err != nil {
		return nil, 0, err
	}
	if f.NumTreePerIteration < 1 || f.NumTreePerIteration > f.NumOutputs() {
		return nil, 0, header.errorf(-1, "num_tree_per_iteration",
			"%d is incompatible with %d outputs", f.NumTreePerIteration, f.NumOutputs())
	}
	if f.LabelIndex, err = header.toIntDefault("label_index", 0); err != nil {
		return nil, 0, err
	}

	objective := ""
	if v, ok := header.values["objective"]; ok {
		objective = v.value
	}
	if f.Objective, err = forest.ParseObjective(objective); err != nil {
		return nil, 0, withLine(err, header.lineOf("objective"))
	}
	if f.Objective.NumClass > 1 && f.Objective.NumClass != f.NumClass {
		return nil, 0, header.errorf(-1, "objective",
			"objective declares %d classes but num_class is %d", f.Objective.NumClass, f.NumClass)
	}

	f.FeatureNames = header.toStrings("feature_names")
	if f.FeatureNames != nil && len(f.FeatureNames) != f.NumFeatures {
		return nil, 0, header.errorf(-1, "feature_names",
			"expected %d names, got %d", f.NumFeatures, len(f.FeatureNames))
	}
	f.FeatureInfos = header.toStrings("feature_infos")
	return f, declaredTrees, nil
}

// readSection reads the key=value lines of tree idx up to a blank line.
func readSection(lr *lineReader, idx int) (*params, error) {
	section := newParams(idx, lr.line)
	for {
		line, ok, err := lr.next()
		if err != nil {
			return nil, err
		}
		if !ok || line == "" {
			break
		}
		if strings.HasPrefix(line, "Tree=") || line == endOfTrees {
			lr.unread(line)
			break
		}
		key, value, isKV := strings.Cut(line, "=")
		if !isKV {
			return nil, errors.NewMalformedModelErrorf(idx, -1, lr.line, "",
				"expected key=value, got %q", truncate(line))
		}
		key = strings.TrimSpace(key)
		if len(section.keys) == 0 && key != "num_leaves" {
			return nil, errors.NewMalformedModelErrorf(idx, -1, lr.line, key,
				"tree section must start with num_leaves")
		}
		section.set(key, strings.TrimSpace(value), lr.line)
	}
	if len(section.keys) == 0 {
		return nil, errors.NewMalformedModelErrorf(idx, -1, lr.line, "num_leaves", "empty tree section")
	}
	return section, nil
}

// withLine fills in the line of a MalformedModelError raised without one.
func withLine(err error, line int) error {
	var malformed *errors.MalformedModelError
	if errors.As(err, &malformed) && malformed.Line < 0 {
		malformed.Line = line
	}
	return err
}

func truncate(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// withTree fills in the tree index of a MalformedModelError raised without one.
func withTree(err error, tree int) error {
	var malformed *errors.MalformedModelError
	if errors.As(err, &malformed) && malformed.Tree < 0 {
		malformed.Tree = tree
	}
	return err
}
