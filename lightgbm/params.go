package lightgbm

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// param is a key=value line together with where it came from.
type param struct {
	value string
	line  int
}

// params is one key=value section of the model file.
type params struct {
	tree   int // -1 for the header
	values map[string]param
	keys   []string // in file order
	start  int
}

func newParams(tree, start int) *params {
	return &params{tree: tree, values: make(map[string]param), start: start}
}

func (p *params) set(key, value string, line int) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = param{value: value, line: line}
}

func (p *params) has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// lineOf returns the line of key, or the section start when absent.
func (p *params) lineOf(key string) int {
	if v, ok := p.values[key]; ok {
		return v.line
	}
	return p.start
}

func (p *params) errorf(node int, key, format string, args ...interface{}) error {
	return errors.NewMalformedModelErrorf(p.tree, node, p.lineOf(key), key, format, args...)
}

func (p *params) require(key string) (param, error) {
	v, ok := p.values[key]
	if !ok {
		return param{}, p.errorf(-1, key, "missing required field")
	}
	return v, nil
}

func (p *params) toInt(key string) (int, error) {
	v, err := p.require(key)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(v.value))
	if convErr != nil {
		return 0, p.errorf(-1, key, "not an integer: %q", v.value)
	}
	return n, nil
}

// toIntDefault is toInt for optional keys.
func (p *params) toIntDefault(key string, def int) (int, error) {
	if !p.has(key) {
		return def, nil
	}
	return p.toInt(key)
}

func (p *params) toFloat64Slice(key string, want int) ([]float64, error) {
	v, err := p.require(key)
	if err != nil {
		return nil, err
	}
	parts := strings.Fields(v.value)
	if want >= 0 && len(parts) != want {
		return nil, p.errorf(-1, key, "expected %d values, got %d", want, len(parts))
	}
	result := make([]float64, 0, len(parts))
	for i, part := range parts {
		val, convErr := strconv.ParseFloat(part, 64)
		if convErr != nil {
			return nil, p.errorf(nodeOf(want, i), key, "not a number: %q", part)
		}
		result = append(result, val)
	}
	return result, nil
}

func (p *params) toInt64Slice(key string, want int) ([]int64, error) {
	v, err := p.require(key)
	if err != nil {
		return nil, err
	}
	parts := strings.Fields(v.value)
	if want >= 0 && len(parts) != want {
		return nil, p.errorf(-1, key, "expected %d values, got %d", want, len(parts))
	}
	result := make([]int64, 0, len(parts))
	for i, part := range parts {
		val, convErr := strconv.ParseInt(part, 10, 64)
		if convErr != nil {
			return nil, p.errorf(nodeOf(want, i), key, "not an integer: %q", part)
		}
		result = append(result, val)
	}
	return result, nil
}

func (p *params) toInt32Slice(key string, want int) ([]int32, error) {
	raw, err := p.toInt64Slice(key, want)
	if err != nil {
		return nil, err
	}
	result := make([]int32, len(raw))
	for i, v := range raw {
		if v < -1<<31 || v > 1<<31-1 {
			return nil, p.errorf(nodeOf(want, i), key, "value %d out of int32 range", v)
		}
		result[i] = int32(v)
	}
	return result, nil
}

func (p *params) toStrings(key string) []string {
	v, ok := p.values[key]
	if !ok {
		return nil
	}
	return strings.Fields(v.value)
}

// nodeOf attributes a bad array element to a node when the array is per node.
func nodeOf(want, i int) int {
	if want < 0 {
		return -1
	}
	return i
}
