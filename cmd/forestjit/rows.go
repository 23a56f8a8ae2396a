package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

var errMissingModel = errors.New("no model given: pass it as an argument or set FORESTJIT_MODEL")

// openInput opens path for reading; "-" and "" mean standard input.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening input %s", path)
	}
	return f, nil
}

/*
readRows parses a CSV stream of feature rows into a matrix with numFeatures
columns. Empty cells and "?" are missing values and become NaN; anything
strconv.ParseFloat accepts, including "nan" and "inf", is taken as is.

With header set, the first row names the columns. Columns are then matched
to featureNames by name, so they may come in any order and extra columns are
ignored.
*/
func readRows(r io.Reader, numFeatures int, header bool, featureNames []string) (*mat.Dense, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	columns := make([]int, numFeatures) // feature -> CSV column
	for i := range columns {
		columns[i] = i
	}
	line := 1
	if header {
		names, err := reader.Read()
		if err != nil {
			return nil, errors.Wrap(err, "reading header")
		}
		columns, err = matchColumns(names, featureNames, numFeatures)
		if err != nil {
			return nil, err
		}
		line++
	}

	var data []float64
	rows := 0
	for ; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading line %d", line)
		}
		for j, col := range columns {
			if col >= len(record) {
				return nil, errors.Newf("line %d: expected at least %d columns, got %d", line, col+1, len(record))
			}
			v, err := parseCell(record[col])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d feature %d", line, j)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.New("input has no rows")
	}
	return mat.NewDense(rows, numFeatures, data), nil
}

func matchColumns(names, featureNames []string, numFeatures int) ([]int, error) {
	if len(featureNames) != numFeatures {
		return nil, errors.New("model has no feature names to match the header against")
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[strings.TrimSpace(name)] = i
	}
	columns := make([]int, numFeatures)
	for i, name := range featureNames {
		col, ok := index[name]
		if !ok {
			return nil, errors.Newf("header has no column for feature %q", name)
		}
		columns[i] = col
	}
	return columns, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "?" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// writeRows writes one CSV line per matrix row using the shortest
// representation that parses back to the same float64.
func writeRows(w io.Writer, m mat.Matrix) error {
	writer := csv.NewWriter(w)
	rows, cols := m.Dims()
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
