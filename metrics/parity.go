package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// ParityReport はコンパイル済みパスとインタプリタの予測結果の比較結果
type ParityReport struct {
	Rows        int
	Outputs     int
	Mismatches  int     // ビット単位で一致しない要素数
	MaxAbsError float64 // 最大絶対誤差
	MSE         float64 // 平均二乗誤差
}

// Identical は全要素がビット単位で一致したかを返す
func (r ParityReport) Identical() bool {
	return r.Mismatches == 0
}

// Compare は2つの予測行列を要素ごとに比較する。
// NaN同士は同一のビットパターンであれば一致とみなす。
func Compare(want, got mat.Matrix) (ParityReport, error) {
	// 入力検証
	rw, cw := want.Dims()
	rg, cg := got.Dims()
	if rw == 0 || cw == 0 {
		return ParityReport{}, errors.New("Compare: empty matrix")
	}
	if rw != rg {
		return ParityReport{}, errors.NewInvalidInputError("Compare", rw, rg, 0)
	}
	if cw != cg {
		return ParityReport{}, errors.NewInvalidInputError("Compare", cw, cg, 2)
	}

	report := ParityReport{Rows: rw, Outputs: cw}
	var sum float64
	for i := 0; i < rw; i++ {
		for j := 0; j < cw; j++ {
			a, b := want.At(i, j), got.At(i, j)
			if math.Float64bits(a) != math.Float64bits(b) {
				report.Mismatches++
			}
			// MSE = (1/n) * Σ(want - got)²
			diff := a - b
			if math.IsNaN(a) && math.IsNaN(b) {
				diff = 0
			}
			if d := math.Abs(diff); d > report.MaxAbsError || math.IsNaN(d) {
				report.MaxAbsError = d
			}
			sum += diff * diff
		}
	}
	report.MSE = sum / float64(rw*cw)
	return report, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(want, got mat.Matrix) (float64, error) {
	report, err := Compare(want, got)
	if err != nil {
		return 0, err
	}
	return report.MSE, nil
}

// MaxAbsError は要素ごとの絶対誤差の最大値を計算する
func MaxAbsError(want, got mat.Matrix) (float64, error) {
	report, err := Compare(want, got)
	if err != nil {
		return 0, err
	}
	return report.MaxAbsError, nil
}
