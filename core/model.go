package core

import "gonum.org/v1/gonum/mat"

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (*mat.Dense, error)
}

// ThreadedPredictor はワーカー数を呼び出しごとに指定できる予測器
type ThreadedPredictor interface {
	Predictor

	// PredictWithThreads は threads 個のワーカーで行を分割して予測する
	PredictWithThreads(X mat.Matrix, threads int) (*mat.Dense, error)
}

// RowPredictor は単一の特徴量ベクトルを評価できる予測器
type RowPredictor interface {
	// PredictRow は1行分の予測値を返す
	PredictRow(x []float64) ([]float64, error)
}

// Model はバッチ予測と単一行予測の両方を提供するモデル
type Model interface {
	ThreadedPredictor
	RowPredictor

	// NumFeatures は入力の特徴量数を返す
	NumFeatures() int
	// NumOutputs は1行あたりの出力数を返す
	NumOutputs() int
}
