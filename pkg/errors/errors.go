// Package errors はforestjit全体のエラーハンドリングと警告システムを提供します。
// モデルの読み込み・コンパイル・推論の各段階で発生するエラーを構造化された型で表現します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("forestjit-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// DataConversionWarning は入力行列が暗黙的に変換された場合に発生する警告です。
type DataConversionWarning struct {
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("data converted from %s to %s. Reason: %s", w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{FromType: from, ToType: to, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// MalformedModelError はモデルファイルに構造的・意味的な欠陥がある場合のエラーです。
// 読み込み時に即座に報告され、部分的なForestは返されません。
// Tree, Node, Line は不明な場合 -1 になります。
type MalformedModelError struct {
	Tree   int
	Node   int
	Line   int
	Field  string
	Reason string
}

func (e *MalformedModelError) Error() string {
	msg := "forestjit: malformed model"
	if e.Line >= 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	if e.Tree >= 0 {
		msg += fmt.Sprintf(": tree %d", e.Tree)
	}
	if e.Node >= 0 {
		msg += fmt.Sprintf(" node %d", e.Node)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	return msg + ": " + e.Reason
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MalformedModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("tree", e.Tree).
		Int("node", e.Node).
		Int("line", e.Line).
		Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "MalformedModelError")
}

// NewMalformedModelError は新しいMalformedModelErrorを作成し、スタックトレースを付与します。
func NewMalformedModelError(tree, node, line int, field, reason string) error {
	err := &MalformedModelError{Tree: tree, Node: node, Line: line, Field: field, Reason: reason}
	return errors.WithStack(err)
}

// NewMalformedModelErrorf はフォーマット文字列から理由を組み立てます。
func NewMalformedModelErrorf(tree, node, line int, field, format string, args ...interface{}) error {
	return NewMalformedModelError(tree, node, line, field, fmt.Sprintf(format, args...))
}

// CompilationError はバックエンドが生成されたIRを受け付けなかった場合のエラーです。
// モデルはLoaded状態のまま残り、インタプリタによる推論は引き続き可能です。
type CompilationError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forestjit: compile with backend %q: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("forestjit: compile with backend %q: %s", e.Backend, e.Reason)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *CompilationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("backend", e.Backend).
		Str("reason", e.Reason).
		Str("type", "CompilationError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewCompilationError は新しいCompilationErrorを作成し、スタックトレースを付与します。
func NewCompilationError(backend, reason string, err error) error {
	compErr := &CompilationError{Backend: backend, Reason: reason, Err: err}
	return errors.WithStack(compErr)
}

// NotCompiledError はコンパイル前にコンパイル済みパスで推論を要求した場合のエラーです。
// インタプリタへの暗黙のフォールバックは行いません。
type NotCompiledError struct {
	Op string
}

func (e *NotCompiledError) Error() string {
	return fmt.Sprintf("forestjit: %s: model is not compiled yet. Call Compile() before using the compiled path", e.Op)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotCompiledError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("type", "NotCompiledError")
}

// NewNotCompiledError は新しいNotCompiledErrorを作成し、スタックトレースを付与します。
func NewNotCompiledError(op string) error {
	return errors.WithStack(&NotCompiledError{Op: op})
}

// InvalidInputError は特徴量行列の形状が宣言された特徴量数と一致しない場合のエラーです。
// ディスパッチ前に検査されるため、出力行列への部分的な書き込みは発生しません。
type InvalidInputError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0: 行, 1: 特徴量, 2: 出力バッファ
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("forestjit: %s: invalid input on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, axisName(e.Axis), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidInputError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName(e.Axis)).
		Str("type", "InvalidInputError")
}

// NewInvalidInputError は新しいInvalidInputErrorを作成し、スタックトレースを付与します。
func NewInvalidInputError(op string, expected, got, axis int) error {
	err := &InvalidInputError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

func axisName(axis int) string {
	switch axis {
	case 0:
		return "rows"
	case 1:
		return "features"
	default:
		return "outputs"
	}
}

// IsMalformedModel はエラーがMalformedModelErrorを含むかどうかを判定します。
func IsMalformedModel(err error) bool {
	var target *MalformedModelError
	return errors.As(err, &target)
}

// IsCompilationError はエラーがCompilationErrorを含むかどうかを判定します。
func IsCompilationError(err error) bool {
	var target *CompilationError
	return errors.As(err, &target)
}

// IsNotCompiled はエラーがNotCompiledErrorを含むかどうかを判定します。
func IsNotCompiled(err error) bool {
	var target *NotCompiledError
	return errors.As(err, &target)
}

// IsInvalidInput はエラーがInvalidInputErrorを含むかどうかを判定します。
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}
