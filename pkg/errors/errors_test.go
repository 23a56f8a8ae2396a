package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewMalformedModelError(t *testing.T) {
	tests := []struct {
		name    string
		tree    int
		node    int
		line    int
		field   string
		reason  string
		wantMsg string
	}{
		{
			name:    "full context",
			tree:    3,
			node:    7,
			line:    42,
			field:   "left_child",
			reason:  "child index 12 out of range",
			wantMsg: `forestjit: malformed model (line 42): tree 3 node 7 field "left_child": child index 12 out of range`,
		},
		{
			name:    "header field",
			tree:    -1,
			node:    -1,
			line:    -1,
			field:   "max_feature_idx",
			reason:  "missing required header field",
			wantMsg: `forestjit: malformed model field "max_feature_idx": missing required header field`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMalformedModelError(tt.tree, tt.node, tt.line, tt.field, tt.reason)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var malformed *MalformedModelError
			if !As(err, &malformed) {
				t.Error("Error should be castable to *MalformedModelError")
			}
			if !IsMalformedModel(err) {
				t.Error("IsMalformedModel should report true")
			}
		})
	}
}

func TestNewCompilationError(t *testing.T) {
	cause := New("unsupported opcode")
	err := NewCompilationError("closure", "instruction selection failed", cause)

	want := `forestjit: compile with backend "closure": instruction selection failed: unsupported opcode`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if !IsCompilationError(err) {
		t.Error("IsCompilationError should report true")
	}
	if !Is(err, cause) {
		t.Error("CompilationError should unwrap to its cause")
	}
	if IsMalformedModel(err) {
		t.Error("CompilationError must not match MalformedModelError")
	}
}

func TestNewNotCompiledError(t *testing.T) {
	err := NewNotCompiledError("PredictCompiled")

	if !strings.Contains(err.Error(), "PredictCompiled") {
		t.Errorf("Error message should mention the operation: %s", err.Error())
	}
	if !IsNotCompiled(err) {
		t.Error("IsNotCompiled should report true")
	}
}

func TestNewInvalidInputError(t *testing.T) {
	err := NewInvalidInputError("Predict", 10, 3, 1)

	want := "forestjit: Predict: invalid input on axis 1 (features). Expected 10, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if !IsInvalidInput(err) {
		t.Error("IsInvalidInput should report true")
	}
}

func TestWrapPreservesType(t *testing.T) {
	base := NewMalformedModelError(0, 1, 10, "threshold", "not a number")
	wrapped := Wrapf(base, "loading %s", "model.txt")

	if !strings.Contains(wrapped.Error(), "loading model.txt") {
		t.Errorf("Wrapped message missing context: %s", wrapped.Error())
	}
	if !IsMalformedModel(wrapped) {
		t.Error("Wrapped error should still be a MalformedModelError")
	}
}

func TestWarnUsesHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(func(w error) {})

	w := NewDataConversionWarning("*mat.VecDense", "*mat.Dense", "row-major features required")
	Warn(w)

	if got != w {
		t.Errorf("handler received %v, want %v", got, w)
	}
}
