package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseCall,
				Kind:     KindTypeMismatch,
				Path:     []string{"exports", "add"},
				Expected: "function",
				Actual:   "object",
				Detail:   "not callable",
			},
			contains: []string{"[call]", "type_mismatch", "exports.add", "expected function", "got object", "not callable"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseHeap,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[heap]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRoot,
				Kind:   KindAllocation,
				Detail: "registry full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[root]", "allocation", "registry full", "caused by", "underlying error"},
		},
		{
			name: "only expected",
			err: &Error{
				Phase:    PhaseInstantiate,
				Kind:     KindNilPointer,
				Expected: "imports object",
				Detail:   "nil pointer",
			},
			contains: []string{"expected imports object - nil pointer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseCompile,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause through chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseRoot,
		Kind:   KindAllocation,
		Detail: "first",
	}

	if !errors.Is(err, &Error{Phase: PhaseRoot, Kind: KindAllocation}) {
		t.Error("errors.Is should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseHeap, Kind: KindAllocation}) {
		t.Error("errors.Is should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseRoot, Kind: KindNotFound}) {
		t.Error("errors.Is should not match different kind")
	}

	var target *Error
	if !errors.As(error(err), &target) || target.Detail != "first" {
		t.Error("errors.As should extract *Error")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseCall, KindTypeMismatch).
		Path("exports", "foo").
		Expected("function").
		Actual("string").
		Value(42).
		Cause(cause).
		Detail("arg %d", 1).
		Build()

	if err.Phase != PhaseCall || err.Kind != KindTypeMismatch {
		t.Fatalf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if strings.Join(err.Path, ".") != "exports.foo" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.Expected != "function" || err.Actual != "string" {
		t.Errorf("Expected/Actual = %q/%q", err.Expected, err.Actual)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if err.Detail != "arg 1" {
		t.Errorf("Detail = %q, want %q", err.Detail, "arg 1")
	}
	if !errors.Is(err, cause) {
		t.Error("builder cause not wrapped")
	}

	pct := New(PhaseLoad, KindInvalidData).Detail("%d%% read", 100).Build()
	if pct.Detail != "100% read" {
		t.Errorf("Detail = %q, want %q", pct.Detail, "100% read")
	}
	plain := New(PhaseLoad, KindInvalidData).Detail("truncated").Build()
	if plain.Detail != "truncated" {
		t.Errorf("Detail without args should be verbatim, got %q", plain.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"TypeMismatch", TypeMismatch(PhaseCall, []string{"a"}, "i32", "string"), PhaseCall, KindTypeMismatch},
		{"AllocationFailed", AllocationFailed(PhaseRoot, "root", 8), PhaseRoot, KindAllocation},
		{"Unsupported", Unsupported(PhaseCall, "v128 params"), PhaseCall, KindUnsupported},
		{"OutOfBounds", OutOfBounds(PhaseCall, nil, 10, 5), PhaseCall, KindOutOfBounds},
		{"NilPointer", NilPointer(PhaseInstantiate, nil, "module"), PhaseInstantiate, KindNilPointer},
		{"InvalidData", InvalidData(PhaseCompile, nil, "bad magic"), PhaseCompile, KindInvalidData},
		{"Wrap", Wrap(PhaseEngine, KindClosed, errors.New("x"), "close"), PhaseEngine, KindClosed},
		{"NotInitialized", NotInitialized(PhaseEngine, "runtime"), PhaseEngine, KindNotInitialized},
		{"NotFound", NotFound(PhaseCall, "export", "foo"), PhaseCall, KindNotFound},
		{"InvalidInput", InvalidInput(PhaseConfig, "negative threshold"), PhaseConfig, KindInvalidInput},
		{"Exception", Exception(PhaseCall, "uncaught", nil), PhaseCall, KindException},
		{"Closed", Closed(PhaseEngine, "runtime"), PhaseEngine, KindClosed},
		{"Instantiation", Instantiation(errors.New("x")), PhaseInstantiate, KindInstantiation},
		{"Load", Load("read", errors.New("x")), PhaseLoad, KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if got := AllocationFailed(PhaseRoot, "root", 8).Error(); !strings.Contains(got, "limit of 8") {
		t.Errorf("AllocationFailed message = %q", got)
	}
	if got := OutOfBounds(PhaseCall, nil, 10, 5).Value; got != 10 {
		t.Errorf("OutOfBounds value = %v, want 10", got)
	}
}

func TestMissingImportsError(t *testing.T) {
	t.Run("single import", func(t *testing.T) {
		err := NewMissingImportsError([]string{ImportKey("env", "bar")})
		if len(err.Imports) != 1 {
			t.Fatalf("expected 1 import, got %d", len(err.Imports))
		}
		if err.Imports[0].Module != "env" {
			t.Errorf("module = %q, want env", err.Imports[0].Module)
		}
		if err.Imports[0].Name != "bar" {
			t.Errorf("name = %q, want bar", err.Imports[0].Name)
		}
	})

	t.Run("multiple modules grouped", func(t *testing.T) {
		err := NewMissingImportsError([]string{
			"wasi_snapshot_preview1#fd_write",
			"env#bar",
			"wasi_snapshot_preview1#proc_exit",
		})
		msg := err.Error()
		if !strings.Contains(msg, "missing 3 import(s)") {
			t.Errorf("error should contain count, got %s", msg)
		}
		if strings.Count(msg, "wasi_snapshot_preview1:") != 1 {
			t.Errorf("error should group by module, got %s", msg)
		}
		if !strings.Contains(msg, "env:") || !strings.Contains(msg, "- proc_exit") {
			t.Errorf("error should list all entries, got %s", msg)
		}
	})

	t.Run("key without separator", func(t *testing.T) {
		err := NewMissingImportsError([]string{"lonely"})
		if err.Imports[0].Module != "lonely" || err.Imports[0].Name != "" {
			t.Errorf("unexpected parse: %+v", err.Imports[0])
		}
	})

	t.Run("empty imports", func(t *testing.T) {
		err := NewMissingImportsError(nil)
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#fn"})
		if !errors.Is(err, &MissingImportsError{}) {
			t.Error("errors.Is should match MissingImportsError")
		}
	})
}

func TestDemangleRust(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"fd_write", "fd_write"},
		{
			"_ZN4wasi13lib_generated22wasi_snapshot_preview18fd_write17h10967bea88bd2a6fE",
			"wasi::lib_generated::wasi_snapshot_preview1::fd_write",
		},
		{"_ZN4core3ptr8write_fn17ha1b2c3d4e5f67890E", "core::ptr::write_fn"},
		{"_ZN", "_ZN"},
	}

	for _, tt := range tests {
		name := tt.input
		if len(name) > 30 {
			name = name[:30]
		}
		t.Run(name, func(t *testing.T) {
			if got := demangleRust(tt.input); got != tt.expected {
				t.Errorf("demangleRust(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
