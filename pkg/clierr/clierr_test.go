package clierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "simple error message",
			err:     New(Validation, "post-login indicator not found", nil),
			wantMsg: "post-login indicator not found",
		},
		{
			name:    "error with underlying error",
			err:     New(Storage, "save failed", errors.New("permission denied")),
			wantMsg: "save failed",
		},
		{
			name:    "empty message",
			err:     New(Unexpected, "", nil),
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestError_ErrorsIsAs(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	cliErr := New(NavigationTimeout, "wait exceeded bound", underlyingErr)

	if !errors.Is(cliErr, underlyingErr) {
		t.Error("errors.Is should find underlying error")
	}

	var target *Error
	if !errors.As(cliErr, &target) {
		t.Error("errors.As should find Error type")
	}
	if target.Type != NavigationTimeout {
		t.Errorf("errors.As Type = %v, want %v", target.Type, NavigationTimeout)
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Type
	}{
		{
			name: "direct classified error",
			err:  New(ManualTimeout, "second factor not completed", nil),
			want: ManualTimeout,
		},
		{
			name: "classified error wrapped in fmt.Errorf",
			err:  fmt.Errorf("refresh failed: %w", New(Storage, "disk full", nil)),
			want: Storage,
		},
		{
			name: "plain error",
			err:  errors.New("something broke"),
			want: Unexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.err); got != tt.want {
				t.Errorf("TypeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(Configuration, "missing credentials", nil))
	if !Is(err, Configuration) {
		t.Error("Is should match the classification through a wrap")
	}
	if Is(err, Storage) {
		t.Error("Is should not match a different classification")
	}
}

func TestError_Types(t *testing.T) {
	types := []Type{Configuration, NavigationTimeout, ManualTimeout, Validation, Storage, Unexpected}
	expected := []string{"configuration", "navigation_timeout", "manual_timeout", "validation", "storage", "unexpected"}

	for i, typ := range types {
		if string(typ) != expected[i] {
			t.Errorf("Type constant = %v, want %v", typ, expected[i])
		}
	}
}
