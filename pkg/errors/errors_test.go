package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/saveenergy/ispcheck/pkg/errors"
)

func TestErrorString(t *testing.T) {
	err := errors.ErrMeasurement("download failed", fmt.Errorf("connection reset"))
	want := "MEASUREMENT_FAILED: download failed: connection reset"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	bare := errors.ErrResourceExhausted("too many tests")
	if bare.Error() != "RESOURCE_EXHAUSTED: too many tests" {
		t.Fatalf("Error() = %q", bare.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := fmt.Errorf("save: %w", errors.ErrPersistence("insert failed", cause))
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestCodeAndHasCode(t *testing.T) {
	inner := errors.ErrGeoLookup("lookup failed", context.DeadlineExceeded)
	outer := errors.ErrMeasurement("wrapped", inner)
	wrapped := fmt.Errorf("run: %w", outer)

	if got := errors.Code(wrapped); got != errors.ErrCodeMeasurementFailed {
		t.Fatalf("Code = %q", got)
	}
	if !errors.HasCode(wrapped, errors.ErrCodeGeoLookupFailed) {
		t.Fatal("HasCode should find nested code")
	}
	if errors.HasCode(wrapped, errors.ErrCodePersistenceFailed) {
		t.Fatal("HasCode matched an absent code")
	}
	if errors.Code(fmt.Errorf("plain")) != "" {
		t.Fatal("plain error should have no code")
	}
	if !errors.IsContextError(wrapped) {
		t.Fatal("expected context error in chain")
	}
}

func TestIsContextError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"canceled", context.Canceled, true},
		{"deadline wrapped", fmt.Errorf("measure: %w", context.DeadlineExceeded), true},
		{"coded cause", errors.ErrMeasurement("aborted", context.Canceled), true},
		{"plain", stderrors.New("reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.IsContextError(tt.err); got != tt.want {
				t.Fatalf("IsContextError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
