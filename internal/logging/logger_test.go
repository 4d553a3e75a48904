package logging_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/saveenergy/ispcheck/internal/logging"
)

type testStringer struct{}

func (testStringer) String() string {
	return "stringer-value"
}

func TestFormatValueTypes(t *testing.T) {
	now := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{name: "nil", input: nil, want: "<nil>"},
		{name: "string", input: "hello", want: "hello"},
		{name: "bool", input: true, want: "true"},
		{name: "int", input: 42, want: "42"},
		{name: "int64", input: int64(-7), want: "-7"},
		{name: "uint", input: uint(9), want: "9"},
		{name: "float32", input: float32(1.5), want: "1.50"},
		{name: "float64", input: 2.25, want: "2.25"},
		{name: "duration", input: 1500 * time.Millisecond, want: "1.5s"},
		{name: "time", input: now, want: now.Format(time.RFC3339Nano)},
		{name: "error", input: errors.New("boom"), want: "boom"},
		{name: "stringer", input: testStringer{}, want: "stringer-value"},
		{name: "fallback", input: []int{1, 2}, want: fmt.Sprintf("%v", []int{1, 2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := logging.FormatValue(tt.input); got != tt.want {
				t.Fatalf("FormatValue got=%q want=%q", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{in: "debug", want: logging.LevelDebug},
		{in: "INFO", want: logging.LevelInfo},
		{in: "", want: logging.LevelInfo},
		{in: "warning", want: logging.LevelWarn},
		{in: " error ", want: logging.LevelError},
		{in: "verbose", want: logging.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, "geoip", logging.LevelWarn)

	l.Info("hidden")
	l.Warn("lookup failed", logging.F("ip", "198.51.100.7"), logging.Err(errors.New("timed out")))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	for _, want := range []string{"[geoip] ", "[WARN] lookup failed", "ip=198.51.100.7", `error="timed out"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, "", logging.LevelError)
	l.SetLevel(logging.LevelDebug)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "[DEBUG] now visible") {
		t.Fatalf("output = %q", buf.String())
	}
}
