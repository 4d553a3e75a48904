package types_test

import (
	"testing"
	"time"

	"github.com/saveenergy/ispcheck/pkg/types"
)

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		origin    string
		want      bool
	}{
		{name: "wildcard", allowlist: []string{"*"}, origin: "https://any.example", want: true},
		{name: "exact", allowlist: []string{"https://app.example.com"}, origin: "https://app.example.com", want: true},
		{name: "host only", allowlist: []string{"app.example.com"}, origin: "https://app.example.com:8443", want: true},
		{name: "suffix", allowlist: []string{"*.example.com"}, origin: "https://foo.example.com", want: true},
		{name: "suffix apex", allowlist: []string{"*.example.com"}, origin: "https://example.com", want: true},
		{name: "suffix lookalike", allowlist: []string{"*.example.com"}, origin: "https://badexample.com", want: false},
		{name: "other host", allowlist: []string{"app.example.com"}, origin: "https://evil.example.net", want: false},
		{name: "empty list", allowlist: nil, origin: "https://app.example.com", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.OriginAllowed(tt.allowlist, tt.origin); got != tt.want {
				t.Fatalf("OriginAllowed(%v, %q) = %v, want %v", tt.allowlist, tt.origin, got, tt.want)
			}
		})
	}
}

func TestStripHostPort(t *testing.T) {
	tests := map[string]string{
		"example.com:80": "example.com",
		"[::1]:8080":     "::1",
		"[2001:db8::1]":  "2001:db8::1",
		"example.com":    "example.com",
		"":               "",
	}
	for in, want := range tests {
		if got := types.StripHostPort(in); got != want {
			t.Errorf("StripHostPort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTimestampUsesUTC(t *testing.T) {
	loc := time.FixedZone("SAST", 2*60*60)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, loc)
	if got := types.FormatTimestamp(at); got != "2026-05-01 10:00:00" {
		t.Fatalf("FormatTimestamp = %q", got)
	}
}

func TestProgressFuncNilSafe(t *testing.T) {
	var f types.ProgressFunc
	f.Report(types.PhasePing)

	var got types.Phase
	f = func(p types.Phase) { got = p }
	f.Report(types.PhaseUpload)
	if got != types.PhaseUpload {
		t.Fatalf("got %q", got)
	}
}
