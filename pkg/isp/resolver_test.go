package isp_test

import (
	"testing"

	"github.com/saveenergy/ispcheck/pkg/isp"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		isp  string
		org  string
		want string
	}{
		{name: "isp name", isp: "Afrihost Fibre", want: "afrihost"},
		{name: "org name", org: "MTN Business", want: "mtn"},
		{name: "no match", isp: "Some Rural ISP", want: isp.UnknownKey},
		{name: "cell c spaced", isp: "Cell C Mobile", want: "cell_c"},
		{name: "cell c joined", isp: "CellC", want: "cell_c"},
		{name: "case insensitive", isp: "VODACOM", want: "vodacom"},
		{name: "openserve alias", org: "Openserve Wholesale", want: "telkom"},
		{name: "reseller beats carrier", isp: "Afrihost", org: "Telkom SA Ltd", want: "afrihost"},
		{name: "reseller in org", isp: "Telkom SA Ltd", org: "Webafrica", want: "webafrica"},
		{name: "rain", isp: "Rain Networks (Pty) Ltd", want: "rain"},
		{name: "rain substring ignored", isp: "Bahrain Telecom", want: isp.UnknownKey},
		{name: "both empty", want: isp.UnknownKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isp.Resolve(tt.isp, tt.org); got != tt.want {
				t.Fatalf("Resolve(%q, %q) = %q, want %q", tt.isp, tt.org, got, tt.want)
			}
		})
	}
}

func TestResolveFirstRuleWins(t *testing.T) {
	// Both strings match different rules; table order decides.
	if got := isp.Resolve("MTN", "Vodacom"); got != "mtn" {
		t.Fatalf("got %q, want mtn", got)
	}
	if got := isp.Resolve("Vodacom", "MTN"); got != "mtn" {
		t.Fatalf("got %q, want mtn", got)
	}
}

func TestRuleKeysExistInDirectory(t *testing.T) {
	d := isp.Default()
	for _, rule := range isp.Rules() {
		if !d.Has(rule.Key) {
			t.Errorf("rule key %q missing from directory", rule.Key)
		}
		if len(rule.Keywords) == 0 {
			t.Errorf("rule %q has no keywords", rule.Key)
		}
	}
}

func TestResolveAlwaysYieldsDirectoryKey(t *testing.T) {
	inputs := []string{"", "x", "Afrihost", "cool ideas", "Vox Telecom", "Openserve", "???"}
	for _, a := range inputs {
		for _, b := range inputs {
			if key := isp.Resolve(a, b); !isp.Default().Has(key) {
				t.Fatalf("Resolve(%q, %q) = %q, not a directory key", a, b, key)
			}
		}
	}
}
