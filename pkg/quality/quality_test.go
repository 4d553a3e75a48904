package quality_test

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/saveenergy/ispcheck/pkg/quality"
)

func TestAssessGood(t *testing.T) {
	a := quality.Assess(20, 100, 20)
	if a.Tier != quality.TierGood {
		t.Fatalf("tier = %s, want good", a.Tier)
	}
	if len(a.Issues) != 0 || len(a.Recommendations) != 0 {
		t.Fatalf("expected no issues, got %v / %v", a.Issues, a.Recommendations)
	}
	if a.ContactSupport {
		t.Fatal("good connection should not suggest contacting support")
	}
}

func TestAssessGoodBoundaries(t *testing.T) {
	a := quality.Assess(50, 25, 5)
	if a.Tier != quality.TierGood {
		t.Fatalf("tier = %s, want good at exact thresholds", a.Tier)
	}
}

func TestAssessAllPoor(t *testing.T) {
	a := quality.Assess(150, 2, 0.5)
	if a.Tier != quality.TierPoor {
		t.Fatalf("tier = %s, want poor", a.Tier)
	}
	want := []string{"High latency detected", "Very slow download speed", "Very slow upload speed"}
	if !reflect.DeepEqual(a.Issues, want) {
		t.Fatalf("issues = %v, want %v", a.Issues, want)
	}
	if !a.ContactSupport {
		t.Fatal("expected contact support")
	}
}

func TestAssessSingleFairAxis(t *testing.T) {
	a := quality.Assess(60, 25, 5)
	if a.Tier != quality.TierFair {
		t.Fatalf("tier = %s, want fair", a.Tier)
	}
	if len(a.Issues) != 1 || a.Issues[0] != "Moderate latency" {
		t.Fatalf("issues = %v", a.Issues)
	}
	if a.ContactSupport {
		t.Fatal("one issue should not suggest contacting support")
	}
}

func TestAssessPoorIsSticky(t *testing.T) {
	a := quality.Assess(60, 10, 0.5)
	want := []string{"Moderate latency", "Below average download speed", "Very slow upload speed"}
	if !reflect.DeepEqual(a.Issues, want) {
		t.Fatalf("issues = %v, want %v", a.Issues, want)
	}
	if a.Tier != quality.TierPoor {
		t.Fatalf("tier = %s, want poor", a.Tier)
	}

	// Poor first, fair afterwards must not downgrade.
	b := quality.Assess(150, 10, 20)
	if b.Tier != quality.TierPoor {
		t.Fatalf("tier = %s, want poor", b.Tier)
	}
}

func TestAssessSinglePoorAxisNoSupport(t *testing.T) {
	a := quality.Assess(10, 100, 0.2)
	if a.Tier != quality.TierPoor {
		t.Fatalf("tier = %s, want poor", a.Tier)
	}
	if a.ContactSupport {
		t.Fatal("one issue should not suggest contacting support even when poor")
	}
}

func TestAssessTwoFairIssuesSuggestSupport(t *testing.T) {
	a := quality.Assess(60, 10, 20)
	if a.Tier != quality.TierFair || !a.ContactSupport {
		t.Fatalf("got tier=%s contact=%v, want fair/true", a.Tier, a.ContactSupport)
	}
}

func TestAssessRecommendationsAligned(t *testing.T) {
	cases := [][3]float64{
		{150, 2, 0.5}, {60, 10, 0.5}, {60, 25, 5}, {10, 1, 3}, {200, 100, 100},
	}
	for _, c := range cases {
		a := quality.Assess(c[0], c[1], c[2])
		if len(a.Issues) != len(a.Recommendations) {
			t.Fatalf("Assess%v: %d issues, %d recommendations", c, len(a.Issues), len(a.Recommendations))
		}
		for i, rec := range a.Recommendations {
			if rec == "" {
				t.Fatalf("Assess%v: empty recommendation at %d", c, i)
			}
		}
	}
}

func TestAssessNaNProducesNoIssue(t *testing.T) {
	a := quality.Assess(math.NaN(), math.NaN(), math.NaN())
	if a.Tier != quality.TierGood || len(a.Issues) != 0 {
		t.Fatalf("got tier=%s issues=%v", a.Tier, a.Issues)
	}
}

func TestAssessNegativeValues(t *testing.T) {
	a := quality.Assess(-1, -1, -1)
	// Negative throughput is below every threshold, negative ping is not.
	if a.Tier != quality.TierPoor || len(a.Issues) != 2 {
		t.Fatalf("got tier=%s issues=%v", a.Tier, a.Issues)
	}
}

func TestAssessDeterministic(t *testing.T) {
	first, err := json.Marshal(quality.Assess(60, 10, 0.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(quality.Assess(60, 10, 0.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("outputs differ:\n%s\n%s", first, second)
	}
}

func TestAssessmentJSONFields(t *testing.T) {
	data, err := json.Marshal(quality.Assess(10, 100, 20))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"quality":"good","issues":[],"recommendations":[],"should_contact_support":false}`
	if string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"good", "fair", "poor"} {
		if tier, ok := quality.ParseTier(s); !ok || string(tier) != s {
			t.Errorf("ParseTier(%q) = %q, %v", s, tier, ok)
		}
	}
	if _, ok := quality.ParseTier("excellent"); ok {
		t.Error("ParseTier accepted an unknown tier")
	}
}

func TestTierValid(t *testing.T) {
	for _, tier := range []quality.Tier{quality.TierGood, quality.TierFair, quality.TierPoor} {
		if !tier.Valid() {
			t.Errorf("%q should be valid", tier)
		}
	}
	if quality.Tier("").Valid() || quality.Tier("excellent").Valid() {
		t.Error("unknown tier reported valid")
	}
}
