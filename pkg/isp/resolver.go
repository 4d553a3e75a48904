package isp

import "strings"

// Rule maps any of its keywords to a canonical key.
type Rule struct {
	Key      string
	Keywords []string
}

// rules are checked in order and the first match wins. Resellers sit ahead
// of network operators because the org field often names the upstream carrier.
var rules = []Rule{
	{Key: "afrihost", Keywords: []string{"afrihost"}},
	{Key: "webafrica", Keywords: []string{"webafrica", "web africa"}},
	{Key: "cool_ideas", Keywords: []string{"cool ideas", "coolideas"}},
	{Key: "vox", Keywords: []string{"vox telecom", "voxtelecom"}},
	{Key: "rain", Keywords: []string{"rain networks", "rain (pty)", "rain.co.za"}},
	{Key: "cell_c", Keywords: []string{"cell c", "cellc"}},
	{Key: "mtn", Keywords: []string{"mtn"}},
	{Key: "vodacom", Keywords: []string{"vodacom"}},
	{Key: "telkom", Keywords: []string{"telkom", "openserve"}},
}

// Resolve maps the free-text ISP and organisation names reported by a
// geolocation provider to a canonical directory key. It returns UnknownKey
// when no rule matches.
func Resolve(ispName, orgName string) string {
	ispName = strings.ToLower(ispName)
	orgName = strings.ToLower(orgName)
	if ispName == "" && orgName == "" {
		return UnknownKey
	}

	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if (ispName != "" && strings.Contains(ispName, kw)) ||
				(orgName != "" && strings.Contains(orgName, kw)) {
				return rule.Key
			}
		}
	}
	return UnknownKey
}

// Rules returns a copy of the rule table in priority order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Key: r.Key, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}
