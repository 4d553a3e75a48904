// Package quality grades a connection from its ping, download and upload
// figures into a tier with issues and matching recommendations.
package quality

// Tier is the overall connection grade.
type Tier string

const (
	TierGood Tier = "good"
	TierFair Tier = "fair"
	TierPoor Tier = "poor"
)

// Thresholds. Poor takes precedence over fair on each axis.
const (
	PingPoorMs       = 100.0
	PingFairMs       = 50.0
	DownloadPoorMbps = 5.0
	DownloadFairMbps = 25.0
	UploadPoorMbps   = 1.0
	UploadFairMbps   = 5.0
)

// Assessment is the verdict for one sample. Issues[i] pairs with
// Recommendations[i].
type Assessment struct {
	Tier            Tier     `json:"quality"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	ContactSupport  bool     `json:"should_contact_support"`
}

type verdict int

const (
	verdictOK verdict = iota
	verdictFair
	verdictPoor
)

type axisText struct {
	issue          string
	recommendation string
}

type axis struct {
	poor, fair axisText
}

var (
	pingAxis = axis{
		poor: axisText{"High latency detected", "Restart your router and check for devices saturating the connection"},
		fair: axisText{"Moderate latency", "Close bandwidth-heavy applications during calls and gaming"},
	}
	downloadAxis = axis{
		poor: axisText{"Very slow download speed", "Contact your ISP to check for line faults or outages in your area"},
		fair: axisText{"Below average download speed", "Consider upgrading to a faster plan"},
	}
	uploadAxis = axis{
		poor: axisText{"Very slow upload speed", "Contact your ISP about upload performance on your line"},
		fair: axisText{"Below average upload speed", "Pause cloud backups and large uploads while working"},
	}
)

// Assess grades a sample. Inputs are not validated: values that fail every
// comparison, such as NaN, produce no issue for that axis.
func Assess(pingMs, downloadMbps, uploadMbps float64) Assessment {
	a := Assessment{
		Tier:            TierGood,
		Issues:          []string{},
		Recommendations: []string{},
	}

	a.apply(pingAxis, ratePing(pingMs))
	a.apply(downloadAxis, rateThroughput(downloadMbps, DownloadPoorMbps, DownloadFairMbps))
	a.apply(uploadAxis, rateThroughput(uploadMbps, UploadPoorMbps, UploadFairMbps))

	a.ContactSupport = a.Tier != TierGood && len(a.Issues) >= 2
	return a
}

func (a *Assessment) apply(ax axis, v verdict) {
	var text axisText
	switch v {
	case verdictPoor:
		text = ax.poor
		a.Tier = TierPoor
	case verdictFair:
		text = ax.fair
		if a.Tier != TierPoor {
			a.Tier = TierFair
		}
	default:
		return
	}
	a.Issues = append(a.Issues, text.issue)
	a.Recommendations = append(a.Recommendations, text.recommendation)
}

func ratePing(ms float64) verdict {
	switch {
	case ms > PingPoorMs:
		return verdictPoor
	case ms > PingFairMs:
		return verdictFair
	default:
		return verdictOK
	}
}

func rateThroughput(mbps, poor, fair float64) verdict {
	switch {
	case mbps < poor:
		return verdictPoor
	case mbps < fair:
		return verdictFair
	default:
		return verdictOK
	}
}

// ParseTier converts a stored tier string back to a Tier.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	return t, t.Valid()
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierGood, TierFair, TierPoor:
		return true
	}
	return false
}
