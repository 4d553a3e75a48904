package types

import "time"

// TimestampLayout is the wire format for sample timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// SpeedSample is one measurement produced by a measurement provider.
type SpeedSample struct {
	PingMs       float64
	DownloadMbps float64
	UploadMbps   float64
	MeasuredAt   time.Time
	// Server is the measurement target that produced the sample. Not persisted.
	Server string
}

// SpeedRecord is the persisted unit of history. Records are append-only.
type SpeedRecord struct {
	ID          string
	Sample      SpeedSample
	DetectedISP string
	QualityTier string
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// GeoLocation is the part of a geolocation answer used for ISP resolution.
type GeoLocation struct {
	ISP     string `json:"isp"`
	Org     string `json:"org"`
	AS      string `json:"as,omitempty"`
	Country string `json:"country,omitempty"`
}
