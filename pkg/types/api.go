package types

import (
	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/quality"
)

// SpeedTestResponse is the body of a successful GET /speedtest.
type SpeedTestResponse struct {
	ID                string             `json:"id"`
	Ping              float64            `json:"ping"`
	DownloadSpeed     float64            `json:"download_speed"`
	UploadSpeed       float64            `json:"upload_speed"`
	Timestamp         string             `json:"timestamp"`
	Server            string             `json:"server,omitempty"`
	PublicIP          string             `json:"public_ip"`
	DetectedISP       string             `json:"detected_isp"`
	ISPInfo           isp.Contact        `json:"isp_info"`
	QualityAssessment quality.Assessment `json:"quality_assessment"`
}

// HistoryEntry is one persisted run as returned by GET /history.
type HistoryEntry struct {
	ID                string  `json:"id"`
	Ping              float64 `json:"ping"`
	DownloadSpeed     float64 `json:"download_speed"`
	UploadSpeed       float64 `json:"upload_speed"`
	Timestamp         string  `json:"timestamp"`
	ISPDetected       string  `json:"isp_detected"`
	QualityAssessment string  `json:"quality_assessment"`
}

type DetectISPResponse struct {
	PublicIP    string      `json:"public_ip"`
	DetectedISP string      `json:"detected_isp"`
	ISPInfo     isp.Contact `json:"isp_info"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

func NewHistoryEntry(rec SpeedRecord) HistoryEntry {
	return HistoryEntry{
		ID:                rec.ID,
		Ping:              rec.Sample.PingMs,
		DownloadSpeed:     rec.Sample.DownloadMbps,
		UploadSpeed:       rec.Sample.UploadMbps,
		Timestamp:         FormatTimestamp(rec.Sample.MeasuredAt),
		ISPDetected:       rec.DetectedISP,
		QualityAssessment: rec.QualityTier,
	}
}
