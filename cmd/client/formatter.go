package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apiclient "github.com/saveenergy/ispcheck/pkg/client"
	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/quality"
	"github.com/saveenergy/ispcheck/pkg/types"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	clearLine   = "\r\033[K"
)

var phaseLabels = map[types.Phase]string{
	types.PhaseDetectingISP:    "Detecting ISP",
	types.PhaseSelectingServer: "Selecting server",
	types.PhasePing:            "Measuring latency",
	types.PhaseDownload:        "Measuring download",
	types.PhaseUpload:          "Measuring upload",
	types.PhaseAssessing:       "Assessing quality",
	types.PhaseSaving:          "Saving result",
	types.PhaseComplete:        "Complete",
}

func phaseLabel(phase types.Phase) string {
	if label, ok := phaseLabels[phase]; ok {
		return label
	}
	return string(phase)
}

func errorCode(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	return "CLIENT_ERROR"
}

func (f *JSONFormatter) FormatPhase(types.Phase) {}

func (f *JSONFormatter) FormatResult(result *types.SpeedTestResponse) { f.encode(result) }

func (f *JSONFormatter) FormatHistory(entries []types.HistoryEntry) {
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	f.encode(entries)
}

func (f *JSONFormatter) FormatDetection(det *types.DetectISPResponse) { f.encode(det) }

func (f *JSONFormatter) FormatContacts(contacts []isp.Contact) {
	if len(contacts) == 1 {
		f.encode(contacts[0])
		return
	}
	f.encode(contacts)
}

func (f *JSONFormatter) FormatError(err error) {
	enc := json.NewEncoder(f.errWriter)
	_ = enc.Encode(JSONErrorResponse{
		SchemaVersion: SchemaVersion,
		Error:         true,
		Code:          errorCode(err),
		Message:       err.Error(),
	})
}

func (f *JSONFormatter) encode(v any) {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (f *PlainFormatter) FormatPhase(types.Phase) {}

func (f *PlainFormatter) FormatResult(r *types.SpeedTestResponse) {
	fmt.Fprintf(f.writer, "id=%s\n", r.ID)
	fmt.Fprintf(f.writer, "timestamp=%s\n", r.Timestamp)
	fmt.Fprintf(f.writer, "ping_ms=%.2f\n", r.Ping)
	fmt.Fprintf(f.writer, "download_mbps=%.2f\n", r.DownloadSpeed)
	fmt.Fprintf(f.writer, "upload_mbps=%.2f\n", r.UploadSpeed)
	if r.Server != "" {
		fmt.Fprintf(f.writer, "server=%s\n", r.Server)
	}
	fmt.Fprintf(f.writer, "public_ip=%s\n", r.PublicIP)
	fmt.Fprintf(f.writer, "isp=%s\n", r.DetectedISP)
	fmt.Fprintf(f.writer, "quality=%s\n", r.QualityAssessment.Tier)
	fmt.Fprintf(f.writer, "contact_support=%t\n", r.QualityAssessment.ContactSupport)
	for i, issue := range r.QualityAssessment.Issues {
		fmt.Fprintf(f.writer, "issue_%d=%s\n", i+1, issue)
	}
}

func (f *PlainFormatter) FormatHistory(entries []types.HistoryEntry) {
	for _, e := range entries {
		fmt.Fprintf(f.writer, "id=%s timestamp=%q ping_ms=%.2f download_mbps=%.2f upload_mbps=%.2f isp=%s quality=%s\n",
			e.ID, e.Timestamp, e.Ping, e.DownloadSpeed, e.UploadSpeed, e.ISPDetected, e.QualityAssessment)
	}
}

func (f *PlainFormatter) FormatDetection(det *types.DetectISPResponse) {
	fmt.Fprintf(f.writer, "public_ip=%s\n", det.PublicIP)
	fmt.Fprintf(f.writer, "isp=%s\n", det.DetectedISP)
	fmt.Fprintf(f.writer, "isp_name=%s\n", det.ISPInfo.Name)
}

func (f *PlainFormatter) FormatContacts(contacts []isp.Contact) {
	for _, c := range contacts {
		fmt.Fprintf(f.writer, "key=%s name=%q phone=%q email=%q website=%q\n",
			c.Key, c.Name, c.SupportPhone, c.SupportEmail, c.Website)
	}
}

func (f *PlainFormatter) FormatError(err error) {
	fmt.Fprintf(f.errWriter, "ispcheck client: error: %v\n", err)
}

func (f *InteractiveFormatter) paint(color, s string) string {
	if f.noColor {
		return s
	}
	return color + s + colorReset
}

func (f *InteractiveFormatter) tierColor(tier quality.Tier) string {
	switch tier {
	case quality.TierGood:
		return colorGreen
	case quality.TierFair:
		return colorYellow
	default:
		return colorRed
	}
}

func (f *InteractiveFormatter) FormatPhase(phase types.Phase) {
	if f.noProgress {
		return
	}
	if f.noColor {
		fmt.Fprintf(f.writer, "  %s...\n", phaseLabel(phase))
		return
	}
	fmt.Fprintf(f.writer, "%s  %s...", clearLine, f.paint(colorCyan, phaseLabel(phase)))
	if phase == types.PhaseComplete {
		fmt.Fprint(f.writer, clearLine)
	}
}

func (f *InteractiveFormatter) FormatResult(r *types.SpeedTestResponse) {
	a := r.QualityAssessment
	fmt.Fprintln(f.writer, "\nResults:")
	fmt.Fprintf(f.writer, "  Ping:      %.2f ms\n", r.Ping)
	fmt.Fprintf(f.writer, "  Download:  %.2f Mbps\n", r.DownloadSpeed)
	fmt.Fprintf(f.writer, "  Upload:    %.2f Mbps\n", r.UploadSpeed)
	fmt.Fprintf(f.writer, "  Quality:   %s\n", f.paint(f.tierColor(a.Tier), strings.ToUpper(string(a.Tier))))
	fmt.Fprintf(f.writer, "  ISP:       %s", r.ISPInfo.Name)
	if r.PublicIP != "" {
		fmt.Fprintf(f.writer, " (%s)", r.PublicIP)
	}
	fmt.Fprintln(f.writer)

	if len(a.Issues) > 0 {
		fmt.Fprintln(f.writer, "\nIssues:")
		for i, issue := range a.Issues {
			fmt.Fprintf(f.writer, "  - %s\n", f.paint(colorYellow, issue))
			if i < len(a.Recommendations) {
				fmt.Fprintf(f.writer, "    %s\n", a.Recommendations[i])
			}
		}
	}
	if a.ContactSupport {
		fmt.Fprintf(f.writer, "\n%s\n", f.paint(colorRed, "Consider contacting your ISP:"))
		f.writeContact(r.ISPInfo)
	}
}

func (f *InteractiveFormatter) FormatHistory(entries []types.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(f.writer, "No speed tests recorded yet.")
		return
	}
	fmt.Fprintf(f.writer, "  %-19s %9s %12s %12s %-12s %s\n", "TIMESTAMP", "PING", "DOWNLOAD", "UPLOAD", "ISP", "QUALITY")
	for _, e := range entries {
		tier := quality.Tier(e.QualityAssessment)
		fmt.Fprintf(f.writer, "  %-19s %6.1f ms %7.2f Mbps %7.2f Mbps %-12s %s\n",
			e.Timestamp, e.Ping, e.DownloadSpeed, e.UploadSpeed, e.ISPDetected,
			f.paint(f.tierColor(tier), e.QualityAssessment))
	}
}

func (f *InteractiveFormatter) FormatDetection(det *types.DetectISPResponse) {
	ip := det.PublicIP
	if ip == "" {
		ip = "unavailable"
	}
	fmt.Fprintf(f.writer, "Public IP: %s\n", ip)
	fmt.Fprintf(f.writer, "ISP:       %s (%s)\n\n", f.paint(colorCyan, det.ISPInfo.Name), det.DetectedISP)
	f.writeContact(det.ISPInfo)
}

func (f *InteractiveFormatter) FormatContacts(contacts []isp.Contact) {
	for i, c := range contacts {
		if i > 0 {
			fmt.Fprintln(f.writer)
		}
		fmt.Fprintf(f.writer, "%s (%s)\n", f.paint(colorCyan, c.Name), c.Key)
		f.writeContact(c)
	}
}

func (f *InteractiveFormatter) writeContact(c isp.Contact) {
	rows := []struct{ label, value string }{
		{"Phone", c.SupportPhone},
		{"Email", c.SupportEmail},
		{"WhatsApp", c.WhatsApp},
		{"Website", c.Website},
		{"Live chat", c.LiveChat},
		{"Twitter", c.Social.Twitter},
		{"Facebook", c.Social.Facebook},
	}
	for _, row := range rows {
		if row.value != "" {
			fmt.Fprintf(f.writer, "  %-10s %s\n", row.label+":", row.value)
		}
	}
}

func (f *InteractiveFormatter) FormatError(err error) {
	fmt.Fprintf(f.errWriter, "%s %v\n", f.paint(colorRed, "ispcheck client: error:"), err)
}
