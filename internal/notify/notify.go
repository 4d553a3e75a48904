// Package notify delivers support alerts for connections that warrant
// contacting the ISP.
package notify

import (
	"fmt"
	"strings"

	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/quality"
	"github.com/saveenergy/ispcheck/pkg/types"
)

// Alert describes a finished test whose assessment suggests contacting support.
type Alert struct {
	RecordID   string
	PublicIP   string
	Sample     types.SpeedSample
	Contact    isp.Contact
	Assessment quality.Assessment
}

// FormatAlert renders an alert as plain text.
func FormatAlert(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Connection quality: %s\n", strings.ToUpper(string(a.Assessment.Tier)))
	fmt.Fprintf(&b, "ISP: %s\n", a.Contact.Name)
	if a.PublicIP != "" {
		fmt.Fprintf(&b, "Public IP: %s\n", a.PublicIP)
	}
	fmt.Fprintf(&b, "Ping %.2f ms, download %.2f Mbps, upload %.2f Mbps\n",
		a.Sample.PingMs, a.Sample.DownloadMbps, a.Sample.UploadMbps)
	if !a.Sample.MeasuredAt.IsZero() {
		fmt.Fprintf(&b, "Measured at %s UTC\n", types.FormatTimestamp(a.Sample.MeasuredAt))
	}

	b.WriteString("\nIssues:\n")
	for i, issue := range a.Assessment.Issues {
		fmt.Fprintf(&b, "- %s", issue)
		if i < len(a.Assessment.Recommendations) {
			fmt.Fprintf(&b, ": %s", a.Assessment.Recommendations[i])
		}
		b.WriteByte('\n')
	}

	var channels []string
	if a.Contact.SupportPhone != "" {
		channels = append(channels, "phone "+a.Contact.SupportPhone)
	}
	if a.Contact.SupportEmail != "" {
		channels = append(channels, "email "+a.Contact.SupportEmail)
	}
	if a.Contact.WhatsApp != "" {
		channels = append(channels, "WhatsApp "+a.Contact.WhatsApp)
	}
	if a.Contact.LiveChat != "" {
		channels = append(channels, "chat "+a.Contact.LiveChat)
	}
	if len(channels) > 0 {
		fmt.Fprintf(&b, "\nSupport: %s\n", strings.Join(channels, ", "))
	}
	if a.RecordID != "" {
		fmt.Fprintf(&b, "Record: %s\n", a.RecordID)
	}
	return b.String()
}
