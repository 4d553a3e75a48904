package client

import (
	"io"

	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/types"
)

type mode string

const (
	modeTest    mode = "test"
	modeHistory mode = "history"
	modeDetect  mode = "detect"
	modeISP     mode = "isp"
	modeISPs    mode = "isps"
)

type OutputFormatter interface {
	FormatPhase(phase types.Phase)
	FormatResult(result *types.SpeedTestResponse)
	FormatHistory(entries []types.HistoryEntry)
	FormatDetection(det *types.DetectISPResponse)
	FormatContacts(contacts []isp.Contact)
	FormatError(err error)
}

type JSONFormatter struct {
	writer    io.Writer
	errWriter io.Writer
}

type PlainFormatter struct {
	writer    io.Writer
	errWriter io.Writer
}

type InteractiveFormatter struct {
	writer     io.Writer
	errWriter  io.Writer
	noColor    bool
	noProgress bool
}

func NewInteractiveFormatter(w, errW io.Writer, noColor, noProgress bool) *InteractiveFormatter {
	return &InteractiveFormatter{writer: w, errWriter: errW, noColor: noColor, noProgress: noProgress}
}

type Config struct {
	Mode       mode
	ISP        string
	ServerURL  string
	Timeout    int
	Limit      int
	JSON       bool
	Plain      bool
	NoColor    bool
	NoProgress bool
	Quiet      bool
}

// SchemaVersion is the version of the --json error schema.
const SchemaVersion = "1.0"

// JSONErrorResponse is the structured error emitted when --json is active.
type JSONErrorResponse struct {
	SchemaVersion string `json:"schema_version"`
	Error         bool   `json:"error"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}
