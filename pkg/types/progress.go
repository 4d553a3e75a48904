package types

type Phase string

const (
	PhaseDetectingISP    Phase = "detecting_isp"
	PhaseSelectingServer Phase = "selecting_server"
	PhasePing            Phase = "ping"
	PhaseDownload        Phase = "download"
	PhaseUpload          Phase = "upload"
	PhaseAssessing       Phase = "assessing"
	PhaseSaving          Phase = "saving"
	PhaseComplete        Phase = "complete"
)

// ProgressFunc receives phase transitions of a running test. It may be nil.
type ProgressFunc func(Phase)

// Report calls f with phase when f is non-nil.
func (f ProgressFunc) Report(phase Phase) {
	if f != nil {
		f(phase)
	}
}
