package api

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/saveenergy/ispcheck/internal/chart"
	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/internal/speedtest"
	"github.com/saveenergy/ispcheck/pkg/errors"
	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/types"
)

// TestService is the part of speedtest.Service the handlers depend on.
type TestService interface {
	RunTest(ctx context.Context, progress types.ProgressFunc) (*speedtest.Result, error)
	ListHistory(ctx context.Context, limit int) ([]types.SpeedRecord, error)
	DetectCurrentISP(ctx context.Context) speedtest.Detection
	ISPInfo(key string) isp.Contact
	Directory() []isp.Contact
}

// ProgressHub relays run progress to WebSocket subscribers.
type ProgressHub interface {
	HandleRun(w http.ResponseWriter, r *http.Request, runID string)
	PublishPhase(runID string, phase types.Phase)
	PublishResult(runID string, result any)
	PublishError(runID, code, message string)
}

const chartHistoryLimit = 200

type Handler struct {
	service TestService
	hub     ProgressHub
	version string
	logger  *logging.Logger
}

func NewHandler(service TestService, hub ProgressHub) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		version: "dev",
		logger:  logging.NewLogger("api"),
	}
}

func (h *Handler) SetVersion(version string) {
	if version != "" {
		h.version = version
	}
}

// RunSpeedTest runs a full test. With ?run_id=<uuid> progress is published
// to subscribers of /speedtest/{run_id}/stream.
func (h *Handler) RunSpeedTest(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID != "" && !isValidRunID(runID) {
		respondError(w, errors.ErrInvalidRequest("run_id must be a UUID"))
		return
	}

	var progress types.ProgressFunc
	if runID != "" && h.hub != nil {
		progress = func(phase types.Phase) { h.hub.PublishPhase(runID, phase) }
	}

	res, err := h.service.RunTest(r.Context(), progress)
	if err != nil {
		status, body := errorResponse(err)
		if runID != "" && h.hub != nil {
			h.hub.PublishError(runID, body.Code, body.Error)
		}
		respondJSON(w, body, status)
		return
	}

	resp := speedTestResponse(res)
	if runID != "" && h.hub != nil {
		h.hub.PublishResult(runID, resp)
	}
	respondJSON(w, resp, http.StatusOK)
}

func (h *Handler) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if !isValidRunID(runID) {
		respondError(w, errors.ErrInvalidRequest("run ID must be a UUID"))
		return
	}
	if h.hub == nil {
		respondJSON(w, errorBody("progress streaming disabled", errors.ErrCodeInternal), http.StatusNotFound)
		return
	}
	h.hub.HandleRun(w, r, runID)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, errors.ErrInvalidRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.service.ListHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error("history query failed", logging.Err(err))
		respondError(w, err)
		return
	}

	entries := make([]types.HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, types.NewHistoryEntry(rec))
	}
	respondJSON(w, entries, http.StatusOK)
}

func (h *Handler) HistoryChart(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListHistory(r.Context(), chartHistoryLimit)
	if err != nil {
		h.logger.Error("history query failed", logging.Err(err))
		respondError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderHistory(&buf, records); err != nil {
		if stdErrors.Is(err, chart.ErrNotEnoughData) {
			respondJSON(w, errorBody(err.Error(), ""), http.StatusNotFound)
			return
		}
		h.logger.Error("chart render failed", logging.Err(err))
		respondJSON(w, errorBody("failed to render chart", errors.ErrCodeInternal), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("chart write failed", logging.Err(err))
	}
}

// ISPInfo always answers 200; unknown keys yield the fallback contact.
func (h *Handler) ISPInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.service.ISPInfo(r.PathValue("isp_name")), http.StatusOK)
}

func (h *Handler) ListISPs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.service.Directory(), http.StatusOK)
}

func (h *Handler) DetectISP(w http.ResponseWriter, r *http.Request) {
	det := h.service.DetectCurrentISP(r.Context())
	respondJSON(w, types.DetectISPResponse{
		PublicIP:    det.PublicIP,
		DetectedISP: det.Key,
		ISPInfo:     det.Contact,
	}, http.StatusOK)
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, types.VersionResponse{Version: h.version}, http.StatusOK)
}

func speedTestResponse(res *speedtest.Result) types.SpeedTestResponse {
	sample := res.Record.Sample
	return types.SpeedTestResponse{
		ID:                res.Record.ID,
		Ping:              sample.PingMs,
		DownloadSpeed:     sample.DownloadMbps,
		UploadSpeed:       sample.UploadMbps,
		Timestamp:         types.FormatTimestamp(sample.MeasuredAt),
		Server:            sample.Server,
		PublicIP:          res.PublicIP,
		DetectedISP:       res.Record.DetectedISP,
		ISPInfo:           res.Contact,
		QualityAssessment: res.Assessment,
	}
}

func isValidRunID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// errorResponse maps a coded error to its HTTP status. Causes stay in the
// logs; only the coded message is returned to callers.
func errorResponse(err error) (int, types.ErrorResponse) {
	var coded *errors.Error
	if !stdErrors.As(err, &coded) {
		return http.StatusInternalServerError, errorBody("internal error", errors.ErrCodeInternal)
	}
	status := http.StatusInternalServerError
	switch coded.Code {
	case errors.ErrCodeResourceExhausted:
		status = http.StatusServiceUnavailable
	case errors.ErrCodeInvalidRequest, errors.ErrCodeInvalidConfig:
		status = http.StatusBadRequest
	case errors.ErrCodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	}
	return status, errorBody(coded.Message, coded.Code)
}

func errorBody(msg, code string) types.ErrorResponse {
	return types.ErrorResponse{Error: msg, Code: code}
}

func respondError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	respondJSON(w, body, status)
}

func respondInvalid(w http.ResponseWriter, msg string) {
	respondJSON(w, errorBody(msg, errors.ErrCodeInvalidRequest), http.StatusBadRequest)
}

func respondBusy(w http.ResponseWriter, msg string) {
	respondJSON(w, errorBody(msg, errors.ErrCodeResourceExhausted), http.StatusServiceUnavailable)
}

func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("JSON response encode failed", logging.Err(err))
	}
}
