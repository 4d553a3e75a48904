// Package speedtest sequences a full test run: public address discovery,
// ISP resolution, measurement, quality assessment and persistence.
package speedtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/internal/measure"
	"github.com/saveenergy/ispcheck/internal/notify"
	ispErrors "github.com/saveenergy/ispcheck/pkg/errors"
	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/quality"
	"github.com/saveenergy/ispcheck/pkg/types"
)

type PublicIPProvider interface {
	WhoAmI(ctx context.Context) (string, error)
}

type GeoProvider interface {
	Lookup(ctx context.Context, ip string) (types.GeoLocation, error)
}

type Measurer interface {
	Measure(ctx context.Context, progress types.ProgressFunc) (types.SpeedSample, error)
}

type HistoryStore interface {
	Save(ctx context.Context, rec types.SpeedRecord) error
	List(ctx context.Context, limit int) ([]types.SpeedRecord, error)
}

type Notifier interface {
	NotifySupport(ctx context.Context, alert notify.Alert) error
}

const (
	defaultLookupTimeout = 5 * time.Second
	notifyTimeout        = 10 * time.Second
)

// Result is the outcome of one successful run.
type Result struct {
	Record     types.SpeedRecord
	PublicIP   string
	Contact    isp.Contact
	Assessment quality.Assessment
}

// Detection is the outcome of ISP detection without a measurement.
type Detection struct {
	PublicIP string
	Key      string
	Contact  isp.Contact
}

type Config struct {
	PublicIP  PublicIPProvider
	Geo       GeoProvider
	Measurer  Measurer
	Store     HistoryStore
	Notifier  Notifier
	Directory *isp.Directory

	LookupTimeout      time.Duration
	MaxConcurrentTests int

	// Logger defaults to the package logger.
	Logger *logging.Logger
}

type Service struct {
	publicIP  PublicIPProvider
	geo       GeoProvider
	measurer  Measurer
	store     HistoryStore
	notifier  Notifier
	directory *isp.Directory

	lookupTimeout time.Duration
	slots         chan struct{}
	alerts        sync.WaitGroup
	logger        *logging.Logger

	now   func() time.Time
	newID func() string
}

func NewService(cfg Config) *Service {
	dir := cfg.Directory
	if dir == nil {
		dir = isp.Default()
	}
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("speedtest")
	}
	maxTests := cfg.MaxConcurrentTests
	if maxTests <= 0 {
		maxTests = 1
	}
	return &Service{
		publicIP:      cfg.PublicIP,
		geo:           cfg.Geo,
		measurer:      cfg.Measurer,
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		directory:     dir,
		lookupTimeout: timeout,
		slots:         make(chan struct{}, maxTests),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.NewString() },
	}
}

// ActiveTests reports how many runs currently hold a slot.
func (s *Service) ActiveTests() int {
	return len(s.slots)
}

// RunTest performs a full test. Only measurement and persistence failures
// abort the run; address discovery and geolocation degrade to the unknown ISP.
func (s *Service) RunTest(ctx context.Context, progress types.ProgressFunc) (*Result, error) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		return nil, ispErrors.ErrResourceExhausted("too many concurrent speed tests")
	}

	progress.Report(types.PhaseDetectingISP)
	det := s.detect(ctx)

	sample, err := s.measurer.Measure(ctx, progress)
	if err != nil {
		if ispErrors.IsContextError(err) && ctx.Err() != nil {
			s.logger.Info("speed test canceled", logging.Err(err))
		} else {
			s.logger.Error("measurement failed", logging.Err(err))
		}
		if errors.Is(err, measure.ErrNoServers) {
			return nil, ispErrors.ErrMeasurement("no measurement servers configured", err)
		}
		return nil, ispErrors.ErrMeasurement("speed measurement failed", err)
	}
	if sample.MeasuredAt.IsZero() {
		sample.MeasuredAt = s.now()
	}

	progress.Report(types.PhaseAssessing)
	assessment := quality.Assess(sample.PingMs, sample.DownloadMbps, sample.UploadMbps)

	rec := types.SpeedRecord{
		ID:          s.newID(),
		Sample:      sample,
		DetectedISP: det.Key,
		QualityTier: string(assessment.Tier),
	}

	progress.Report(types.PhaseSaving)
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error("failed to save speed test",
			logging.Err(err),
			logging.F("ping_ms", sample.PingMs),
			logging.F("download_mbps", sample.DownloadMbps),
			logging.F("upload_mbps", sample.UploadMbps),
			logging.F("isp", det.Key))
		return nil, ispErrors.ErrPersistence("failed to save speed test", err)
	}

	res := &Result{
		Record:     rec,
		PublicIP:   det.PublicIP,
		Contact:    det.Contact,
		Assessment: assessment,
	}

	s.logger.Info("speed test completed",
		logging.F("id", rec.ID),
		logging.F("isp", det.Key),
		logging.F("quality", assessment.Tier),
		logging.F("ping_ms", sample.PingMs),
		logging.F("download_mbps", sample.DownloadMbps),
		logging.F("upload_mbps", sample.UploadMbps))

	if assessment.ContactSupport && s.notifier != nil {
		alertCtx := context.WithoutCancel(ctx)
		s.alerts.Add(1)
		go func() {
			defer s.alerts.Done()
			s.notifySupport(alertCtx, res)
		}()
	}
	progress.Report(types.PhaseComplete)
	return res, nil
}

// WaitAlerts blocks until support alerts started by finished runs are sent.
func (s *Service) WaitAlerts() {
	s.alerts.Wait()
}

// ListHistory returns saved records newest first. limit <= 0 returns all.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]types.SpeedRecord, error) {
	records, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, ispErrors.ErrPersistence("failed to load history", err)
	}
	return records, nil
}

// DetectCurrentISP identifies the ISP of the machine running the service.
// It never fails; lookup problems yield the unknown record.
func (s *Service) DetectCurrentISP(ctx context.Context) Detection {
	return s.detect(ctx)
}

// ISPInfo returns the support contact for key, or the unknown record.
func (s *Service) ISPInfo(key string) isp.Contact {
	return s.directory.Get(key)
}

// Directory returns every known support contact.
func (s *Service) Directory() []isp.Contact {
	return s.directory.All()
}

func (s *Service) detect(ctx context.Context) Detection {
	det := Detection{Key: isp.UnknownKey}

	if s.publicIP != nil {
		ipCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
		ip, err := s.publicIP.WhoAmI(ipCtx)
		cancel()
		if err != nil || ip == "" {
			s.logger.Warn("public address lookup failed", logging.Err(err))
		} else {
			det.PublicIP = ip
		}
	}

	if det.PublicIP != "" && s.geo != nil {
		geoCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
		loc, err := s.geo.Lookup(geoCtx, det.PublicIP)
		cancel()
		if err != nil {
			s.logger.Warn("geolocation lookup failed", logging.F("ip", det.PublicIP), logging.Err(err))
		} else {
			det.Key = isp.Resolve(loc.ISP, loc.Org)
			s.logger.Debug("isp resolved",
				logging.F("isp_name", loc.ISP),
				logging.F("org_name", loc.Org),
				logging.F("key", det.Key))
		}
	}

	det.Contact = s.directory.Get(det.Key)
	return det
}

func (s *Service) notifySupport(ctx context.Context, res *Result) {
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	alert := notify.Alert{
		RecordID:   res.Record.ID,
		PublicIP:   res.PublicIP,
		Sample:     res.Record.Sample,
		Contact:    res.Contact,
		Assessment: res.Assessment,
	}
	if err := s.notifier.NotifySupport(nctx, alert); err != nil {
		s.logger.Warn("support alert failed", logging.F("id", res.Record.ID), logging.Err(err))
	}
}
