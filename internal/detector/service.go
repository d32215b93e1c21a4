package detector

import (
	"context"
	"time"

	"mingmou/internal/dao"
	"mingmou/internal/fixture"
	"mingmou/internal/metrics"
	"mingmou/internal/upload"
)

// API is the part of the detection API the Service drives.
type API interface {
	Upload(ctx context.Context, img *upload.Image) (*dao.UploadResponse, error)
	Detect(ctx context.Context, img *upload.Image) (*dao.DetectionResponse, error)
	DetectTest(ctx context.Context, name, serverPath string) (*dao.DetectionResponse, error)
	DetectBatch(ctx context.Context, images []*upload.Image) (*dao.BatchResponse, error)
}

// Service runs detections and degrades to the fixture store when the API
// fails for a recognized demo image.
type Service struct {
	api         API
	fixtures    *fixture.Store
	uploadFirst bool
}

func NewService(api API, fixtures *fixture.Store, uploadFirst bool) *Service {
	return &Service{
		api:         api,
		fixtures:    fixtures,
		uploadFirst: uploadFirst,
	}
}

func observe(kind string, start time.Time, outcome string) {
	metrics.DetectionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.DetectionsTotal.WithLabelValues(kind, outcome).Inc()
}

// DetectSingle returns an online result, a fixture result in offline mode, or
// an error wrapping ErrDetectionFailed.
func (s *Service) DetectSingle(ctx context.Context, img *upload.Image) (*dao.DetectionResponse, error) {
	logger := detectorLogger(ctx)
	kind := metrics.KindSingle
	if img.IsFixture {
		kind = metrics.KindTest
	}
	start := time.Now()

	resp, err := s.detectOnline(ctx, img)
	if err == nil {
		if resp.Mode == "" {
			resp.Mode = dao.ModeOnline
		}
		observe(kind, start, metrics.OutcomeSuccess)
		return resp, nil
	}

	if offline := s.DetectFixture(img.Name); offline != nil {
		logger.WithError(err).Warnf("detection of %s failed, using demo result", img.Name)
		metrics.FixtureFallbackTotal.Inc()
		observe(kind, start, metrics.OutcomeFallback)
		return offline, nil
	}

	logger.WithError(err).Errorf("detection of %s failed", img.Name)
	observe(kind, start, metrics.OutcomeFailed)
	return nil, err
}

func (s *Service) detectOnline(ctx context.Context, img *upload.Image) (*dao.DetectionResponse, error) {
	if img.IsFixture {
		return s.api.DetectTest(ctx, img.Name, img.ServerPath)
	}
	if s.uploadFirst {
		if _, err := s.api.Upload(ctx, img); err != nil {
			return nil, err
		}
	}
	return s.api.Detect(ctx, img)
}

// DetectBatch posts all images in one request. Item success flags are
// reported as returned by the API.
func (s *Service) DetectBatch(ctx context.Context, images []*upload.Image) (*dao.BatchResponse, error) {
	start := time.Now()
	resp, err := s.api.DetectBatch(ctx, images)
	if err != nil {
		detectorLogger(ctx).WithError(err).Errorf("batch detection of %d images failed", len(images))
		observe(metrics.KindBatch, start, metrics.OutcomeFailed)
		return nil, err
	}
	observe(metrics.KindBatch, start, metrics.OutcomeSuccess)
	return resp, nil
}

// DetectFixture returns the canned result for name, nil when none is registered.
func (s *Service) DetectFixture(name string) *dao.DetectionResponse {
	if s.fixtures == nil {
		return nil
	}
	return s.fixtures.Lookup(name)
}

func (s *Service) Fixtures() *fixture.Store {
	return s.fixtures
}
