package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mingmou/internal/config"
	"mingmou/internal/dao"
	"mingmou/internal/events"
	"mingmou/internal/fixture"
	"mingmou/internal/history"
	"mingmou/internal/metrics"
	"mingmou/internal/render"
	"mingmou/internal/report"
	"mingmou/internal/upload"
	"mingmou/pkg/log"
)

var (
	ErrBusy            = errors.New("a detection is already running")
	ErrNothingSelected = errors.New("no image selected")
	ErrNoResult        = errors.New("no detection result")
	ErrUnknownFixture  = errors.New("unknown demo image")
)

const (
	msgDetectFailed  = "检测失败，请重试"
	msgBatchFailed   = "批量检测失败，请重试"
	msgReportFailed  = "下载报告失败，请重试"
	msgHistoryFailed = "加载历史记录失败"
	msgDetectDone    = "检测完成"
	msgOffline       = "检测服务不可用，已显示演示结果"
	msgReportSaved   = "报告已生成"
)

// Detector runs single and batch detections.
type Detector interface {
	DetectSingle(ctx context.Context, img *upload.Image) (*dao.DetectionResponse, error)
	DetectBatch(ctx context.Context, images []*upload.Image) (*dao.BatchResponse, error)
}

// Remote is the part of the detection API used outside of detection.
type Remote interface {
	history.Fetcher
	report.PDFSource
	History(ctx context.Context) ([]dao.HistoryEntry, error)
}

type Archiver interface {
	Archive(ctx context.Context, exp *report.Export) (string, error)
}

type Options struct {
	Validator *upload.Validator
	Detector  Detector
	Fixtures  *fixture.Store
	Remote    Remote
	// History defaults to an in-memory store.
	History   *history.Store
	Exporter  *report.Exporter
	// Archiver and Publisher are optional.
	Archiver  Archiver
	Publisher events.Publisher
	Render    config.RenderConfig
	ToastTTL  time.Duration
}

// State is a snapshot of everything the console displays.
type State struct {
	Selection *upload.Selection `json:"selection,omitempty"`
	View      *render.View      `json:"view,omitempty"`
	Batch     *render.BatchView `json:"batch,omitempty"`
	Offline   bool              `json:"offline"`
	Busy      bool              `json:"busy"`
	Toasts    []Toast           `json:"toasts"`
}

// Session owns the current selection and result of one console user. At most
// one detection runs at a time; a failed detection leaves the previous result
// in place.
type Session struct {
	mu   sync.Mutex
	busy bool

	validator *upload.Validator
	detector  Detector
	fixtures  *fixture.Store
	remote    Remote
	history   *history.Store
	exporter  *report.Exporter
	archiver  Archiver
	publisher events.Publisher
	renderCfg config.RenderConfig
	opts      render.Options
	toasts    *toastQueue
	now       func() time.Time
	logger    *logrus.Entry

	selection *upload.Selection
	current   *dao.DetectionResponse
	view      *render.View
	batch     *render.BatchView
	offline   bool
}

func New(o Options) *Session {
	publisher := o.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	hist := o.History
	if hist == nil {
		// in-memory store, never fails without a snapshot db
		hist, _ = history.NewStore(history.DefaultLimit, nil)
	}
	return &Session{
		validator: o.Validator,
		detector:  o.Detector,
		fixtures:  o.Fixtures,
		remote:    o.Remote,
		history:   hist,
		exporter:  o.Exporter,
		archiver:  o.Archiver,
		publisher: publisher,
		renderCfg: o.Render,
		opts:      render.OptionsFrom(o.Render),
		toasts:    newToastQueue(o.ToastTTL),
		now:       time.Now,
		logger:    log.Component("session"),
	}
}

// resetResult drops everything derived from the previous selection.
func (s *Session) resetResult() {
	s.current, s.view, s.batch, s.offline = nil, nil, nil, false
}

// Select validates files and replaces the selection when at least one is
// valid. Every rejected file raises a toast; the returned error joins them.
func (s *Session) Select(files []upload.File) (*upload.Selection, error) {
	sel, errs := s.validator.Select(files)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, err := range errs {
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationFailuresTotal.WithLabelValues(verr.Reason).Inc()
		}
		s.toasts.push(ToastError, err.Error(), now)
	}
	if sel == nil {
		if len(errs) == 0 {
			return nil, ErrNothingSelected
		}
		return nil, errors.Join(errs...)
	}
	if s.busy {
		return nil, ErrBusy
	}
	s.selection = sel
	s.resetResult()
	return sel, errors.Join(errs...)
}

// SelectFixture selects a demo image by name.
func (s *Session) SelectFixture(name string) (*upload.Selection, error) {
	var e *fixture.Entry
	if s.fixtures != nil {
		e = s.fixtures.Entry(name)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFixture, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrBusy
	}
	s.selection = upload.Single(upload.FixtureImage(e.Name, e.ServerPath))
	s.resetResult()
	return s.selection, nil
}

func (s *Session) acquire() (*upload.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrBusy
	}
	if s.selection == nil || len(s.selection.Images) == 0 {
		return nil, ErrNothingSelected
	}
	s.busy = true
	return s.selection, nil
}

// Detect runs the selected detection. A second call while one is running
// fails with ErrBusy.
func (s *Session) Detect(ctx context.Context) error {
	sel, err := s.acquire()
	if err != nil {
		return err
	}
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if sel.Mode == upload.ModeBatch {
		return s.detectBatch(ctx, sel.Images)
	}
	return s.detectSingle(ctx, sel.Images[0])
}

func (s *Session) detectSingle(ctx context.Context, img *upload.Image) error {
	logger := log.GetLogger(ctx)
	resp, err := s.detector.DetectSingle(ctx, img)
	if err != nil {
		s.toast(ToastError, msgDetectFailed)
		return err
	}

	geo := render.FitDisplay(img.Width, img.Height, s.renderCfg.DisplayMaxWidth, s.renderCfg.DisplayMaxHeight)
	view, err := render.Render(resp, geo, s.opts)
	if err != nil {
		logger.WithError(err).Warnf("render result of %s skipped", img.Name)
	}
	offline := resp.Mode == dao.ModeOffline
	now := s.now()

	s.mu.Lock()
	s.current, s.view, s.batch, s.offline = resp, view, nil, offline
	if offline {
		s.toasts.push(ToastInfo, msgOffline, now)
	} else {
		s.toasts.push(ToastSuccess, msgDetectDone, now)
	}
	s.mu.Unlock()

	if offline {
		return nil
	}
	s.history.Record(resp, img.Name, now)
	if err := s.publisher.Publish(dao.NewDetectionEvent(resp, img.Name, now.Unix())); err != nil {
		logger.WithError(err).Errorf("publish detection of %s failed", img.Name)
	}
	return nil
}

func (s *Session) detectBatch(ctx context.Context, images []*upload.Image) error {
	resp, err := s.detector.DetectBatch(ctx, images)
	if err != nil {
		s.toast(ToastError, msgBatchFailed)
		return err
	}
	bv := render.RenderBatch(resp.Results)

	s.mu.Lock()
	s.current, s.view, s.batch, s.offline = nil, nil, bv, false
	s.toasts.push(ToastSuccess, bv.Title, s.now())
	s.mu.Unlock()
	return nil
}

func (s *Session) toast(kind, msg string) {
	s.mu.Lock()
	s.toasts.push(kind, msg, s.now())
	s.mu.Unlock()
}

// Clear drops the selection and any result.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.selection = nil
	s.resetResult()
	return nil
}

// SelectHistory loads a past result and makes it current.
func (s *Session) SelectHistory(ctx context.Context, id string) error {
	resp, err := s.history.Select(ctx, id, s.remote)
	if err != nil {
		log.GetLogger(ctx).WithError(err).Errorf("load history result %s failed", id)
		s.toast(ToastError, msgHistoryFailed)
		return err
	}
	var boxes []dao.BoundingBox
	if resp.Detection != nil {
		boxes = resp.Detection.BoundingBoxes
	}
	geo := render.ExtentGeometry(boxes, s.renderCfg.DisplayMaxWidth, s.renderCfg.DisplayMaxHeight)
	view, err := render.Render(resp, geo, s.opts)
	if err != nil {
		log.GetLogger(ctx).WithError(err).Warnf("render history result %s skipped", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	// The selected image belongs to another result.
	s.selection = nil
	s.current, s.view, s.batch, s.offline = resp, view, nil, resp.Mode == dao.ModeOffline
	return nil
}

// LoadHistory refreshes the list from the history service. The local list is
// returned in any case.
func (s *Session) LoadHistory(ctx context.Context) ([]dao.HistoryEntry, error) {
	if s.remote == nil {
		return s.history.List(), nil
	}
	entries, err := s.remote.History(ctx)
	if err != nil {
		log.GetLogger(ctx).WithError(err).Warn("load history failed")
		return s.history.List(), err
	}
	s.history.Replace(entries)
	return s.history.List(), nil
}

func (s *Session) History() []dao.HistoryEntry {
	return s.history.List()
}

// DownloadReport exports the current result as text/JSON, or as PDF when
// format is "pdf".
func (s *Session) DownloadReport(ctx context.Context, format string) (*report.Export, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil, ErrNoResult
	}

	var (
		exp *report.Export
		err error
	)
	if format == report.FormatPDF {
		exp, err = s.exporter.ExportPDF(ctx, current, s.now())
	} else {
		exp, err = s.exporter.Export(current, s.now())
	}
	if err != nil {
		s.toast(ToastError, msgReportFailed)
		return nil, err
	}

	if s.archiver != nil {
		if key, err := s.archiver.Archive(ctx, exp); err != nil {
			log.GetLogger(ctx).WithError(err).Errorf("archive %s failed", exp.Filename)
		} else {
			log.GetLogger(ctx).Infof("report archived as %s", key)
		}
	}
	s.toast(ToastSuccess, msgReportSaved)
	return exp, nil
}

// Current returns a copy of the current result, nil when there is none.
func (s *Session) Current() *dao.DetectionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *Session) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &State{
		Selection: s.selection,
		View:      s.view,
		Batch:     s.batch,
		Offline:   s.offline,
		Busy:      s.busy,
		Toasts:    s.toasts.active(s.now()),
	}
}

// ActiveToasts returns the toasts still visible at now.
func (s *Session) ActiveToasts(now time.Time) []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toasts.active(now)
}

// WriteOverlay draws the current boxes over the selected image as PNG.
func (s *Session) WriteOverlay(w io.Writer) error {
	s.mu.Lock()
	view := s.view
	var src []byte
	if s.selection != nil && s.selection.Mode == upload.ModeSingle {
		src = s.selection.Images[0].Data
	}
	s.mu.Unlock()
	if view == nil {
		return ErrNoResult
	}
	return render.OverlayPNG(w, src, view)
}

// WriteChart rasterizes the confidence chart, or the severity chart when
// severity is set.
func (s *Session) WriteChart(w io.Writer, severity bool) error {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	if view == nil {
		return ErrNoResult
	}
	cv := view.Chart
	if severity {
		cv = view.SeverityChart
	}
	if cv == nil {
		return ErrNoResult
	}
	return render.ChartPNG(w, cv)
}
