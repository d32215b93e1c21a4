package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mingmou/internal/dao"
	"mingmou/internal/metrics"
	"mingmou/pkg/log"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatPDF  = "pdf"

	timestampLayout = "20060102_150405"
)

var (
	ErrNoReport   = errors.New("no detection result to export")
	ErrNoResultID = errors.New("result has no id, pdf report unavailable")
)

// Export is a finished download: name, content type and bytes.
type Export struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Format      string `json:"format"`
	Data        []byte `json:"-"`
}

type jsonExport struct {
	DetectionTime string                 `json:"detection_time"`
	Result        *dao.DetectionResponse `json:"result"`
}

// PDFSource renders a stored result server side.
type PDFSource interface {
	Report(ctx context.Context, resultId, format string) ([]byte, string, error)
}

type Exporter struct {
	pdf PDFSource
}

func NewExporter(pdf PDFSource) *Exporter {
	return &Exporter{pdf: pdf}
}

func stamp(now time.Time) string {
	return now.Format(timestampLayout)
}

// Export serializes resp locally. The report text is used when present,
// otherwise the whole response is dumped as JSON.
func (e *Exporter) Export(resp *dao.DetectionResponse, now time.Time) (*Export, error) {
	if resp == nil || resp.Detection == nil {
		return nil, ErrNoReport
	}

	if text := resp.Detection.ReportText; text != "" {
		metrics.ReportsTotal.WithLabelValues(FormatText, metrics.OutcomeSuccess).Inc()
		return &Export{
			Filename:    fmt.Sprintf("检测报告_%s.txt", stamp(now)),
			ContentType: "text/plain; charset=utf-8",
			Format:      FormatText,
			Data:        []byte(text),
		}, nil
	}

	data, err := json.MarshalIndent(&jsonExport{
		DetectionTime: now.Format(time.RFC3339),
		Result:        resp,
	}, "", "  ")
	if err != nil {
		metrics.ReportsTotal.WithLabelValues(FormatJSON, metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	metrics.ReportsTotal.WithLabelValues(FormatJSON, metrics.OutcomeSuccess).Inc()
	return &Export{
		Filename:    fmt.Sprintf("detection_result_%s.json", stamp(now)),
		ContentType: "application/json",
		Format:      FormatJSON,
		Data:        data,
	}, nil
}

// ExportPDF asks the report service for a PDF of the stored result. There is
// a single attempt.
func (e *Exporter) ExportPDF(ctx context.Context, resp *dao.DetectionResponse, now time.Time) (*Export, error) {
	if resp == nil {
		return nil, ErrNoReport
	}
	if resp.ResultId == "" {
		return nil, ErrNoResultID
	}

	data, contentType, err := e.pdf.Report(ctx, resp.ResultId, FormatPDF)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues(FormatPDF, metrics.OutcomeFailed).Inc()
		log.GetLogger(ctx).WithError(err).Errorf("fetch pdf report %s failed", resp.ResultId)
		return nil, fmt.Errorf("fetch pdf report: %w", err)
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	metrics.ReportsTotal.WithLabelValues(FormatPDF, metrics.OutcomeSuccess).Inc()
	return &Export{
		Filename:    fmt.Sprintf("检测报告_%s.pdf", stamp(now)),
		ContentType: contentType,
		Format:      FormatPDF,
		Data:        data,
	}, nil
}

// Save writes exp into dir and returns the file path.
func Save(dir string, exp *Export) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	p := filepath.Join(dir, exp.Filename)
	if err := os.WriteFile(p, exp.Data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return p, nil
}
