package render

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"mingmou/internal/config"
	"mingmou/internal/dao"
)

const (
	ColorSurgery     = "#ff4444"
	ColorObservation = "#00a651"
	ColorNormal      = "#999"

	FillSurgery     = "rgba(255, 68, 68, 0.2)"
	FillObservation = "rgba(0, 166, 81, 0.2)"

	// natural-space corners used when a box carries no coordinates
	defaultBoxExtent = 100
)

var ErrMissingDetection = errors.New("response carries no detection result")

var riskLabels = map[string]string{
	"none":   "无风险",
	"low":    "低风险",
	"medium": "中等风险",
	"high":   "高风险",
}

// RiskLabel maps a risk level to its display label, unknown levels pass through.
func RiskLabel(level string) string {
	if l, ok := riskLabels[level]; ok {
		return l
	}
	return level
}

// Geometry relates the natural image size to its displayed size.
type Geometry struct {
	NaturalWidth  float64 `json:"naturalWidth"`
	NaturalHeight float64 `json:"naturalHeight"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
}

// FitDisplay scales the natural size down to fit maxW x maxH, keeping the
// aspect ratio. Images are never scaled up.
func FitDisplay(naturalW, naturalH, maxW, maxH int) Geometry {
	g := Geometry{NaturalWidth: float64(naturalW), NaturalHeight: float64(naturalH)}
	if naturalW <= 0 || naturalH <= 0 {
		return g
	}
	scale := 1.0
	if maxW > 0 {
		scale = math.Min(scale, float64(maxW)/float64(naturalW))
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(naturalH))
	}
	g.DisplayWidth = float64(naturalW) * scale
	g.DisplayHeight = float64(naturalH) * scale
	return g
}

// Scale returns displayed/natural per axis, 1 when either size is unknown.
func (g Geometry) Scale() (sx, sy float64) {
	sx, sy = 1, 1
	if g.NaturalWidth > 0 && g.DisplayWidth > 0 {
		sx = g.DisplayWidth / g.NaturalWidth
	}
	if g.NaturalHeight > 0 && g.DisplayHeight > 0 {
		sy = g.DisplayHeight / g.NaturalHeight
	}
	return sx, sy
}

// ExtentGeometry is used when a result is shown without its source image.
// The natural size covers every box and is fitted into maxW x maxH.
func ExtentGeometry(boxes []dao.BoundingBox, maxW, maxH int) Geometry {
	var w, h float64
	for i := range boxes {
		x1, y1, x2, y2, ok := boxes[i].Rect()
		if !ok {
			x1, y1, x2, y2 = 0, 0, defaultBoxExtent, defaultBoxExtent
		}
		w = math.Max(w, math.Max(x1, x2))
		h = math.Max(h, math.Max(y1, y2))
	}
	if w <= 0 {
		w = blankCanvasW
	}
	if h <= 0 {
		h = blankCanvasH
	}
	return FitDisplay(int(math.Ceil(w)), int(math.Ceil(h)), maxW, maxH)
}

type Options struct {
	Chart    ChartConfig
	Severity ChartConfig
}

func DefaultOptions() Options {
	return OptionsFrom(config.DefaultConfig().Render)
}

func OptionsFrom(conf config.RenderConfig) Options {
	return Options{
		Chart:    ConfidenceChart(conf.Chart),
		Severity: SeverityChart(conf.Chart),
	}
}

// Render maps resp onto a View. It has no side effects and returns the same
// View for the same input.
func Render(resp *dao.DetectionResponse, geo Geometry, opts Options) (*View, error) {
	if resp == nil || resp.Detection == nil {
		return nil, ErrMissingDetection
	}
	det := resp.Detection

	v := &View{
		ResultId:      resp.ResultId,
		Status:        renderStatus(resp),
		Visualization: resp.Visualization,
		Geometry:      geo,
		Overlay:       RenderOverlay(det.BoundingBoxes, geo),
	}

	chartData, derived := resp.ChartData, false
	if chartData == nil && len(det.BoundingBoxes) > 0 {
		chartData, derived = DeriveChartData(det.BoundingBoxes), true
	}
	if chartData != nil {
		v.Chart = LayoutChart(chartData, opts.Chart)
		if v.Chart != nil {
			v.Chart.Derived = derived
		}
	}

	if det.Recommendations != nil {
		v.Recommendations = append([]string{}, det.Recommendations...)
	} else if det.Analysis != nil && det.Analysis.Recommendations != nil {
		v.Recommendations = append([]string{}, det.Analysis.Recommendations...)
	}

	if a := det.Analysis; a != nil {
		if a.Recommendations != nil {
			v.AnalysisRecommendations = append([]string{}, a.Recommendations...)
		}
		if len(a.SeverityDistribution) > 0 {
			v.SeverityChart = LayoutChart(SeverityChartData(a.SeverityDistribution), opts.Severity)
		}
	}

	if det.ReportText != "" || det.Diagnosis != nil {
		v.Report = renderReport(det)
	}
	return v, nil
}

func renderStatus(resp *dao.DetectionResponse) Status {
	det := resp.Detection
	s := Status{
		DiseaseDetected:   det.DiseaseDetected,
		DiseaseType:       orDefault(det.DiseaseType, "无"),
		ConfidencePercent: dao.ConfidencePercent(det.Confidence),
		ConfidenceText:    fmt.Sprintf("%.1f", det.Confidence*100),
		Severity:          orDefault(det.Severity, "无"),
		Mode:              orDefault(resp.Mode, dao.ModeOnline),
	}
	s.Offline = s.Mode == dao.ModeOffline

	switch {
	case det.TotalInstances > 0:
		s.DetectionText = fmt.Sprintf("检测到%d处病变", det.TotalInstances)
	case det.DiseaseDetected:
		s.DetectionText = "检测到病变"
	default:
		s.DetectionText = "正常"
	}
	if det.SurgeryCount > 0 {
		s.DetectionColor = ColorSurgery
	} else {
		s.DetectionColor = ColorObservation
	}

	switch {
	case det.SurgeryCount > det.ObservationCount:
		s.PrimaryCategory, s.PrimaryColor = dao.CategorySurgery, ColorSurgery
	case det.ObservationCount > 0:
		s.PrimaryCategory, s.PrimaryColor = dao.CategoryObservation, ColorObservation
	default:
		s.PrimaryCategory, s.PrimaryColor = dao.CategoryNormal, ColorNormal
	}

	if det.Analysis != nil && det.Analysis.RiskLevel != "" {
		s.RiskLevel = det.Analysis.RiskLevel
		s.RiskLabel = RiskLabel(det.Analysis.RiskLevel)
	}
	return s
}

// RenderOverlay returns one box per bounding box, scaled to display space
// and clamped into the displayed image.
func RenderOverlay(boxes []dao.BoundingBox, geo Geometry) []OverlayBox {
	sx, sy := geo.Scale()
	out := make([]OverlayBox, 0, len(boxes))
	for i := range boxes {
		b := &boxes[i]
		x1, y1, x2, y2, ok := b.Rect()
		if !ok {
			x1, y1, x2, y2 = 0, 0, defaultBoxExtent, defaultBoxExtent
		}
		if x2 < x1 {
			x1, x2 = x2, x1
		}
		if y2 < y1 {
			y1, y2 = y2, y1
		}
		x1, x2 = clamp(x1*sx, geo.DisplayWidth), clamp(x2*sx, geo.DisplayWidth)
		y1, y2 = clamp(y1*sy, geo.DisplayHeight), clamp(y2*sy, geo.DisplayHeight)

		obs := b.IsObservation()
		ob := OverlayBox{
			Index:       i,
			X:           x1,
			Y:           y1,
			Width:       x2 - x1,
			Height:      y2 - y1,
			Category:    b.CategoryName(),
			Label:       fmt.Sprintf("%s %.1f%%", b.CategoryName(), b.ConfidenceValue()*100),
			Observation: obs,
			Color:       ColorSurgery,
			Fill:        FillSurgery,
		}
		if obs {
			ob.Color, ob.Fill = ColorObservation, FillObservation
		}
		if b.LesionArea != nil && *b.LesionArea > 0 {
			ob.AreaLabel = fmt.Sprintf("面积: %.0fpx²", *b.LesionArea)
		}
		out = append(out, ob)
	}
	return out
}

// clamp limits v to [0, max]; a non-positive max means the bound is unknown.
func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func renderReport(det *dao.DetectionResult) *ReportView {
	r := &ReportView{
		Text:              det.ReportText,
		Detection:         "阴性",
		DetectionColor:    ColorObservation,
		ConfidencePercent: dao.ConfidencePercent(det.Confidence),
		Severity:          orDefault(det.Severity, "未知"),
		Downloadable:      det.ReportText != "",
	}
	if det.TotalInstances > 0 {
		r.Detection, r.DetectionColor = "阳性", ColorSurgery
	}
	if st := det.Statistics; st != nil {
		r.Area = fmt.Sprintf("%.1f", st.TotalArea/100)
		r.Invasion = fmt.Sprintf("%.1f mm", st.CoverageRatio*10)
	}
	if d := det.Diagnosis; d != nil {
		r.Conclusion = d.Description + "。" + strings.Join(d.Features, "，")
	}
	return r
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
