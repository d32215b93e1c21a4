package render

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mingmou/internal/dao"
	"mingmou/internal/fixture"
)

func f64(v float64) *float64 { return &v }

func sampleResponse() *dao.DetectionResponse {
	return &dao.DetectionResponse{
		Success:  true,
		Mode:     dao.ModeOnline,
		ResultId: "r1",
		Detection: &dao.DetectionResult{
			DiseaseDetected:  true,
			DiseaseType:      "口腔病变",
			Confidence:       0.883,
			Severity:         "重度",
			TotalInstances:   2,
			SurgeryCount:     1,
			ObservationCount: 1,
			BoundingBoxes: []dao.BoundingBox{
				{ClassId: 0, Label: "手术", Confidence: 0.883, Bbox: []float64{100, 100, 200, 200}},
				{ClassId: 1, Label: "观察", Category: "观察", Confidence: 0.42,
					X1: f64(300), Y1: f64(50), X2: f64(900), Y2: f64(700), LesionArea: f64(1234.4)},
			},
			Recommendations: []string{"定期复查"},
			Analysis:        &dao.Analysis{RiskLevel: "high", Recommendations: []string{"尽快就诊"}},
		},
	}
}

func TestRenderMissingDetection(t *testing.T) {
	_, err := Render(nil, Geometry{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrMissingDetection)

	_, err = Render(&dao.DetectionResponse{Success: true}, Geometry{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrMissingDetection)
}

func TestRenderStatus(t *testing.T) {
	v, err := Render(sampleResponse(), Geometry{}, DefaultOptions())
	require.NoError(t, err)

	s := v.Status
	assert.Equal(t, "检测到2处病变", s.DetectionText)
	assert.Equal(t, ColorSurgery, s.DetectionColor)
	assert.Equal(t, "口腔病变", s.DiseaseType)
	assert.Equal(t, 88, s.ConfidencePercent)
	assert.Equal(t, "88.3", s.ConfidenceText)
	assert.Equal(t, "重度", s.Severity)
	assert.Equal(t, "高风险", s.RiskLabel)
	assert.Equal(t, "观察", s.PrimaryCategory)
	assert.False(t, s.Offline)
}

func TestRenderStatusDefaults(t *testing.T) {
	v, err := Render(&dao.DetectionResponse{Success: true, Mode: dao.ModeOffline, Detection: &dao.DetectionResult{}}, Geometry{}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "正常", v.Status.DetectionText)
	assert.Equal(t, "无", v.Status.DiseaseType)
	assert.Equal(t, "无", v.Status.Severity)
	assert.Equal(t, "正常", v.Status.PrimaryCategory)
	assert.Empty(t, v.Status.RiskLabel)
	assert.True(t, v.Status.Offline)

	assert.NotNil(t, v.Overlay)
	assert.Empty(t, v.Overlay)
	assert.Nil(t, v.Chart)
	assert.Nil(t, v.Report)
	assert.Nil(t, v.Recommendations)
}

func TestRiskLabel(t *testing.T) {
	assert.Equal(t, "无风险", RiskLabel("none"))
	assert.Equal(t, "低风险", RiskLabel("low"))
	assert.Equal(t, "中等风险", RiskLabel("medium"))
	assert.Equal(t, "高风险", RiskLabel("high"))
	assert.Equal(t, "critical", RiskLabel("critical"))
}

func TestConfidencePercentRounds(t *testing.T) {
	for _, conf := range []float64{0, 0.004, 0.125, 0.5, 0.8361, 0.999, 1} {
		resp := &dao.DetectionResponse{Detection: &dao.DetectionResult{Confidence: conf}}
		v, err := Render(resp, Geometry{}, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, dao.ConfidencePercent(conf), v.Status.ConfidencePercent)
		assert.GreaterOrEqual(t, v.Status.ConfidencePercent, 0)
		assert.LessOrEqual(t, v.Status.ConfidencePercent, 100)
	}
}

func TestOverlayScalesAndClamps(t *testing.T) {
	geo := Geometry{NaturalWidth: 1000, NaturalHeight: 800, DisplayWidth: 500, DisplayHeight: 200}
	v, err := Render(sampleResponse(), geo, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, v.Overlay, 2)

	first := v.Overlay[0]
	assert.Equal(t, 50.0, first.X)
	assert.Equal(t, 25.0, first.Y)
	assert.Equal(t, 50.0, first.Width)
	assert.Equal(t, 25.0, first.Height)
	assert.Equal(t, "手术 88.3%", first.Label)
	assert.Equal(t, ColorSurgery, first.Color)

	second := v.Overlay[1]
	assert.Equal(t, "观察 42.0%", second.Label)
	assert.Equal(t, ColorObservation, second.Color)
	assert.Equal(t, FillObservation, second.Fill)
	assert.Equal(t, "面积: 1234px²", second.AreaLabel)

	for _, b := range v.Overlay {
		assert.GreaterOrEqual(t, b.X, 0.0)
		assert.GreaterOrEqual(t, b.Y, 0.0)
		assert.LessOrEqual(t, b.X+b.Width, geo.DisplayWidth)
		assert.LessOrEqual(t, b.Y+b.Height, geo.DisplayHeight)
	}
}

func TestOverlayOneBoxPerBoundingBox(t *testing.T) {
	geo := FitDisplay(640, 480, 320, 320)
	for n := 0; n < 6; n++ {
		boxes := make([]dao.BoundingBox, n)
		for i := range boxes {
			boxes[i] = dao.BoundingBox{Confidence: 0.5, Bbox: []float64{float64(i * 100), 0, float64(i*100 + 300), 600}}
		}
		overlay := RenderOverlay(boxes, geo)
		assert.Len(t, overlay, n)
		for _, b := range overlay {
			assert.LessOrEqual(t, b.X+b.Width, geo.DisplayWidth)
			assert.LessOrEqual(t, b.Y+b.Height, geo.DisplayHeight)
		}
	}
}

func TestOverlayBoxWithoutCoordinates(t *testing.T) {
	overlay := RenderOverlay([]dao.BoundingBox{{Label: "手术"}}, Geometry{NaturalWidth: 200, NaturalHeight: 200, DisplayWidth: 100, DisplayHeight: 100})
	require.Len(t, overlay, 1)
	assert.Equal(t, 50.0, overlay[0].Width)
	assert.Equal(t, "手术 0.0%", overlay[0].Label)
}

func TestExtentGeometry(t *testing.T) {
	boxes := []dao.BoundingBox{
		{Label: "手术", Bbox: []float64{1000, 800, 1600, 1200}},
		{Label: "观察", Bbox: []float64{10, 10, 50, 50}},
	}
	g := ExtentGeometry(boxes, 800, 600)
	assert.Equal(t, 1600.0, g.NaturalWidth)
	assert.Equal(t, 1200.0, g.NaturalHeight)
	assert.Equal(t, 800.0, g.DisplayWidth)
	assert.Equal(t, 600.0, g.DisplayHeight)

	overlay := RenderOverlay(boxes, g)
	assert.Equal(t, 500.0, overlay[0].X)
	assert.Equal(t, 300.0, overlay[0].Width)

	g = ExtentGeometry(nil, 800, 600)
	assert.Equal(t, float64(blankCanvasW), g.DisplayWidth)
	assert.Equal(t, float64(blankCanvasH), g.DisplayHeight)
}

func TestFitDisplay(t *testing.T) {
	g := FitDisplay(1600, 1200, 800, 600)
	assert.Equal(t, 800.0, g.DisplayWidth)
	assert.Equal(t, 600.0, g.DisplayHeight)
	sx, sy := g.Scale()
	assert.Equal(t, 0.5, sx)
	assert.Equal(t, 0.5, sy)

	g = FitDisplay(100, 50, 800, 600)
	assert.Equal(t, 100.0, g.DisplayWidth)

	sx, sy = FitDisplay(0, 0, 800, 600).Scale()
	assert.Equal(t, 1.0, sx)
	assert.Equal(t, 1.0, sy)
}

func TestRecommendationsFallBackToAnalysis(t *testing.T) {
	resp := sampleResponse()
	resp.Detection.Recommendations = nil
	v, err := Render(resp, Geometry{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"尽快就诊"}, v.Recommendations)

	resp.Detection.Analysis = nil
	v, err = Render(resp, Geometry{}, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, v.Recommendations)
	assert.Empty(t, v.Status.RiskLabel)
}

func TestRenderIsIdempotent(t *testing.T) {
	resp := sampleResponse()
	geo := Geometry{NaturalWidth: 1000, NaturalHeight: 800, DisplayWidth: 500, DisplayHeight: 400}
	a, err := Render(resp, geo, DefaultOptions())
	require.NoError(t, err)
	b, err := Render(resp, geo, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDerivedChart(t *testing.T) {
	resp := sampleResponse()
	v, err := Render(resp, Geometry{}, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, v.Chart)
	assert.True(t, v.Chart.Derived)
	require.Len(t, v.Chart.Bars, 2)
	assert.Equal(t, "手术_1", v.Chart.Bars[0].Label)
	assert.Equal(t, "#ff4444", v.Chart.Bars[0].Color)
	assert.Equal(t, "观察_2", v.Chart.Bars[1].Label)
	assert.Equal(t, "#44ff44", v.Chart.Bars[1].Color)

	cd := DeriveChartData([]dao.BoundingBox{{ClassId: 3}})
	assert.Equal(t, []string{"未知_1"}, cd.Labels)
	assert.Equal(t, []string{"#44ff44"}, cd.Colors)
}

func TestLayoutChartGeometry(t *testing.T) {
	cfg := DefaultOptions().Chart
	cv := LayoutChart(&dao.ChartData{
		Labels:      []string{"手术", "观察"},
		Confidences: []float64{88.3, 11.7},
		Colors:      []string{"#ff4444"},
	}, cfg)
	require.NotNil(t, cv)
	require.Len(t, cv.Bars, 2)

	assert.Equal(t, 100.0, cv.MaxValue)
	spacing := (320.0 - 160.0) / 3
	assert.Equal(t, 80.0, cv.Bars[0].Width)
	assert.InDelta(t, 40+spacing, cv.Bars[0].X, 1e-9)
	assert.InDelta(t, 40+spacing*2+80, cv.Bars[1].X, 1e-9)
	assert.InDelta(t, 88.3/100*220, cv.Bars[0].Height, 1e-9)
	assert.InDelta(t, 300-40-cv.Bars[0].Height, cv.Bars[0].Y, 1e-9)
	assert.Equal(t, "88.3%", cv.Bars[0].ValueText)
	assert.Equal(t, -45.0, cv.Bars[0].LabelRotation)
	assert.Equal(t, "#4CAF50", cv.Bars[1].Color)

	require.Len(t, cv.YTicks, 6)
	assert.Equal(t, "100%", cv.YTicks[0].Label)
	assert.Equal(t, "0%", cv.YTicks[5].Label)
	assert.Len(t, cv.Legend, 2)
}

func TestLayoutChartScalesAbove100(t *testing.T) {
	cv := LayoutChart(&dao.ChartData{Labels: []string{"a", "b"}, Confidences: []float64{150, 75}}, DefaultOptions().Chart)
	require.NotNil(t, cv)
	assert.Equal(t, 150.0, cv.MaxValue)
	assert.InDelta(t, 220, cv.Bars[0].Height, 1e-9)
	assert.InDelta(t, 110, cv.Bars[1].Height, 1e-9)
}

func TestLayoutChartEmpty(t *testing.T) {
	assert.Nil(t, LayoutChart(nil, DefaultOptions().Chart))
	assert.Nil(t, LayoutChart(&dao.ChartData{}, DefaultOptions().Chart))
}

func TestSeverityChart(t *testing.T) {
	resp := sampleResponse()
	resp.Detection.Analysis.SeverityDistribution = map[string]int{"正常": 3, "重度": 1, "轻度": 2, "其他": 1}
	v, err := Render(resp, Geometry{}, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, v.SeverityChart)

	labels := make([]string, 0)
	for _, b := range v.SeverityChart.Bars {
		labels = append(labels, b.Label)
	}
	assert.Equal(t, []string{"轻度", "重度", "其他"}, labels)
	assert.Equal(t, 2.0, v.SeverityChart.MaxValue)
	assert.Equal(t, "2", v.SeverityChart.Bars[0].ValueText)
}

func TestReportBlock(t *testing.T) {
	store, err := fixture.Load("", "oral")
	require.NoError(t, err)
	resp := store.Lookup("1.png")

	v, err := Render(resp, Geometry{}, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, v.Report)
	assert.True(t, v.Report.Downloadable)
	assert.Equal(t, "阳性", v.Report.Detection)
	assert.Equal(t, resp.Detection.ReportText, v.Report.Text)
	assert.False(t, v.Chart.Derived)

	resp.Detection.ReportText = ""
	resp.Detection.Diagnosis = &dao.Diagnosis{Description: "病变", Features: []string{"充血", "肥厚"}}
	resp.Detection.Statistics = &dao.Statistics{TotalArea: 250, CoverageRatio: 0.25}
	v, err = Render(resp, Geometry{}, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, v.Report.Downloadable)
	assert.Equal(t, "病变。充血，肥厚", v.Report.Conclusion)
	assert.Equal(t, "2.5", v.Report.Area)
	assert.Equal(t, "2.5 mm", v.Report.Invasion)
}

func TestRenderBatch(t *testing.T) {
	bv := RenderBatch([]dao.BatchItem{
		{Filename: "a.png", Success: true, Detection: &dao.DetectionResult{DiseaseDetected: true, DiseaseType: "口腔病变", Confidence: 0.91}},
		{Filename: "b.png", Success: false, Error: "timeout"},
	})
	assert.Equal(t, 1, bv.SuccessCount)
	assert.Equal(t, 1, bv.FailedCount)
	require.Len(t, bv.Rows, 2)
	assert.Equal(t, "异常", bv.Rows[0].StatusText)
	assert.Equal(t, 91, bv.Rows[0].ConfidencePercent)
	assert.Equal(t, "检测失败", bv.Rows[1].StatusText)

	bv = RenderBatch([]dao.BatchItem{{Filename: "c.png", Success: true}})
	assert.Equal(t, 1, bv.FailedCount)
}

func TestOverlayImage(t *testing.T) {
	v, err := Render(sampleResponse(), Geometry{NaturalWidth: 1000, NaturalHeight: 800, DisplayWidth: 250, DisplayHeight: 200}, DefaultOptions())
	require.NoError(t, err)

	img := OverlayImage(nil, v)
	assert.Equal(t, image.Rect(0, 0, 250, 200), img.Bounds())
	assert.Equal(t, ParseHex(ColorSurgery), img.RGBAAt(25, 30))

	var buf bytes.Buffer
	require.NoError(t, OverlayPNG(&buf, nil, v))
	_, err = png.Decode(&buf)
	require.NoError(t, err)
}

func TestChartPNG(t *testing.T) {
	store, err := fixture.Load("", "oral")
	require.NoError(t, err)
	v, err := Render(store.Lookup("3.png"), Geometry{}, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ChartPNG(&buf, v.Chart))
	cfg, err := png.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 300, cfg.Height)

	assert.Error(t, ChartPNG(&buf, nil))
}

func TestAsciiLabel(t *testing.T) {
	assert.Equal(t, "surgery 88.3%", asciiLabel("手术 88.3%"))
	assert.Equal(t, "unknown_1", asciiLabel("未知_1"))
	assert.Equal(t, "area: 12px2", asciiLabel("面积: 12px²"))
	assert.Equal(t, "??", asciiLabel("口腔"))
}
