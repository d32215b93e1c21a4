package render

import (
	"fmt"
	"math"
	"sort"

	"mingmou/internal/config"
	"mingmou/internal/dao"
)

const (
	chartSurgery     = "#ff4444"
	chartObservation = "#44ff44"
	defaultBarColor  = "#4CAF50"

	yTickCount     = 5
	labelOffset    = 15
	labelRotation  = -45
	severityNormal = "正常"
)

// ChartConfig parametrizes LayoutChart for every bar chart in the view.
type ChartConfig struct {
	Title       string
	Width       float64
	Height      float64
	Padding     float64
	MaxBarWidth float64
	BarGap      float64
	// MinScale is the floor of the value axis.
	MinScale float64
	// TickMax fixes the top tick value, zero follows the axis maximum.
	TickMax     float64
	TickSuffix  string
	ValueFormat string
	Legend      []LegendItem
}

func baseChart(conf config.ChartConfig) ChartConfig {
	return ChartConfig{
		Width:       float64(conf.Width),
		Height:      float64(conf.Height),
		Padding:     float64(conf.Padding),
		MaxBarWidth: float64(conf.MaxBarWidth),
		BarGap:      float64(conf.BarGap),
	}
}

func ConfidenceChart(conf config.ChartConfig) ChartConfig {
	c := baseChart(conf)
	c.Title = "检测置信度分布"
	c.MinScale = 100
	c.TickMax = 100
	c.TickSuffix = "%"
	c.ValueFormat = "%.1f%%"
	c.Legend = []LegendItem{
		{Label: dao.CategorySurgery, Color: chartSurgery},
		{Label: dao.CategoryObservation, Color: chartObservation},
	}
	return c
}

func SeverityChart(conf config.ChartConfig) ChartConfig {
	c := baseChart(conf)
	c.Title = "病变严重程度分布"
	c.MinScale = 1
	c.ValueFormat = "%.0f"
	return c
}

// DeriveChartData builds chart data from the boxes when the response has none.
func DeriveChartData(boxes []dao.BoundingBox) *dao.ChartData {
	cd := &dao.ChartData{
		Labels:      make([]string, 0, len(boxes)),
		Confidences: make([]float64, 0, len(boxes)),
		Colors:      make([]string, 0, len(boxes)),
	}
	for i := range boxes {
		b := &boxes[i]
		label := b.Label
		if label == "" {
			label = dao.CategoryUnknown
		}
		cd.Labels = append(cd.Labels, fmt.Sprintf("%s_%d", label, i+1))
		cd.Confidences = append(cd.Confidences, b.Confidence*100)
		if b.IsSurgery() {
			cd.Colors = append(cd.Colors, chartSurgery)
		} else {
			cd.Colors = append(cd.Colors, chartObservation)
		}
	}
	return cd
}

var severityOrder = []string{"轻度", "中度", "重度", "需手术"}

var severityColors = map[string]string{
	"轻度":  "#4CAF50",
	"中度":  "#FFC107",
	"重度":  "#F44336",
	"需手术": "#9C27B0",
}

// SeverityChartData orders the known severities first, then the rest by name.
// Normal findings are not charted.
func SeverityChartData(dist map[string]int) *dao.ChartData {
	keys := make([]string, 0, len(dist))
	seen := make(map[string]bool, len(dist))
	for _, k := range severityOrder {
		if _, ok := dist[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range dist {
		if !seen[k] && k != severityNormal {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	cd := &dao.ChartData{}
	for _, k := range keys {
		cd.Labels = append(cd.Labels, k)
		cd.Confidences = append(cd.Confidences, float64(dist[k]))
		color, ok := severityColors[k]
		if !ok {
			color = "#666"
		}
		cd.Colors = append(cd.Colors, color)
	}
	return cd
}

// LayoutChart places one bar per label. Bar height is proportional to
// value / max(max(values), MinScale). Returns nil when there is nothing to draw.
func LayoutChart(data *dao.ChartData, cfg ChartConfig) *ChartView {
	if data == nil || len(data.Labels) == 0 {
		return nil
	}
	n := float64(len(data.Labels))
	inner := cfg.Width - cfg.Padding*2
	barWidth := inner/n - cfg.BarGap
	if cfg.MaxBarWidth > 0 {
		barWidth = math.Min(barWidth, cfg.MaxBarWidth)
	}
	if barWidth < 1 {
		barWidth = 1
	}
	maxHeight := cfg.Height - cfg.Padding*2

	maxValue := cfg.MinScale
	values := make([]float64, len(data.Labels))
	for i := range data.Labels {
		if i < len(data.Confidences) {
			values[i] = data.Confidences[i]
		}
		maxValue = math.Max(maxValue, values[i])
	}
	if maxValue <= 0 {
		maxValue = 1
	}

	format := cfg.ValueFormat
	if format == "" {
		format = "%.1f"
	}

	cv := &ChartView{
		Title:    cfg.Title,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Padding:  cfg.Padding,
		MaxValue: maxValue,
		Bars:     make([]Bar, 0, len(data.Labels)),
		Legend:   append([]LegendItem(nil), cfg.Legend...),
	}

	spacing := (inner - barWidth*n) / (n + 1)
	for i, label := range data.Labels {
		x := cfg.Padding + spacing*float64(i+1) + barWidth*float64(i)
		h := values[i] / maxValue * maxHeight
		if h < 0 {
			h = 0
		}
		color := defaultBarColor
		if i < len(data.Colors) && data.Colors[i] != "" {
			color = data.Colors[i]
		}
		cv.Bars = append(cv.Bars, Bar{
			Label:         label,
			Value:         values[i],
			ValueText:     fmt.Sprintf(format, values[i]),
			Color:         color,
			X:             x,
			Y:             cfg.Height - cfg.Padding - h,
			Width:         barWidth,
			Height:        h,
			LabelX:        x + barWidth/2,
			LabelY:        cfg.Height - cfg.Padding + labelOffset,
			LabelRotation: labelRotation,
		})
	}

	tickMax := cfg.TickMax
	if tickMax <= 0 {
		tickMax = maxValue
	}
	for i := 0; i <= yTickCount; i++ {
		value := math.Round(tickMax / yTickCount * float64(yTickCount-i))
		cv.YTicks = append(cv.YTicks, Tick{
			Y:     cfg.Padding + maxHeight/yTickCount*float64(i),
			Value: value,
			Label: fmt.Sprintf("%.0f%s", value, cfg.TickSuffix),
		})
	}
	return cv
}
