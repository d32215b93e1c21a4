package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 检测控制台指标
var (
	// 检测请求计数，按类型(single/batch/test)与结果(success/failed/fallback)划分
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mingmou_detections_total",
			Help: "检测请求总数",
		},
		[]string{"kind", "outcome"},
	)

	// 离线示例数据回退次数
	FixtureFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mingmou_fixture_fallback_total",
			Help: "检测失败后回退到示例数据的次数",
		},
	)

	// 检测接口耗时
	DetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mingmou_detection_duration_seconds",
			Help:    "检测接口调用耗时",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	// 文件校验失败计数
	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mingmou_validation_failures_total",
			Help: "文件校验失败总数",
		},
		[]string{"reason"},
	)

	// 报告导出计数
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mingmou_reports_total",
			Help: "报告导出总数",
		},
		[]string{"format", "outcome"},
	)

	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mingmou_history_entries",
			Help: "当前历史记录条数",
		},
	)
)

const (
	KindSingle = "single"
	KindBatch  = "batch"
	KindTest   = "test"

	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeFallback = "fallback"
)
