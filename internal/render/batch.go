package render

import (
	"mingmou/internal/dao"
)

const (
	batchTitle      = "批量检测完成"
	statusFailed    = "检测失败"
	statusAbnormal  = "异常"
	statusNormalRow = "正常"
)

// RenderBatch summarizes a batch response. Items reported successful but
// without a detection are counted as failed.
func RenderBatch(items []dao.BatchItem) *BatchView {
	v := &BatchView{Title: batchTitle, Rows: make([]BatchRow, 0, len(items))}
	for _, it := range items {
		row := BatchRow{Filename: it.Filename}
		if !it.Success || it.Detection == nil {
			row.StatusText = statusFailed
			row.Error = it.Error
			v.FailedCount++
			v.Rows = append(v.Rows, row)
			continue
		}
		row.Success = true
		row.DiseaseType = it.Detection.DiseaseType
		row.ConfidencePercent = dao.ConfidencePercent(it.Detection.Confidence)
		if it.Detection.DiseaseDetected {
			row.StatusText = statusAbnormal
		} else {
			row.StatusText = statusNormalRow
		}
		v.SuccessCount++
		v.Rows = append(v.Rows, row)
	}
	return v
}
