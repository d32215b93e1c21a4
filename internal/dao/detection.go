package dao

import (
	"encoding/json"
	"math"
)

const (
	ModeOnline  = "online"
	ModeOffline = "offline"

	CategorySurgery     = "手术"
	CategoryObservation = "观察"
	CategoryNormal      = "正常"
	CategoryUnknown     = "未知"

	ClassSurgery     = 0
	ClassObservation = 1
)

// BoundingBox coordinates are in source-image pixels. The box is given either
// as bbox [x1,y1,x2,y2] or as the separate x1..y2 fields.
type BoundingBox struct {
	ClassId    int       `json:"class_id"`
	Label      string    `json:"label,omitempty"`
	Category   string    `json:"category,omitempty"`
	Confidence float64   `json:"confidence"`
	Score      *float64  `json:"score,omitempty"`
	Bbox       []float64 `json:"bbox,omitempty"`
	X1         *float64  `json:"x1,omitempty"`
	Y1         *float64  `json:"y1,omitempty"`
	X2         *float64  `json:"x2,omitempty"`
	Y2         *float64  `json:"y2,omitempty"`
	LesionArea *float64  `json:"lesion_area,omitempty"`
}

// Rect returns the box corners, ok is false when no coordinates are present.
func (b *BoundingBox) Rect() (x1, y1, x2, y2 float64, ok bool) {
	if len(b.Bbox) >= 4 {
		return b.Bbox[0], b.Bbox[1], b.Bbox[2], b.Bbox[3], true
	}
	if b.X1 != nil && b.Y1 != nil && b.X2 != nil && b.Y2 != nil {
		return *b.X1, *b.Y1, *b.X2, *b.Y2, true
	}
	return 0, 0, 0, 0, false
}

func (b *BoundingBox) CategoryName() string {
	if b.Category != "" {
		return b.Category
	}
	if b.Label != "" {
		return b.Label
	}
	return CategoryUnknown
}

// ConfidenceValue falls back to score when confidence is unset.
func (b *BoundingBox) ConfidenceValue() float64 {
	if b.Confidence == 0 && b.Score != nil {
		return *b.Score
	}
	return b.Confidence
}

func (b *BoundingBox) IsObservation() bool {
	return b.Category == CategoryObservation || b.Label == CategoryObservation
}

func (b *BoundingBox) IsSurgery() bool {
	return b.Label == CategorySurgery || b.ClassId == ClassSurgery
}

type Analysis struct {
	RiskLevel            string         `json:"risk_level,omitempty"`
	Recommendations      []string       `json:"recommendations,omitempty"`
	SeverityDistribution map[string]int `json:"severity_distribution,omitempty"`
}

type Diagnosis struct {
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
}

type Statistics struct {
	TotalArea     float64 `json:"total_area"`
	CoverageRatio float64 `json:"coverage_ratio"`
}

type DetectionResult struct {
	DiseaseDetected   bool           `json:"disease_detected"`
	DiseaseType       string         `json:"disease_type,omitempty"`
	Confidence        float64        `json:"confidence"`
	Severity          string         `json:"severity,omitempty"`
	TotalInstances    int            `json:"total_instances"`
	SurgeryCount      int            `json:"surgery_count"`
	ObservationCount  int            `json:"observation_count"`
	BoundingBoxes     []BoundingBox  `json:"bounding_boxes"`
	Recommendations   []string       `json:"recommendations,omitempty"`
	Analysis          *Analysis      `json:"analysis,omitempty"`
	ReportText        string         `json:"report_text,omitempty"`
	Diagnosis         *Diagnosis     `json:"diagnosis,omitempty"`
	Statistics        *Statistics    `json:"statistics,omitempty"`
	ClassDistribution map[string]int `json:"class_distribution,omitempty"`
}

// ConfidencePercent is the display form of a [0,1] confidence.
func ConfidencePercent(conf float64) int {
	return int(math.Round(conf * 100))
}

type ChartData struct {
	Labels      []string  `json:"labels"`
	Confidences []float64 `json:"confidences"`
	Colors      []string  `json:"colors,omitempty"`
}

type DetectionResponse struct {
	Success       bool             `json:"success"`
	Mode          string           `json:"mode,omitempty"`
	ResultId      string           `json:"result_id,omitempty"`
	Visualization string           `json:"visualization,omitempty"`
	Detection     *DetectionResult `json:"detection,omitempty"`
	ChartData     *ChartData       `json:"chart_data,omitempty"`
	Timestamp     string           `json:"timestamp,omitempty"`
	Error         string           `json:"error,omitempty"`

	// shape of GET /api/result/{id}
	Id       string           `json:"id,omitempty"`
	Filename string           `json:"filename,omitempty"`
	Result   *json.RawMessage `json:"result,omitempty"`
}

// Normalize maps the stored-result shape {id, result} onto result_id and
// detection. The result payload may be a full response or a bare detection.
func (r *DetectionResponse) Normalize() error {
	if r.ResultId == "" {
		r.ResultId = r.Id
	}
	if r.Result != nil && r.Detection == nil {
		var inner DetectionResponse
		if err := json.Unmarshal(*r.Result, &inner); err != nil {
			return err
		}
		if inner.Detection != nil {
			r.Detection = inner.Detection
			if r.ChartData == nil {
				r.ChartData = inner.ChartData
			}
			if r.Visualization == "" {
				r.Visualization = inner.Visualization
			}
			if !r.Success {
				r.Success = inner.Success
			}
		} else {
			det := &DetectionResult{}
			if err := json.Unmarshal(*r.Result, det); err != nil {
				return err
			}
			r.Detection = det
			r.Success = true
		}
	}
	r.Id = ""
	r.Result = nil
	if r.Mode == "" {
		r.Mode = ModeOnline
	}
	return nil
}

// Clone returns a deep copy through the JSON encoding.
func (r *DetectionResponse) Clone() *DetectionResponse {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	c := &DetectionResponse{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil
	}
	return c
}
