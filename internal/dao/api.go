package dao

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

type UploadResponse struct {
	Filename string `json:"filename"`
}

// DetectTestRequest is the JSON form of POST /api/detect for demo images.
type DetectTestRequest struct {
	IsTest              bool    `json:"is_test"`
	TestImage           string  `json:"test_image"`
	ImageName           string  `json:"image_name"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type BatchItem struct {
	Filename  string           `json:"filename"`
	Detection *DetectionResult `json:"detection,omitempty"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

type ReportRequest struct {
	ResultId string `json:"result_id"`
	Format   string `json:"format"`
}

// Percent is an integer percentage. Decoding accepts both 0-100 integers and
// 0-1 fractions written with a decimal point.
type Percent int

func (p *Percent) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	v, err := strconv.ParseFloat(string(bytes.Trim(data, `"`)), 64)
	if err != nil {
		return err
	}
	if bytes.ContainsAny(data, ".eE") && v <= 1 {
		v *= 100
	}
	*p = Percent(math.Round(v))
	return nil
}

type HistoryEntry struct {
	Id          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	DiseaseType string  `json:"disease_type"`
	Confidence  Percent `json:"confidence"`
	Filename    string  `json:"filename,omitempty"`
}

type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

type StatusResponse struct {
	ModelLoaded bool   `json:"model_loaded"`
	Status      string `json:"status,omitempty"`
	Device      string `json:"device,omitempty"`
}

// DetectionEvent is published after each successful online detection.
type DetectionEvent struct {
	ResultId    string  `json:"resultId"`
	Filename    string  `json:"filename,omitempty"`
	Mode        string  `json:"mode"`
	DiseaseType string  `json:"diseaseType,omitempty"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity,omitempty"`
	Instances   int     `json:"instances"`
	Timestamp   int64   `json:"timestamp"`
}

func NewDetectionEvent(resp *DetectionResponse, filename string, ts int64) *DetectionEvent {
	ev := &DetectionEvent{
		ResultId:  resp.ResultId,
		Filename:  filename,
		Mode:      resp.Mode,
		Timestamp: ts,
	}
	if d := resp.Detection; d != nil {
		ev.DiseaseType = d.DiseaseType
		ev.Confidence = d.Confidence
		ev.Severity = d.Severity
		ev.Instances = d.TotalInstances
	}
	return ev
}

func (e *DetectionEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
