package dao

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestBoundingBoxRect(t *testing.T) {
	tests := []struct {
		name string
		box  BoundingBox
		want [4]float64
		ok   bool
	}{
		{"bbox", BoundingBox{Bbox: []float64{1, 2, 3, 4}}, [4]float64{1, 2, 3, 4}, true},
		{"fields", BoundingBox{X1: ptr(5), Y1: ptr(6), X2: ptr(7), Y2: ptr(8)}, [4]float64{5, 6, 7, 8}, true},
		{"partial fields", BoundingBox{X1: ptr(5), Y1: ptr(6)}, [4]float64{}, false},
		{"short bbox", BoundingBox{Bbox: []float64{1, 2}}, [4]float64{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x1, y1, x2, y2, ok := tt.box.Rect()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, [4]float64{x1, y1, x2, y2})
		})
	}
}

func TestBoundingBoxCategory(t *testing.T) {
	assert.Equal(t, "观察", (&BoundingBox{Category: "观察", Label: "手术"}).CategoryName())
	assert.Equal(t, "手术", (&BoundingBox{Label: "手术"}).CategoryName())
	assert.Equal(t, "未知", (&BoundingBox{}).CategoryName())

	assert.Equal(t, 0.7, (&BoundingBox{Score: ptr(0.7)}).ConfidenceValue())
	assert.Equal(t, 0.5, (&BoundingBox{Confidence: 0.5, Score: ptr(0.7)}).ConfidenceValue())
}

func TestConfidencePercent(t *testing.T) {
	assert.Equal(t, 88, ConfidencePercent(0.883))
	assert.Equal(t, 13, ConfidencePercent(0.125))
	assert.Equal(t, 0, ConfidencePercent(0))
	assert.Equal(t, 100, ConfidencePercent(1))
	assert.Equal(t, 84, ConfidencePercent(0.8422))
}

func TestPercentUnmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want Percent
	}{
		{`88`, 88},
		{`0.883`, 88},
		{`1.0`, 100},
		{`1`, 1},
		{`96.5`, 97},
		{`"42"`, 42},
	}
	for _, tt := range tests {
		var p Percent
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &p), tt.raw)
		assert.Equal(t, tt.want, p, tt.raw)
	}
}

func TestNormalizeStoredResult(t *testing.T) {
	raw := `{"id":"abc","filename":"1.png","timestamp":"2024-01-01T00:00:00",
		"result":{"success":true,"detection":{"disease_type":"口腔病变","confidence":0.9,"bounding_boxes":[]}}}`
	resp := &DetectionResponse{}
	require.NoError(t, json.Unmarshal([]byte(raw), resp))
	require.NoError(t, resp.Normalize())

	assert.Equal(t, "abc", resp.ResultId)
	assert.True(t, resp.Success)
	assert.Equal(t, ModeOnline, resp.Mode)
	require.NotNil(t, resp.Detection)
	assert.Equal(t, "口腔病变", resp.Detection.DiseaseType)
	assert.Nil(t, resp.Result)
}

func TestNormalizeBareDetection(t *testing.T) {
	raw := `{"id":"x1","result":{"disease_detected":true,"confidence":0.5}}`
	resp := &DetectionResponse{}
	require.NoError(t, json.Unmarshal([]byte(raw), resp))
	require.NoError(t, resp.Normalize())

	require.NotNil(t, resp.Detection)
	assert.True(t, resp.Detection.DiseaseDetected)
	assert.Equal(t, "x1", resp.ResultId)
}

func TestCloneIsDeep(t *testing.T) {
	orig := &DetectionResponse{
		Success:   true,
		Detection: &DetectionResult{BoundingBoxes: []BoundingBox{{Bbox: []float64{1, 2, 3, 4}}}},
	}
	c := orig.Clone()
	c.Detection.BoundingBoxes[0].Bbox[0] = 99
	assert.Equal(t, 1.0, orig.Detection.BoundingBoxes[0].Bbox[0])
}
