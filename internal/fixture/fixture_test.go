package fixture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mingmou/internal/dao"
)

func oralStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load("", "")
	require.NoError(t, err)
	require.Equal(t, "oral", s.SetName())
	return s
}

func TestLookupSurgeryFixture(t *testing.T) {
	s := oralStore(t)

	resp := s.Lookup("1.png")
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, dao.ModeOffline, resp.Mode)

	det := resp.Detection
	require.NotNil(t, det)
	assert.Equal(t, "口腔病变", det.DiseaseType)
	assert.Equal(t, 0.883, det.Confidence)
	assert.Equal(t, 1, det.TotalInstances)
	assert.Equal(t, 1, det.SurgeryCount)
	assert.Equal(t, 0, det.ObservationCount)
	require.Len(t, det.BoundingBoxes, 1)
	assert.Equal(t, dao.ClassSurgery, det.BoundingBoxes[0].ClassId)
	assert.Equal(t, []float64{100, 100, 200, 200}, det.BoundingBoxes[0].Bbox)
	assert.Equal(t, "high", det.Analysis.RiskLevel)
	assert.Len(t, det.Recommendations, 5)
	assert.Contains(t, det.ReportText, "侵犯范围: 2.5mm")
	assert.Contains(t, det.ReportText, "MaskRCNN-LAPP")

	surgery, observation := SurgeryObservation(det.BoundingBoxes[0].Label, det.Confidence)
	assert.InDelta(t, 0.883, surgery, 1e-9)
	assert.InDelta(t, 0.117, observation, 1e-9)
	assert.InDelta(t, 1.0, surgery+observation, 1e-9)

	require.NotNil(t, resp.ChartData)
	assert.Equal(t, []string{"手术", "观察"}, resp.ChartData.Labels)
	assert.InDelta(t, 88.3, resp.ChartData.Confidences[0], 1e-9)
	assert.InDelta(t, 11.7, resp.ChartData.Confidences[1], 1e-9)
}

func TestLookupObservationFixture(t *testing.T) {
	s := oralStore(t)

	resp := s.Lookup("3.png")
	require.NotNil(t, resp)
	det := resp.Detection
	assert.Equal(t, 0, det.SurgeryCount)
	assert.Equal(t, 1, det.ObservationCount)
	assert.Equal(t, dao.ClassObservation, det.BoundingBoxes[0].ClassId)
	assert.Equal(t, "medium", det.Analysis.RiskLevel)
	assert.InDelta(t, 15.78, resp.ChartData.Confidences[0], 1e-9)
	assert.InDelta(t, 84.22, resp.ChartData.Confidences[1], 1e-9)
	assert.LessOrEqual(t, det.SurgeryCount+det.ObservationCount, det.TotalInstances)
}

func TestLookupMatchesBaseName(t *testing.T) {
	s := oralStore(t)
	assert.NotNil(t, s.Lookup("test_images/2.png"))
	assert.NotNil(t, s.Lookup(`C:\demo\4.png`))
	assert.Nil(t, s.Lookup("unknown.png"))
	assert.Nil(t, s.Lookup(""))
}

func TestLookupReturnsFreshCopies(t *testing.T) {
	s := oralStore(t)
	a := s.Lookup("1.png")
	a.Detection.Recommendations[0] = "changed"
	a.Detection.BoundingBoxes[0].Bbox[0] = 0

	b := s.Lookup("1.png")
	assert.NotEqual(t, "changed", b.Detection.Recommendations[0])
	assert.Equal(t, 100.0, b.Detection.BoundingBoxes[0].Bbox[0])
	assert.Equal(t, a.Detection.ReportText, b.Detection.ReportText)
}

func TestEyeSet(t *testing.T) {
	s, err := Load("", "eye")
	require.NoError(t, err)

	resp := s.Lookup("test3.jpg")
	require.NotNil(t, resp)
	assert.Equal(t, "胬肉", resp.Detection.DiseaseType)
	assert.Equal(t, []string{"定期复查（3-6个月）", "使用人工泪液缓解症状", "注意眼部卫生"}, resp.Detection.Recommendations)
	assert.Equal(t, []string{"定期复查", "使用人工泪液"}, resp.Detection.Analysis.Recommendations)
	assert.Empty(t, resp.Detection.ReportText)
	assert.Equal(t, "/test_output/test3.jpg", resp.Visualization)

	assert.Nil(t, s.Lookup("1.png"))
	assert.Len(t, s.List(), 4)
}

func TestUnknownSet(t *testing.T) {
	_, err := Load("", "skin")
	assert.ErrorIs(t, err, ErrUnknownSet)
}

func TestParseRejectsVersionMismatch(t *testing.T) {
	_, err := Parse([]byte("version: 1\nsets: []\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("version: 2\nsets:\n  - name: x\n    entries:\n      - name: a.png\n        label: 手术\n        confidence: 1.5\n"))
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "version")
	assert.Contains(t, props, "sets")
}
