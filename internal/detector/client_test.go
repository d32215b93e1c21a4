package detector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mingmou/internal/config"
	"mingmou/internal/dao"
	"mingmou/internal/upload"
)

const detectBody = `{"success":true,"result_id":"r1","detection":{"disease_detected":true,"disease_type":"口腔病变",
"confidence":0.9,"total_instances":1,"surgery_count":1,"observation_count":0,
"bounding_boxes":[{"class_id":0,"label":"手术","confidence":0.9,"bbox":[1,2,3,4]}]}}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	conf := config.DefaultConfig().API
	conf.BaseURL = srv.URL
	return NewClient(conf)
}

func testImage() *upload.Image {
	return &upload.Image{Name: "a.png", MIME: "image/png", Data: []byte("\x89PNG fake")}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name string
		conf config.APIConfig
		want string
	}{
		{"explicit", config.APIConfig{BaseURL: "http://api:9000/", PageOrigin: "http://x:8080", ConventionPort: "8080"}, "http://api:9000"},
		{"origin on convention port", config.APIConfig{PageOrigin: "http://demo.local:8080", ConventionPort: "8080"}, "http://demo.local:8080"},
		{"origin elsewhere", config.APIConfig{PageOrigin: "http://demo.local:3000", ConventionPort: "8080"}, "http://localhost:8080"},
		{"longer port", config.APIConfig{PageOrigin: "http://demo.local:18080", ConventionPort: "8080"}, "http://localhost:8080"},
		{"port number in host", config.APIConfig{PageOrigin: "http://node8080.local", ConventionPort: "8080"}, "http://localhost:8080"},
		{"not a url", config.APIConfig{PageOrigin: "demo.local:8080", ConventionPort: "8080"}, "http://localhost:8080"},
		{"nothing", config.APIConfig{ConventionPort: "8080"}, "http://localhost:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveBaseURL(tt.conf))
		})
	}
}

func TestDetectMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/detect", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fhs := r.MultipartForm.File["image"]
		require.Len(t, fhs, 1)
		assert.Equal(t, "a.png", fhs[0].Filename)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, detectBody)
	}))

	resp, err := c.Detect(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.ResultId)
	assert.Equal(t, dao.ModeOnline, resp.Mode)
	require.Len(t, resp.Detection.BoundingBoxes, 1)
}

func TestDetectNon2xx(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))

	resp, err := c.Detect(context.Background(), testImage())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrDetectionFailed)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestDetectUnsuccessfulBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"error":"bad image"}`)
	}))
	_, err := c.Detect(context.Background(), testImage())
	assert.ErrorIs(t, err, ErrDetectionFailed)
	assert.Contains(t, err.Error(), "bad image")
}

func TestDetectTestJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req dao.DetectTestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.IsTest)
		assert.Equal(t, "1.png", req.ImageName)
		assert.Equal(t, "test_images/1.png", req.TestImage)
		assert.Equal(t, 0.5, req.ConfidenceThreshold)
		io.WriteString(w, detectBody)
	}))

	resp, err := c.DetectTest(context.Background(), "1.png", "test_images/1.png")
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestClientDetectBatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/batch", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Len(t, r.MultipartForm.File["images"], 2)
		io.WriteString(w, `{"results":[{"filename":"a.png","success":true,"detection":{"confidence":0.8}},
			{"filename":"b.png","success":false,"error":"boom"}]}`)
	}))

	b := testImage()
	b.Name = "b.png"
	resp, err := c.DetectBatch(context.Background(), []*upload.Image{testImage(), b})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
}

func TestResultIsCached(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/api/result/abc", r.URL.Path)
		io.WriteString(w, `{"id":"abc","filename":"1.png","result":`+detectBody+`}`)
	}))

	first, err := c.Result(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", first.ResultId)
	first.Detection.DiseaseType = "mutated"

	second, err := c.Result(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "口腔病变", second.Detection.DiseaseType)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHistoryAndStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/history":
			io.WriteString(w, `{"history":[{"id":"1","timestamp":"t","disease_type":"x","confidence":0.92},
				{"id":"2","timestamp":"t","disease_type":"y","confidence":75}]}`)
		case "/api/status":
			io.WriteString(w, `{"model_loaded":true,"status":"running"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	entries, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, dao.Percent(92), entries[0].Confidence)
	assert.Equal(t, dao.Percent(75), entries[1].Confidence)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.ModelLoaded)
}

func TestReport(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dao.ReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "r1", req.ResultId)
		assert.Equal(t, "pdf", req.Format)
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4")
	}))

	blob, ct, err := c.Report(context.Background(), "r1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
	assert.Equal(t, "%PDF-1.4", string(blob))
}
