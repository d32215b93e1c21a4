package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"mingmou/internal/config"
	"mingmou/internal/dao"
	"mingmou/internal/upload"
	"mingmou/pkg/log"
)

const (
	uploadPath  = "/api/upload"
	detectPath  = "/api/detect"
	batchPath   = "/api/batch"
	reportPath  = "/api/report"
	historyPath = "/api/history"
	resultPath  = "/api/result/"
	statusPath  = "/api/status"

	fallbackBaseURL = "http://localhost:8080"
)

var ErrDetectionFailed = errors.New("detection failed")

// HTTPStatusError is returned when the detection API answers with a non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d, msg: %s", e.StatusCode, e.Body)
}

// ResolveBaseURL uses the page origin when it carries the convention port,
// otherwise the local default.
func ResolveBaseURL(conf config.APIConfig) string {
	if conf.BaseURL != "" {
		return strings.TrimRight(conf.BaseURL, "/")
	}
	if conf.PageOrigin == "" {
		return fallbackBaseURL
	}
	u, err := url.Parse(conf.PageOrigin)
	if err != nil || u.Host == "" || u.Port() != conf.ConventionPort {
		return fallbackBaseURL
	}
	return strings.TrimRight(conf.PageOrigin, "/")
}

type Client struct {
	baseURL   string
	threshold float64
	httpCli   *http.Client
	cache     *cache.Cache
}

func NewClient(conf config.APIConfig) *Client {
	ttl := conf.ResultCacheTTL()
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Client{
		baseURL:   ResolveBaseURL(conf),
		threshold: conf.ConfidenceThreshold,
		httpCli: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
			Timeout: conf.Timeout(),
		},
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func detectorLogger(ctx context.Context) *logrus.Entry {
	return log.GetLogger(ctx).WithField("component", "detector")
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if id := log.RequestId(ctx); id != "" {
		req.Header.Set(log.HttpXRequestId, id)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	logger := detectorLogger(req.Context())
	start := time.Now()

	resp, err := c.httpCli.Do(req)
	if err != nil {
		logger.WithError(err).Errorf("%s %s failed", req.Method, req.URL.Path)
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	logger.Debugf("%s %s %d %s", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, resp.Header, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, _, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in any) ([]byte, http.Header, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) postImages(ctx context.Context, path, field string, images []*upload.Image) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, img := range images {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(img.Name)))
		hdr.Set("Content-Type", img.MIME)
		part, err := writer.CreatePart(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	respBody, _, err := c.do(req)
	return respBody, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func detectionError(err error) error {
	return fmt.Errorf("%w: %w", ErrDetectionFailed, err)
}

func decodeDetection(body []byte) (*dao.DetectionResponse, error) {
	resp := &dao.DetectionResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, detectionError(fmt.Errorf("decode response: %w", err))
	}
	if err := resp.Normalize(); err != nil {
		return nil, detectionError(fmt.Errorf("normalize response: %w", err))
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, detectionError(errors.New(msg))
	}
	return resp, nil
}

func (c *Client) Upload(ctx context.Context, img *upload.Image) (*dao.UploadResponse, error) {
	body, err := c.postImages(ctx, uploadPath, "image", []*upload.Image{img})
	if err != nil {
		return nil, detectionError(err)
	}
	resp := &dao.UploadResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, detectionError(err)
	}
	return resp, nil
}

func (c *Client) Detect(ctx context.Context, img *upload.Image) (*dao.DetectionResponse, error) {
	body, err := c.postImages(ctx, detectPath, "image", []*upload.Image{img})
	if err != nil {
		return nil, detectionError(err)
	}
	return decodeDetection(body)
}

// DetectTest asks the API to run detection on a demo image it already has.
func (c *Client) DetectTest(ctx context.Context, name, serverPath string) (*dao.DetectionResponse, error) {
	body, _, err := c.postJSON(ctx, detectPath, &dao.DetectTestRequest{
		IsTest:              true,
		TestImage:           serverPath,
		ImageName:           name,
		ConfidenceThreshold: c.threshold,
	})
	if err != nil {
		return nil, detectionError(err)
	}
	return decodeDetection(body)
}

func (c *Client) DetectBatch(ctx context.Context, images []*upload.Image) (*dao.BatchResponse, error) {
	body, err := c.postImages(ctx, batchPath, "images", images)
	if err != nil {
		return nil, detectionError(err)
	}
	resp := &dao.BatchResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, detectionError(fmt.Errorf("decode batch response: %w", err))
	}
	return resp, nil
}

// Report requests a rendered report for resultId and returns the blob with its content type.
func (c *Client) Report(ctx context.Context, resultId, format string) ([]byte, string, error) {
	body, hdr, err := c.postJSON(ctx, reportPath, &dao.ReportRequest{ResultId: resultId, Format: format})
	if err != nil {
		return nil, "", err
	}
	return body, hdr.Get("Content-Type"), nil
}

func (c *Client) History(ctx context.Context) ([]dao.HistoryEntry, error) {
	resp := &dao.HistoryResponse{}
	if err := c.getJSON(ctx, historyPath, resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// Result fetches a stored result. Responses are cached per id.
func (c *Client) Result(ctx context.Context, id string) (*dao.DetectionResponse, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(*dao.DetectionResponse).Clone(), nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, resultPath+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req)
	if err != nil {
		return nil, err
	}
	resp := &dao.DetectionResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	if err := resp.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize result %s: %w", id, err)
	}
	if resp.ResultId == "" {
		resp.ResultId = id
	}
	c.cache.SetDefault(id, resp.Clone())
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (*dao.StatusResponse, error) {
	resp := &dao.StatusResponse{}
	if err := c.getJSON(ctx, statusPath, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
