package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lehigh-university-libraries/vision-query/internal/models"
	"github.com/lehigh-university-libraries/vision-query/internal/utils"
	"github.com/lehigh-university-libraries/vision-query/pkg/metrics"
	"github.com/lehigh-university-libraries/vision-query/pkg/vision/parser"
)

const (
	TextQueryPath  = "/api/text-query/"
	FileQueryPath  = "/api/file-query/"
	ProxyImagePath = "/api/proxy-image/"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type Config struct {
	// APIURL is the backend base URL without the /api suffix.
	APIURL string
	// Timeout bounds each call. Zero means calls wait for the backend
	// indefinitely.
	Timeout time.Duration
}

func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("backend: missing API URL")
	}
	if _, err := url.Parse(c.APIURL); err != nil {
		return fmt.Errorf("backend: invalid API URL: %w", err)
	}
	return nil
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Endpoint, e.StatusCode)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
	}, nil
}

// TextQuery sends the prompt as the single form field q and returns the
// similar images of the response.
func (c *Client) TextQuery(ctx context.Context, prompt string) ([]models.ImageResult, error) {
	form := url.Values{}
	form.Set("q", prompt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TextQueryPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create text query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, _, err := c.do(req, "text-query")
	if err != nil {
		return nil, err
	}

	return parser.ParseSimilarImages(body)
}

// FileQuery uploads the image as the single multipart field file.
func (c *Client) FileQuery(ctx context.Context, file models.ImageFile) (*models.ImageAnalysis, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Filename)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+FileQueryPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create file query request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	body, _, err := c.do(req, "file-query")
	if err != nil {
		return nil, err
	}

	return parser.ParseImageAnalysis(body)
}

// ProxyImage fetches an externally hosted image through the backend so the
// browser never talks to the external host.
func (c *Client) ProxyImage(ctx context.Context, externalURL string) (models.ImageFile, error) {
	query := url.Values{}
	query.Set("url", externalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ProxyImagePath+"?"+query.Encode(), nil)
	if err != nil {
		return models.ImageFile{}, fmt.Errorf("failed to create proxy request: %w", err)
	}

	body, header, err := c.do(req, "proxy-image")
	if err != nil {
		return models.ImageFile{}, err
	}

	filename := path.Base(externalURL)
	if u, err := url.Parse(externalURL); err == nil {
		filename = path.Base(u.Path)
	}

	return models.ImageFile{
		Filename:    filename,
		ContentType: header.Get("Content-Type"),
		Data:        body,
	}, nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, http.Header, error) {
	start := time.Now()
	body, header, err := c.roundTrip(req, endpoint)
	elapsed := time.Since(start)

	c.metrics.ObserveBackendRequest(endpoint, err, elapsed)
	if err != nil {
		utils.Logger.Warn("backend call failed",
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, nil, err
	}

	utils.Logger.Debug("backend call completed",
		zap.String("endpoint", endpoint),
		zap.Duration("elapsed", elapsed),
		zap.Int("bytes", len(body)))
	return body, header, nil
}

func (c *Client) roundTrip(req *http.Request, endpoint string) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	return body, resp.Header, nil
}
