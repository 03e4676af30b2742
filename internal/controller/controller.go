package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lehigh-university-libraries/vision-query/internal/models"
	"github.com/lehigh-university-libraries/vision-query/internal/utils"
	"github.com/lehigh-university-libraries/vision-query/pkg/metrics"
)

const (
	NoticeTextQueryFailed     = "Text query failed"
	NoticeImageAnalysisFailed = "Image analysis failed"
)

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrNotImage    = errors.New("file is not an image")
	ErrReset       = errors.New("state was reset")
)

// Backend is the remote search and analysis service.
type Backend interface {
	TextQuery(ctx context.Context, prompt string) ([]models.ImageResult, error)
	FileQuery(ctx context.Context, file models.ImageFile) (*models.ImageAnalysis, error)
	ProxyImage(ctx context.Context, externalURL string) (models.ImageFile, error)
}

type SamplePicker interface {
	Pick() (name string, externalURL string)
}

// Controller owns the UI state of one browser session.
//
// Submissions return as soon as the loading state is set; the backend call
// completes on its own goroutine. Overlapping submissions are not prevented
// and the last one to complete wins. Reset bumps the generation so that calls
// started before it cannot write state after it.
type Controller struct {
	ctx     context.Context
	backend Backend
	picker  SamplePicker
	metrics *metrics.Metrics
	log     *zap.Logger

	mu         sync.Mutex
	state      models.UIState
	generation uint64

	inflight sync.WaitGroup
}

// New builds a controller. ctx bounds the background backend calls and
// should live as long as the server, not a single HTTP request.
func New(ctx context.Context, backend Backend, picker SamplePicker, m *metrics.Metrics) *Controller {
	return &Controller{
		ctx:     ctx,
		backend: backend,
		picker:  picker,
		metrics: m,
		log:     utils.Logger,
		state:   models.InitialState(),
	}
}

func (c *Controller) Snapshot() models.UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// TakeNotice returns the pending failure notice, if any, and clears it so
// it is shown only once.
func (c *Controller) TakeNotice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	notice := c.state.Notice
	c.state.Notice = ""
	return notice
}

func (c *Controller) SetMode(mode models.Mode) {
	if mode != models.ModeText && mode != models.ModeImage {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Mode = mode
}

func (c *Controller) SetPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Prompt = prompt
}

func (c *Controller) SubmitText(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	c.metrics.CountAction("submit_text")

	c.mu.Lock()
	c.state.Prompt = prompt
	c.state.InputType = models.InputText
	c.state.UploadedImagePreview = ""
	c.state.Analysis = nil
	c.state.Loading = true
	gen := c.generation
	c.mu.Unlock()

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		results, err := c.backend.TextQuery(c.ctx, prompt)

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			c.log.Debug("discarding text query response after reset")
			return
		}
		c.state.Loading = false
		if err != nil {
			c.log.Error("text query failed", zap.Error(err))
			c.state.Notice = NoticeTextQueryFailed
			return
		}
		if results == nil {
			results = []models.ImageResult{}
		}
		c.state.Results = results
	}()

	return nil
}

func (c *Controller) SubmitImage(file models.ImageFile) error {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	return c.submitImage(file, gen)
}

// submitImage starts the analysis only if no Reset happened since gen was
// read.
func (c *Controller) submitImage(file models.ImageFile, gen uint64) error {
	if !utils.IsImageType(file.ContentType) {
		return ErrNotImage
	}

	preview := utils.DataURI(file.ContentType, file.Data)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return ErrReset
	}
	c.state.UploadedImagePreview = preview
	c.state.InputType = models.InputImage
	c.state.Results = []models.ImageResult{}
	c.state.Loading = true
	c.mu.Unlock()

	c.metrics.CountAction("submit_image")

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		analysis, err := c.backend.FileQuery(c.ctx, file)

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			c.log.Debug("discarding file query response after reset", zap.String("filename", file.Filename))
			return
		}
		c.state.Loading = false
		if err != nil {
			c.log.Error("image analysis failed", zap.String("filename", file.Filename), zap.Error(err))
			c.state.Notice = NoticeImageAnalysisFailed
			return
		}
		c.state.Analysis = analysis
		c.state.Results = analysis.SimilarImages
	}()

	return nil
}

// FetchRandomSample pulls a sample image through the backend proxy and
// submits it as if the user had uploaded it. The sample is dropped with
// ErrReset if Reset is called while the proxy fetch is in flight.
func (c *Controller) FetchRandomSample(ctx context.Context) error {
	c.metrics.CountAction("random_sample")

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	name, externalURL := c.picker.Pick()
	file, err := c.backend.ProxyImage(ctx, externalURL)
	if err != nil {
		return fmt.Errorf("failed to fetch sample %s: %w", name, err)
	}
	file.Filename = name

	if err := c.submitImage(file, gen); err != nil {
		return fmt.Errorf("failed to submit sample %s: %w", name, err)
	}
	return nil
}

// Reset returns every field to its initial value. Responses to calls issued
// before the reset are dropped.
func (c *Controller) Reset() {
	c.metrics.CountAction("reset")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.state = models.InitialState()
}

// Wait blocks until every backend call started so far has completed.
func (c *Controller) Wait() {
	c.inflight.Wait()
}
