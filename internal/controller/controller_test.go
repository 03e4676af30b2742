package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/vision-query/internal/models"
)

// fakeBackend records calls and answers from canned values. When release is
// non-nil, TextQuery and FileQuery block until it is closed. onProxy runs
// while ProxyImage is in flight.
type fakeBackend struct {
	mu         sync.Mutex
	textCalls  []string
	fileCalls  []models.ImageFile
	proxyCalls []string
	release    chan struct{}
	started    chan struct{}
	results    []models.ImageResult
	analysis   *models.ImageAnalysis
	proxyFile  models.ImageFile
	err        error
	proxyErr   error
	onProxy    func()
}

func (f *fakeBackend) TextQuery(ctx context.Context, prompt string) ([]models.ImageResult, error) {
	f.mu.Lock()
	f.textCalls = append(f.textCalls, prompt)
	f.mu.Unlock()
	f.block()
	return f.results, f.err
}

func (f *fakeBackend) FileQuery(ctx context.Context, file models.ImageFile) (*models.ImageAnalysis, error) {
	f.mu.Lock()
	f.fileCalls = append(f.fileCalls, file)
	f.mu.Unlock()
	f.block()
	return f.analysis, f.err
}

func (f *fakeBackend) ProxyImage(ctx context.Context, externalURL string) (models.ImageFile, error) {
	f.mu.Lock()
	f.proxyCalls = append(f.proxyCalls, externalURL)
	f.mu.Unlock()
	if f.onProxy != nil {
		f.onProxy()
	}
	return f.proxyFile, f.proxyErr
}

func (f *fakeBackend) block() {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
}

type fixedPicker struct{ name string }

func (p fixedPicker) Pick() (string, string) {
	return p.name, "http://images.cocodataset.org/test2017/" + p.name
}

func newController(b *fakeBackend) *Controller {
	return New(context.Background(), b, fixedPicker{name: "000000000057.jpg"}, nil)
}

var pngFile = models.ImageFile{
	Filename:    "dog.png",
	ContentType: "image/png",
	Data:        []byte{1, 2, 3},
}

func TestInitialState(t *testing.T) {
	c := newController(&fakeBackend{})
	s := c.Snapshot()

	assert.Equal(t, models.ModeText, s.Mode)
	assert.Equal(t, models.InputNone, s.InputType)
	assert.False(t, s.Loading)
	assert.Empty(t, s.Prompt)
	assert.Empty(t, s.Results)
	assert.Nil(t, s.Analysis)
}

func TestSubmitTextEmptyPromptIssuesNoCall(t *testing.T) {
	b := &fakeBackend{}
	c := newController(b)

	for _, prompt := range []string{"", "   ", "\t\n"} {
		assert.ErrorIs(t, c.SubmitText(prompt), ErrEmptyPrompt)
	}
	c.Wait()

	assert.Empty(t, b.textCalls)
	assert.Equal(t, models.InputNone, c.Snapshot().InputType)
}

func TestSubmitTextSuccess(t *testing.T) {
	b := &fakeBackend{results: []models.ImageResult{{ID: "1", URL: "https://x/1.jpg", Score: 0.91}}}
	c := newController(b)

	require.NoError(t, c.SubmitText("two dogs playing on the grass"))
	c.Wait()

	assert.Equal(t, []string{"two dogs playing on the grass"}, b.textCalls)
	s := c.Snapshot()
	assert.Equal(t, models.InputText, s.InputType)
	assert.False(t, s.Loading)
	assert.Equal(t, b.results, s.Results)
	assert.Empty(t, s.Notice)
}

func TestSubmitTextNilResultsBecomeEmpty(t *testing.T) {
	c := newController(&fakeBackend{})

	require.NoError(t, c.SubmitText("a train"))
	c.Wait()

	s := c.Snapshot()
	assert.NotNil(t, s.Results)
	assert.Empty(t, s.Results)
}

func TestSubmitTextLoadingWhileInFlight(t *testing.T) {
	b := &fakeBackend{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newController(b)

	require.NoError(t, c.SubmitText("a train"))
	<-b.started

	s := c.Snapshot()
	assert.True(t, s.Loading)
	assert.Equal(t, models.InputText, s.InputType)

	close(b.release)
	c.Wait()
	assert.False(t, c.Snapshot().Loading)
}

func TestSubmitTextClearsImageState(t *testing.T) {
	b := &fakeBackend{analysis: &models.ImageAnalysis{SimilarImages: []models.ImageResult{{ID: "img"}}}}
	c := newController(b)

	require.NoError(t, c.SubmitImage(pngFile))
	c.Wait()
	require.NotNil(t, c.Snapshot().Analysis)

	b.results = []models.ImageResult{{ID: "txt"}}
	require.NoError(t, c.SubmitText("a cat"))
	c.Wait()

	s := c.Snapshot()
	assert.Nil(t, s.Analysis)
	assert.Empty(t, s.UploadedImagePreview)
	assert.Equal(t, []models.ImageResult{{ID: "txt"}}, s.Results)
}

func TestSubmitTextFailure(t *testing.T) {
	b := &fakeBackend{results: []models.ImageResult{{ID: "old"}}}
	c := newController(b)

	require.NoError(t, c.SubmitText("first"))
	c.Wait()

	b.err = errors.New("connection refused")
	require.NoError(t, c.SubmitText("second"))
	c.Wait()

	s := c.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, NoticeTextQueryFailed, s.Notice)
	assert.Equal(t, []models.ImageResult{{ID: "old"}}, s.Results)

	assert.Equal(t, NoticeTextQueryFailed, c.TakeNotice())
	assert.Empty(t, c.TakeNotice())
}

func TestSubmitImageRejectsNonImage(t *testing.T) {
	b := &fakeBackend{}
	c := newController(b)

	err := c.SubmitImage(models.ImageFile{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hi")})
	assert.ErrorIs(t, err, ErrNotImage)
	c.Wait()

	assert.Empty(t, b.fileCalls)
	assert.Equal(t, models.InitialState(), c.Snapshot())
}

func TestSubmitImagePreviewBeforeResponse(t *testing.T) {
	b := &fakeBackend{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
		analysis: &models.ImageAnalysis{
			Captions:       []string{"b caption", "a caption", "b caption"},
			Detections:     []models.Detection{{Class: "dog", Confidence: 0.9}, {Class: "cat", Confidence: 0.2}},
			SimilarImages:  []models.ImageResult{{ID: "2", Score: 0.5}, {ID: "1", Score: 0.9}},
			SegmentedImage: "QUJD",
		},
	}
	c := newController(b)

	require.NoError(t, c.SubmitImage(pngFile))
	<-b.started

	s := c.Snapshot()
	assert.True(t, s.Loading)
	assert.Equal(t, models.InputImage, s.InputType)
	assert.Equal(t, "data:image/png;base64,AQID", s.UploadedImagePreview)
	assert.Nil(t, s.Analysis)

	close(b.release)
	c.Wait()

	s = c.Snapshot()
	assert.False(t, s.Loading)
	require.NotNil(t, s.Analysis)
	assert.Equal(t, b.analysis.Captions, s.Analysis.Captions)
	assert.Equal(t, b.analysis.Detections, s.Analysis.Detections)
	assert.Equal(t, b.analysis.SimilarImages, s.Analysis.SimilarImages)
	assert.Equal(t, b.analysis.SimilarImages, s.Results)
	assert.Equal(t, models.SegmentedImage("QUJD"), s.Analysis.SegmentedImage)

	require.Len(t, b.fileCalls, 1)
	assert.Equal(t, pngFile, b.fileCalls[0])
}

func TestSubmitImageFailure(t *testing.T) {
	b := &fakeBackend{err: errors.New("HTTP 500")}
	c := newController(b)

	require.NoError(t, c.SubmitImage(pngFile))
	c.Wait()

	s := c.Snapshot()
	assert.False(t, s.Loading)
	assert.Nil(t, s.Analysis)
	assert.Equal(t, NoticeImageAnalysisFailed, s.Notice)
}

func TestFetchRandomSampleRoutesThroughProxy(t *testing.T) {
	b := &fakeBackend{
		proxyFile: models.ImageFile{Filename: "ignored", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8}},
		analysis:  &models.ImageAnalysis{},
	}
	c := newController(b)

	require.NoError(t, c.FetchRandomSample(context.Background()))
	c.Wait()

	assert.Equal(t, []string{"http://images.cocodataset.org/test2017/000000000057.jpg"}, b.proxyCalls)
	require.Len(t, b.fileCalls, 1)
	assert.Equal(t, "000000000057.jpg", b.fileCalls[0].Filename)
	assert.Equal(t, "image/jpeg", b.fileCalls[0].ContentType)
	assert.Equal(t, models.InputImage, c.Snapshot().InputType)
}

func TestFetchRandomSampleProxyFailureLeavesState(t *testing.T) {
	b := &fakeBackend{proxyErr: errors.New("HTTP 502")}
	c := newController(b)

	assert.Error(t, c.FetchRandomSample(context.Background()))
	c.Wait()

	assert.Empty(t, b.fileCalls)
	assert.Equal(t, models.InitialState(), c.Snapshot())
}

func TestFetchRandomSampleNonImageIgnored(t *testing.T) {
	b := &fakeBackend{proxyFile: models.ImageFile{ContentType: "text/html", Data: []byte("<html>")}}
	c := newController(b)

	assert.ErrorIs(t, c.FetchRandomSample(context.Background()), ErrNotImage)
	assert.Empty(t, b.fileCalls)
}

func TestResetDuringSampleFetchDropsSample(t *testing.T) {
	b := &fakeBackend{
		proxyFile: models.ImageFile{ContentType: "image/jpeg", Data: []byte{0xff, 0xd8}},
		analysis:  &models.ImageAnalysis{Captions: []string{"late"}},
	}
	c := newController(b)
	c.SetMode(models.ModeImage)
	b.onProxy = c.Reset

	assert.ErrorIs(t, c.FetchRandomSample(context.Background()), ErrReset)
	c.Wait()

	assert.Len(t, b.proxyCalls, 1)
	assert.Empty(t, b.fileCalls)
	assert.Equal(t, models.InitialState(), c.Snapshot())
}

func TestResetFromResult(t *testing.T) {
	b := &fakeBackend{results: []models.ImageResult{{ID: "1"}}}
	c := newController(b)
	c.SetMode(models.ModeImage)

	require.NoError(t, c.SubmitText("dogs"))
	c.Wait()
	c.Reset()

	assert.Equal(t, models.InitialState(), c.Snapshot())
}

func TestResetMidFlightDiscardsResponse(t *testing.T) {
	b := &fakeBackend{
		release:  make(chan struct{}),
		started:  make(chan struct{}, 1),
		analysis: &models.ImageAnalysis{Captions: []string{"late"}},
	}
	c := newController(b)

	require.NoError(t, c.SubmitImage(pngFile))
	<-b.started
	c.Reset()
	assert.Equal(t, models.InitialState(), c.Snapshot())

	close(b.release)
	c.Wait()

	assert.Equal(t, models.InitialState(), c.Snapshot())
}

func TestResetMidFlightDiscardsFailure(t *testing.T) {
	b := &fakeBackend{release: make(chan struct{}), started: make(chan struct{}, 1), err: errors.New("boom")}
	c := newController(b)

	require.NoError(t, c.SubmitText("dogs"))
	<-b.started
	c.Reset()
	close(b.release)
	c.Wait()

	assert.Empty(t, c.TakeNotice())
}

func TestSetModeIgnoresUnknown(t *testing.T) {
	c := newController(&fakeBackend{})

	c.SetMode(models.ModeImage)
	assert.Equal(t, models.ModeImage, c.Snapshot().Mode)

	c.SetMode("video")
	assert.Equal(t, models.ModeImage, c.Snapshot().Mode)
}

func TestSetPrompt(t *testing.T) {
	b := &fakeBackend{}
	c := newController(b)

	c.SetPrompt("a man riding a surfboard on a wave")

	assert.Equal(t, "a man riding a surfboard on a wave", c.Snapshot().Prompt)
	assert.Empty(t, b.textCalls)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	b := &fakeBackend{results: []models.ImageResult{{ID: "1"}}}
	c := newController(b)
	require.NoError(t, c.SubmitText("dogs"))
	c.Wait()

	s := c.Snapshot()
	s.Results[0].ID = "mutated"

	assert.Equal(t, "1", c.Snapshot().Results[0].ID)
}
