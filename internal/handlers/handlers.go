package handlers

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lehigh-university-libraries/vision-query/internal/controller"
	"github.com/lehigh-university-libraries/vision-query/internal/middleware"
	"github.com/lehigh-university-libraries/vision-query/internal/models"
	"github.com/lehigh-university-libraries/vision-query/internal/storage"
	"github.com/lehigh-university-libraries/vision-query/internal/utils"
	"github.com/lehigh-university-libraries/vision-query/pkg/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// ExamplePrompts are offered under the prompt box.
var ExamplePrompts = []string{
	"a man riding a surfboard on a wave",
	"two dogs playing on the grass",
	"a group of people sitting around a dining table",
	"a train passing through a station",
	"a person riding a bicycle in the city",
}

type Handler struct {
	ctx           context.Context
	sessionStore  *storage.SessionStore
	backend       controller.Backend
	picker        controller.SamplePicker
	metrics       *metrics.Metrics
	maxUploadSize int64
	page          *template.Template
}

type pageData struct {
	State          models.UIState
	Notice         string
	ExamplePrompts []string
}

// New builds the handler set. ctx outlives individual requests and bounds
// the backend calls the controllers start.
func New(ctx context.Context, store *storage.SessionStore, backend controller.Backend, picker controller.SamplePicker, m *metrics.Metrics, maxUploadSize int64) *Handler {
	page := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"score": func(f float64) string {
			return fmt.Sprintf("%.3f", f)
		},
		// dataURI marks a data: URI built by this server as safe for src.
		"dataURI": func(s string) template.URL {
			return template.URL(s)
		},
	}).ParseFS(templateFS, "templates/index.html"))

	return &Handler{
		ctx:           ctx,
		sessionStore:  store,
		backend:       backend,
		picker:        picker,
		metrics:       m,
		maxUploadSize: maxUploadSize,
		page:          page,
	}
}

// Register mounts the page and form routes on r and the JSON routes on api.
// Both must already use middleware.Session.
func (h *Handler) Register(r gin.IRoutes, api gin.IRoutes) {
	r.GET("/", h.HandleIndex)
	r.POST("/mode", h.HandleMode)
	r.POST("/prompt", h.HandlePrompt)
	r.POST("/query/text", h.HandleTextQuery)
	r.POST("/query/file", h.HandleFileQuery)
	r.POST("/query/random", h.HandleRandomSample)
	r.POST("/reset", h.HandleReset)
	api.GET("/state", h.HandleState)
}

func (h *Handler) controller(c *gin.Context) *controller.Controller {
	ctrl := h.sessionStore.GetOrCreate(c.GetString(middleware.SessionKey), func() *controller.Controller {
		return controller.New(h.ctx, h.backend, h.picker, h.metrics)
	})
	h.metrics.SetSessions(h.sessionStore.Len())
	return ctrl
}

func home(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}

// uploadDone ends an upload request. The page script sets X-Requested-With
// and navigates to / itself, so it gets 204: following a redirect inside
// fetch would render the page, and take the notice, where nobody sees it.
func uploadDone(c *gin.Context) {
	if c.GetHeader("X-Requested-With") != "" {
		c.Status(http.StatusNoContent)
		return
	}
	home(c)
}

func (h *Handler) HandleIndex(c *gin.Context) {
	ctrl := h.controller(c)
	data := pageData{
		Notice:         ctrl.TakeNotice(),
		State:          ctrl.Snapshot(),
		ExamplePrompts: ExamplePrompts,
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := h.page.Execute(c.Writer, data); err != nil {
		utils.Logger.Error("Unable to render page", zap.Error(err))
	}
}

func (h *Handler) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller(c).Snapshot())
}

func (h *Handler) HandleMode(c *gin.Context) {
	h.controller(c).SetMode(models.Mode(c.PostForm("mode")))
	home(c)
}

func (h *Handler) HandlePrompt(c *gin.Context) {
	h.controller(c).SetPrompt(c.PostForm("q"))
	home(c)
}

func (h *Handler) HandleTextQuery(c *gin.Context) {
	err := h.controller(c).SubmitText(c.PostForm("q"))
	if err != nil && !errors.Is(err, controller.ErrEmptyPrompt) {
		utils.Logger.Error("Unable to submit text query", zap.Error(err))
	}
	home(c)
}

// HandleFileQuery accepts both the file picker form and drag-and-drop
// uploads. Files that are not images are ignored without a notice.
func (h *Handler) HandleFileQuery(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	file, err := h.readUpload(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithError(c, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		utils.Logger.Warn("Failed to read upload", zap.Error(err))
		uploadDone(c)
		return
	}

	if err := h.controller(c).SubmitImage(file); err != nil {
		utils.Logger.Debug("Ignoring upload",
			zap.String("filename", file.Filename),
			zap.String("content_type", file.ContentType),
			zap.Error(err))
	}
	uploadDone(c)
}

func (h *Handler) readUpload(c *gin.Context) (models.ImageFile, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return models.ImageFile{}, fmt.Errorf("failed to read file: %w", err)
	}

	f, err := header.Open()
	if err != nil {
		return models.ImageFile{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.ImageFile{}, fmt.Errorf("failed to read file contents: %w", err)
	}

	return models.ImageFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) HandleRandomSample(c *gin.Context) {
	err := h.controller(c).FetchRandomSample(c.Request.Context())
	switch {
	case errors.Is(err, controller.ErrReset):
		utils.Logger.Debug("Dropping random sample fetched across a reset", zap.Error(err))
	case err != nil:
		utils.Logger.Warn("Unable to load random sample", zap.Error(err))
	}
	home(c)
}

func (h *Handler) HandleReset(c *gin.Context) {
	h.controller(c).Reset()
	home(c)
}
