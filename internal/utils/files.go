package utils

import (
	"encoding/base64"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IsImageType reports whether a declared content type names image content.
// Parameters such as "; charset=" are ignored.
func IsImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}

// DataURI embeds data in a data: URI so the browser can render it without a
// round trip.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func RespondWithError(c *gin.Context, message string, statusCode int) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"error": message,
	})
}

func ExitOnError(msg string, err error) {
	Logger.Error(msg, zap.Error(err))
	_ = Logger.Sync()
	os.Exit(1)
}
