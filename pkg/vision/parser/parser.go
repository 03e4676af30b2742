package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/vision-query/internal/models"
)

type searchBody struct {
	SimilarImages []models.ImageResult `json:"similar_images"`
}

type analysisBody struct {
	Captions       []string             `json:"captions"`
	Detections     []models.Detection   `json:"detections"`
	SimilarImages  []models.ImageResult `json:"similar_images"`
	SegmentedImage json.RawMessage      `json:"segmented_image"`
}

// ParseSimilarImages decodes a text query response. A missing or null
// similar_images field yields an empty slice.
func ParseSimilarImages(body []byte) ([]models.ImageResult, error) {
	var resp searchBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if resp.SimilarImages == nil {
		return []models.ImageResult{}, nil
	}
	return resp.SimilarImages, nil
}

// ParseImageAnalysis decodes a file query response, keeping the server's
// ordering of every list.
func ParseImageAnalysis(body []byte) (*models.ImageAnalysis, error) {
	var resp analysisBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	segmented, err := parseSegmentedImage(resp.SegmentedImage)
	if err != nil {
		return nil, err
	}

	analysis := &models.ImageAnalysis{
		Captions:       resp.Captions,
		Detections:     resp.Detections,
		SimilarImages:  resp.SimilarImages,
		SegmentedImage: segmented,
	}
	if analysis.Captions == nil {
		analysis.Captions = []string{}
	}
	if analysis.Detections == nil {
		analysis.Detections = []models.Detection{}
	}
	if analysis.SimilarImages == nil {
		analysis.SimilarImages = []models.ImageResult{}
	}

	return analysis, nil
}

// parseSegmentedImage accepts a base64 string or a list of base64 chunks,
// which are joined in order.
func parseSegmentedImage(raw json.RawMessage) (models.SegmentedImage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid segmented_image: %w", err)
		}
		return models.SegmentedImage(s), nil
	case '[':
		var parts []string
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", fmt.Errorf("invalid segmented_image: %w", err)
		}
		return models.SegmentedImage(strings.Join(parts, "")), nil
	}

	return "", fmt.Errorf("invalid segmented_image: unexpected JSON %q", string(raw[:1]))
}
