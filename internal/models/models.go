package models

type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

// InputType selects which result view is active. The zero value means the
// mode selection view is shown.
type InputType string

const (
	InputNone  InputType = ""
	InputText  InputType = "text"
	InputImage InputType = "image"
)

type ImageResult struct {
	ID    string  `json:"id"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// SegmentedImage is the base64 payload of the segmentation overlay. It is
// never decoded, only embedded in a data URI.
type SegmentedImage string

func (s SegmentedImage) DataURI() string {
	if s == "" {
		return ""
	}
	return "data:image/png;base64," + string(s)
}

type ImageAnalysis struct {
	Captions       []string       `json:"captions"`
	Detections     []Detection    `json:"detections"`
	SimilarImages  []ImageResult  `json:"similar_images"`
	SegmentedImage SegmentedImage `json:"segmented_image"`
}

// ImageFile is an upload normalised from the file picker, a drag and drop,
// or a proxied sample image.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type UIState struct {
	Mode                 Mode           `json:"mode"`
	InputType            InputType      `json:"input_type"`
	Loading              bool           `json:"loading"`
	Prompt               string         `json:"prompt"`
	UploadedImagePreview string         `json:"uploaded_image_preview,omitempty"`
	Results              []ImageResult  `json:"results"`
	Analysis             *ImageAnalysis `json:"analysis"`
	Notice               string         `json:"notice,omitempty"`
}

func InitialState() UIState {
	return UIState{
		Mode:    ModeText,
		Results: []ImageResult{},
	}
}

// Clone returns a copy that shares no slices with s.
func (s UIState) Clone() UIState {
	out := s
	out.Results = append([]ImageResult{}, s.Results...)
	if s.Analysis != nil {
		a := *s.Analysis
		a.Captions = append([]string{}, s.Analysis.Captions...)
		a.Detections = append([]Detection{}, s.Analysis.Detections...)
		a.SimilarImages = append([]ImageResult{}, s.Analysis.SimilarImages...)
		out.Analysis = &a
	}
	return out
}
