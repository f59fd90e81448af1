// Package genapi holds the wire contracts of the generation API and a typed
// HTTP client for them.
package genapi

// ImageGenerationRequest is the JSON body of POST /ai-image-generation/generate.
type ImageGenerationRequest struct {
	Prompt   string  `json:"prompt"`
	UserID   string  `json:"user_id,omitempty"`
	N        int     `json:"n,omitempty"`
	Size     string  `json:"size,omitempty"`
	EngineID string  `json:"engine_id,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	CfgScale float64 `json:"cfg_scale,omitempty"`
	Seed     int64   `json:"seed,omitempty"`
}

// GeneratedImage is one stored artifact: a relative API path plus the seed of
// the generated image.
type GeneratedImage struct {
	Path string `json:"image_path"`
	Seed int64  `json:"seed"`
}

type ImageGenerationResponse struct {
	Message         string           `json:"message"`
	GeneratedImages []GeneratedImage `json:"generated_images"`
}

// ImageEditRequest is sent as a multipart form, with Image as the binary
// image_file part.
type ImageEditRequest struct {
	Prompt        string
	UserID        string
	EngineID      string
	Steps         int
	CfgScale      float64
	Seed          int64
	ImageStrength float64
	FileName      string
	Image         []byte
}

type ImageEditResponse struct {
	Message           string           `json:"message"`
	OriginalImagePath string           `json:"original_image_path,omitempty"`
	EditedImages      []GeneratedImage `json:"edited_images"`
}

// VideoGenerationRequest is the JSON body of
// POST /ai-video-generation/generate-video.
type VideoGenerationRequest struct {
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Quality         string `json:"quality,omitempty"`
	MotionIntensity string `json:"motion_intensity,omitempty"`
	Seed            int64  `json:"seed,omitempty"`
	UserID          string `json:"user_id,omitempty"`
}

type GeneratedVideo struct {
	VideoPath       string `json:"video_path"`
	VideoSeed       int64  `json:"video_seed"`
	SourceImageSeed int64  `json:"source_image_seed"`
}

type VideoGenerationResponse struct {
	Message        string          `json:"message"`
	GeneratedVideo *GeneratedVideo `json:"generated_video"`
}

// ValidationDetail is one entry of a structured validation failure.
type ValidationDetail struct {
	Location []string `json:"loc"`
	Message  string   `json:"msg"`
	Type     string   `json:"type"`
}
