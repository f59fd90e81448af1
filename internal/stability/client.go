package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nimbusworks/artforge/internal/config"
)

// Client is a typed client for the Stability AI REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger

	pollInterval    time.Duration
	maxPollAttempts int
}

// Artifact is one generated image or video. Filtered artifacts were censored
// by the upstream content filter and carry no bytes.
type Artifact struct {
	Bytes    []byte
	Seed     int64
	Filtered bool
}

type TextToImageOptions struct {
	EngineID string
	Prompt   string
	Width    int
	Height   int
	Samples  int
	Steps    int
	CfgScale float64
	Seed     int64
}

type ImageToImageOptions struct {
	EngineID      string
	Prompt        string
	InitImage     []byte
	ImageStrength float64
	Steps         int
	CfgScale      float64
	Seed          int64
}

type ImageToVideoOptions struct {
	Image          []byte
	Seed           int64
	CfgScale       float64
	MotionBucketID int
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		apiKey:  cfg.StabilityAPIKey,
		baseURL: strings.TrimRight(cfg.StabilityBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:             log,
		pollInterval:    5 * time.Second,
		maxPollAttempts: 60,
	}
}

// TextToImage runs a text-to-image generation and returns all artifacts,
// including content-filtered ones, in upstream order.
func (c *Client) TextToImage(ctx context.Context, opts TextToImageOptions) ([]Artifact, error) {
	payload := map[string]any{
		"text_prompts": []map[string]any{{"text": opts.Prompt}},
		"width":        opts.Width,
		"height":       opts.Height,
		"samples":      opts.Samples,
		"steps":        opts.Steps,
		"cfg_scale":    opts.CfgScale,
	}
	if opts.Seed != 0 {
		payload["seed"] = opts.Seed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.baseURL, url.PathEscape(opts.EngineID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doArtifacts(req)
}

// ImageToImage runs a prompt-guided edit of the init image.
func (c *Client) ImageToImage(ctx context.Context, opts ImageToImageOptions) ([]Artifact, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("init_image", "init_image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(opts.InitImage); err != nil {
		return nil, fmt.Errorf("write init image: %w", err)
	}

	fields := map[string]string{
		"text_prompts[0][text]": opts.Prompt,
		"init_image_mode":       "IMAGE_STRENGTH",
		"image_strength":        strconv.FormatFloat(opts.ImageStrength, 'f', -1, 64),
		"steps":                 strconv.Itoa(opts.Steps),
		"cfg_scale":             strconv.FormatFloat(opts.CfgScale, 'f', -1, 64),
		"samples":               "1",
	}
	if opts.Seed != 0 {
		fields["seed"] = strconv.FormatInt(opts.Seed, 10)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/generation/%s/image-to-image", c.baseURL, url.PathEscape(opts.EngineID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.doArtifacts(req)
}

func (c *Client) doArtifacts(req *http.Request) ([]Artifact, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post stability: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("stability request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("stability error: status=%d url=%s body=%s", resp.StatusCode, req.URL.String(), truncateBody(rawBody))
	}

	var decoded struct {
		Artifacts []struct {
			Base64       string `json:"base64"`
			Seed         int64  `json:"seed"`
			FinishReason string `json:"finishReason"`
		} `json:"artifacts"`
	}
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w (body=%s)", err, truncateBody(rawBody))
	}

	artifacts := make([]Artifact, 0, len(decoded.Artifacts))
	for _, a := range decoded.Artifacts {
		artifact := Artifact{Seed: a.Seed}
		if a.FinishReason == "CONTENT_FILTERED" {
			artifact.Filtered = true
			artifacts = append(artifacts, artifact)
			continue
		}
		data, err := base64.StdEncoding.DecodeString(a.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode artifact base64: %w", err)
		}
		artifact.Bytes = data
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// ImageToVideo starts an image-to-video job and polls the result endpoint
// until the video is ready.
func (c *Client) ImageToVideo(ctx context.Context, opts ImageToVideoOptions) (*Artifact, error) {
	generationID, err := c.startVideo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("start video: %w", err)
	}
	return c.pollVideo(ctx, generationID)
}

func (c *Client) startVideo(ctx context.Context, opts ImageToVideoOptions) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("image", "source_image.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(opts.Image); err != nil {
		return "", fmt.Errorf("write source image: %w", err)
	}

	fields := map[string]string{
		"cfg_scale":        strconv.FormatFloat(opts.CfgScale, 'f', -1, 64),
		"motion_bucket_id": strconv.Itoa(opts.MotionBucketID),
	}
	if opts.Seed != 0 {
		fields["seed"] = strconv.FormatInt(opts.Seed, 10)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/v2beta/image-to-video"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post stability: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("stability start video failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return "", fmt.Errorf("stability error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var started struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rawBody, &started); err != nil {
		return "", fmt.Errorf("decode start response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if started.ID == "" {
		return "", fmt.Errorf("empty generation id in response")
	}

	if c.log != nil {
		c.log.Info("stability video job started", "generation_id", started.ID)
	}
	return started.ID, nil
}

func (c *Client) pollVideo(ctx context.Context, generationID string) (*Artifact, error) {
	endpoint := c.baseURL + "/v2beta/image-to-video/result/" + url.PathEscape(generationID)

	maxAttempts := c.maxPollAttempts
	pollInterval := c.pollInterval

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get video result: %w", err)
		}

		rawBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusAccepted:
			if c.log != nil && attempt%10 == 0 {
				c.log.Info("stability video job running", "generation_id", generationID, "attempt", attempt+1, "max_attempts", maxAttempts)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
			}
			continue

		case resp.StatusCode == http.StatusOK:
			var result struct {
				Video        string `json:"video"`
				Seed         int64  `json:"seed"`
				FinishReason string `json:"finish_reason"`
			}
			if err := json.Unmarshal(rawBody, &result); err != nil {
				return nil, fmt.Errorf("decode video result: %w (body=%s)", err, truncateBody(rawBody))
			}
			if result.FinishReason == "CONTENT_FILTERED" {
				return &Artifact{Seed: result.Seed, Filtered: true}, nil
			}
			if result.Video == "" {
				return nil, fmt.Errorf("empty video in finished result")
			}
			data, err := base64.StdEncoding.DecodeString(result.Video)
			if err != nil {
				return nil, fmt.Errorf("decode video base64: %w", err)
			}
			if c.log != nil {
				c.log.Info("stability video job finished", "generation_id", generationID, "attempt", attempt+1)
			}
			return &Artifact{Bytes: data, Seed: result.Seed}, nil

		default:
			if c.log != nil {
				c.log.Error("stability poll video failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
			}
			return nil, fmt.Errorf("stability error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
		}
	}

	return nil, fmt.Errorf("video job timeout after %d attempts", maxAttempts)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
