package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// routesPrefix is where the generation routes are mounted on the API origin.
const routesPrefix = "/routes"

// Client is a typed HTTP client for the generation API. It performs no
// retries, backoff or caching: a call either resolves or fails once.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the API origin. A nil httpClient gets a
// default with a five-minute timeout, matching the longest generation calls.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ResultURL turns a relative artifact path from a response into an absolute
// URL on the API origin.
func (c *Client) ResultURL(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + routesPrefix + path
}

// Health checks GET /_healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/_healthz", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// GenerateImages calls POST /ai-image-generation/generate.
func (c *Client) GenerateImages(ctx context.Context, req ImageGenerationRequest) (*ImageGenerationResponse, error) {
	var resp ImageGenerationResponse
	if err := c.postJSON(ctx, "/ai-image-generation/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateVideo calls POST /ai-video-generation/generate-video.
func (c *Client) GenerateVideo(ctx context.Context, req VideoGenerationRequest) (*VideoGenerationResponse, error) {
	var resp VideoGenerationResponse
	if err := c.postJSON(ctx, "/ai-video-generation/generate-video", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EditImage calls POST /ai-image-generation/edit-image with a multipart form
// carrying the image to edit.
func (c *Client) EditImage(ctx context.Context, req ImageEditRequest) (*ImageEditResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"prompt": req.Prompt,
	}
	if req.UserID != "" {
		fields["user_id"] = req.UserID
	}
	if req.EngineID != "" {
		fields["engine_id"] = req.EngineID
	}
	if req.Steps != 0 {
		fields["steps"] = strconv.Itoa(req.Steps)
	}
	if req.CfgScale != 0 {
		fields["cfg_scale"] = strconv.FormatFloat(req.CfgScale, 'f', -1, 64)
	}
	if req.Seed != 0 {
		fields["seed"] = strconv.FormatInt(req.Seed, 10)
	}
	if req.ImageStrength != 0 {
		fields["image_strength"] = strconv.FormatFloat(req.ImageStrength, 'f', -1, 64)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = "image.png"
	}
	fw, err := w.CreateFormFile("image_file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(req.Image); err != nil {
		return nil, fmt.Errorf("write image file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ai-image-generation/edit-image"), &buf)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var resp ImageEditResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchImage calls GET /ai-image-generation/images/{image_key} and returns
// the raw image bytes.
func (c *Client) FetchImage(ctx context.Context, imagePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResultURL(imagePath), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// FetchVideo calls GET /ai-video-generation/videos/{filename} and returns the
// video stream. The caller owns the reader and must close it.
func (c *Client) FetchVideo(ctx context.Context, videoPath string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResultURL(videoPath), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch video: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, body)
	}
	return resp.Body, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + routesPrefix + path
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, rawBody)
	}

	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
