package genapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultURL(t *testing.T) {
	c := NewClient("https://api.example.com/", nil)

	assert.Equal(t, "https://api.example.com/routes/ai-image-generation/images/a.png",
		c.ResultURL("/ai-image-generation/images/a.png"))
	assert.Equal(t, "https://api.example.com/routes/ai-video-generation/videos/v.mp4",
		c.ResultURL("ai-video-generation/videos/v.mp4"))
	assert.Empty(t, c.ResultURL(""))
}

func TestGenerateImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/routes/ai-image-generation/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ImageGenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a lighthouse", req.Prompt)
		assert.Equal(t, 2, req.N)

		json.NewEncoder(w).Encode(ImageGenerationResponse{
			Message: "2 image(s) generated successfully.",
			GeneratedImages: []GeneratedImage{
				{Path: "/ai-image-generation/images/a.png", Seed: 11},
				{Path: "/ai-image-generation/images/b.png", Seed: 22},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	resp, err := c.GenerateImages(context.Background(), ImageGenerationRequest{Prompt: "a lighthouse", N: 2})
	require.NoError(t, err)
	require.Len(t, resp.GeneratedImages, 2)
	assert.Equal(t, int64(22), resp.GeneratedImages[1].Seed)
}

func TestGenerateImagesValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["body","prompt"],"msg":"Prompt must not be empty.","type":"value_error"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.GenerateImages(context.Background(), ImageGenerationRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Len(t, apiErr.Validation, 1)
	assert.Equal(t, []string{"body", "prompt"}, apiErr.Validation[0].Location)
	assert.Equal(t, "Prompt must not be empty.", err.Error())
}

func TestGenerateImagesDetailStringError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"Image generation failed or produced no valid images."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.GenerateImages(context.Background(), ImageGenerationRequest{Prompt: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Image generation failed or produced no valid images.", apiErr.Detail)
}

func TestEditImageSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routes/ai-image-generation/edit-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))

		assert.Equal(t, "make it snow", r.FormValue("prompt"))
		assert.Equal(t, "user-1", r.FormValue("user_id"))
		assert.Equal(t, "0.4", r.FormValue("image_strength"))
		assert.Empty(t, r.FormValue("seed"), "zero seed is not sent")

		file, header, err := r.FormFile("image_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.png", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, data)

		json.NewEncoder(w).Encode(ImageEditResponse{
			Message:           "1 image(s) edited successfully.",
			OriginalImagePath: "/ai-image-generation/images/orig.png",
			EditedImages:      []GeneratedImage{{Path: "/ai-image-generation/images/e.png", Seed: 3}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	resp, err := c.EditImage(context.Background(), ImageEditRequest{
		Prompt:        "make it snow",
		UserID:        "user-1",
		ImageStrength: 0.4,
		FileName:      "photo.png",
		Image:         []byte{0x89, 0x50, 0x4e, 0x47},
	})
	require.NoError(t, err)
	assert.Equal(t, "/ai-image-generation/images/orig.png", resp.OriginalImagePath)
	require.Len(t, resp.EditedImages, 1)
}

func TestGenerateVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routes/ai-video-generation/generate-video", r.URL.Path)

		var req VideoGenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "16:9", req.AspectRatio)

		json.NewEncoder(w).Encode(VideoGenerationResponse{
			Message: "Video generated successfully.",
			GeneratedVideo: &GeneratedVideo{
				VideoPath:       "/ai-video-generation/videos/v.mp4",
				VideoSeed:       7,
				SourceImageSeed: 3,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	resp, err := c.GenerateVideo(context.Background(), VideoGenerationRequest{Prompt: "waves", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.NotNil(t, resp.GeneratedVideo)
	assert.Equal(t, int64(7), resp.GeneratedVideo.VideoSeed)
}

func TestFetchImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/routes/ai-image-generation/images/generations/image/user-1/1_a.png" {
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png-bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Image not found."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())

	data, err := c.FetchImage(context.Background(), "/ai-image-generation/images/generations/image/user-1/1_a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = c.FetchImage(context.Background(), "/ai-image-generation/images/missing.png")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Image not found.", apiErr.Detail)
}

func TestFetchVideoStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routes/ai-video-generation/videos/v.mp4", r.URL.Path)
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	rc, err := c.FetchVideo(context.Background(), "/ai-video-generation/videos/v.mp4")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4-bytes"), data)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_healthz" {
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	require.NoError(t, c.Health(context.Background()))

	srv.Close()
	assert.Error(t, c.Health(context.Background()))
}
