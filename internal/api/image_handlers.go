package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nimbusworks/artforge/internal/stability"
	"github.com/nimbusworks/artforge/internal/storage"
	"github.com/nimbusworks/artforge/pkg/genapi"
)

const (
	maxPromptLength  = 2000
	maxUploadBytes   = 32 << 20
	imagesPathPrefix = "/ai-image-generation/images/"
)

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req genapi.ImageGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var details []genapi.ValidationDetail
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" || utf8.RuneCountInString(req.Prompt) > maxPromptLength {
		details = append(details, fieldError("prompt", "prompt must be between 1 and 2000 characters", "value_error"))
	}
	if req.N == 0 {
		req.N = 1
	}
	if req.N < 1 || req.N > 10 {
		details = append(details, fieldError("n", "n must be between 1 and 10", "value_error"))
	}
	if req.Steps == 0 {
		req.Steps = 30
	}
	if req.Steps < 10 || req.Steps > 150 {
		details = append(details, fieldError("steps", "steps must be between 10 and 150", "value_error"))
	}
	if req.CfgScale == 0 {
		req.CfgScale = 7.0
	}
	if req.CfgScale < 0 || req.CfgScale > 35 {
		details = append(details, fieldError("cfg_scale", "cfg_scale must be between 0 and 35", "value_error"))
	}
	if req.Size == "" {
		req.Size = "1024x1024"
	}
	width, height, err := parseSize(req.Size)
	if err != nil {
		details = append(details, fieldError("size", fmt.Sprintf("invalid size %q, expected 'widthxheight' (e.g. '1024x1024')", req.Size), "value_error"))
	}
	if len(details) > 0 {
		writeValidationErrors(w, details)
		return
	}
	if req.EngineID == "" {
		req.EngineID = s.cfg.DefaultEngineID
	}

	s.log.Info("image generation requested", "owner", req.UserID, "n", req.N, "engine", req.EngineID)

	artifacts, err := s.generator.TextToImage(r.Context(), stability.TextToImageOptions{
		EngineID: req.EngineID,
		Prompt:   req.Prompt,
		Width:    width,
		Height:   height,
		Samples:  req.N,
		Steps:    req.Steps,
		CfgScale: req.CfgScale,
		Seed:     req.Seed,
	})
	if err != nil {
		s.log.Error("text-to-image failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred: %v", err))
		return
	}

	stored := s.storeImageArtifacts(r, artifacts, req.UserID, req.Prompt, "")
	if len(stored) == 0 {
		writeDetail(w, http.StatusInternalServerError, "Image generation failed or produced no valid images.")
		return
	}

	writeJSON(w, http.StatusOK, genapi.ImageGenerationResponse{
		Message:         fmt.Sprintf("%d image(s) generated successfully.", len(stored)),
		GeneratedImages: stored,
	})
}

func (s *Server) handleEditImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	prompt := strings.TrimSpace(r.FormValue("prompt"))
	userID := r.FormValue("user_id")
	engineID := r.FormValue("engine_id")
	steps := formInt(r, "steps", 30)
	cfgScale := formFloat(r, "cfg_scale", 7.0)
	seed := formInt64(r, "seed", 0)
	imageStrength := formFloat(r, "image_strength", 0.35)

	var details []genapi.ValidationDetail
	if prompt == "" || utf8.RuneCountInString(prompt) > maxPromptLength {
		details = append(details, fieldError("prompt", "prompt must be between 1 and 2000 characters", "value_error"))
	}
	if steps < 10 || steps > 150 {
		details = append(details, fieldError("steps", "steps must be between 10 and 150", "value_error"))
	}
	if cfgScale < 0 || cfgScale > 35 {
		details = append(details, fieldError("cfg_scale", "cfg_scale must be between 0 and 35", "value_error"))
	}
	if imageStrength < 0 || imageStrength > 1 {
		details = append(details, fieldError("image_strength", "image_strength must be between 0.0 and 1.0", "value_error"))
	}
	if len(details) > 0 {
		writeValidationErrors(w, details)
		return
	}
	if engineID == "" {
		engineID = s.cfg.DefaultEngineID
	}

	file, _, err := r.FormFile("image_file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "image_file is required")
		return
	}
	defer file.Close()
	original, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read uploaded image")
		return
	}
	if len(original) == 0 {
		writeDetail(w, http.StatusBadRequest, "Uploaded image file is empty.")
		return
	}

	// Keep the uploaded source so the response can reference it.
	originalKey := s.store.ObjectKey("image", userID, fmt.Sprintf("original_%s_%s.png", promptPrefix(prompt), uuid.NewString()))
	if _, err := s.store.Put(r.Context(), originalKey, original, "image/png"); err != nil {
		s.log.Error("store original image failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not store uploaded image.")
		return
	}
	originalPath := imagesPathPrefix + originalKey

	s.log.Info("image edit requested", "owner", userID, "engine", engineID)

	artifacts, err := s.generator.ImageToImage(r.Context(), stability.ImageToImageOptions{
		EngineID:      engineID,
		Prompt:        prompt,
		InitImage:     original,
		ImageStrength: imageStrength,
		Steps:         steps,
		CfgScale:      cfgScale,
		Seed:          seed,
	})
	if err != nil {
		s.log.Error("image-to-image failed", "err", err)
		s.discardObject(r, originalKey)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred during image editing: %v", err))
		return
	}

	stored := s.storeImageArtifacts(r, artifacts, userID, prompt, "edited_")
	if len(stored) == 0 {
		s.discardObject(r, originalKey)
		writeDetail(w, http.StatusInternalServerError, "Image editing failed or produced no valid images.")
		return
	}

	writeJSON(w, http.StatusOK, genapi.ImageEditResponse{
		Message:           fmt.Sprintf("%d image(s) edited successfully.", len(stored)),
		OriginalImagePath: originalPath,
		EditedImages:      stored,
	})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeDetail(w, http.StatusNotFound, "Image not found.")
		return
	}

	data, contentType, err := s.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "Image not found.")
			return
		}
		s.log.Error("get image failed", "key", key, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Server error retrieving image.")
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// storeImageArtifacts persists every non-filtered artifact and returns their
// API paths. Filtered artifacts are skipped, as are individual store
// failures, so a partial batch can still succeed.
func (s *Server) storeImageArtifacts(r *http.Request, artifacts []stability.Artifact, ownerID, prompt, namePrefix string) []genapi.GeneratedImage {
	stored := make([]genapi.GeneratedImage, 0, len(artifacts))
	for _, artifact := range artifacts {
		if artifact.Filtered {
			s.log.Warn("artifact censored by content filter", "owner", ownerID)
			continue
		}
		filename := fmt.Sprintf("%s%s_%s.png", namePrefix, promptPrefix(prompt), uuid.NewString())
		key := s.store.ObjectKey("image", ownerID, filename)
		if _, err := s.store.Put(r.Context(), key, artifact.Bytes, "image/png"); err != nil {
			s.log.Error("store artifact failed", "key", key, "err", err)
			continue
		}
		stored = append(stored, genapi.GeneratedImage{
			Path: imagesPathPrefix + key,
			Seed: artifact.Seed,
		})
	}
	return stored
}

// discardObject drops an artifact whose request ended without a surviving
// result, so failed edits do not leave orphaned uploads behind.
func (s *Server) discardObject(r *http.Request, key string) {
	if err := s.store.Delete(r.Context(), key); err != nil {
		s.log.Error("discard object failed", "key", key, "err", err)
	}
}

// promptPrefix keeps the first 20 characters of the prompt in a form safe for
// storage keys.
func promptPrefix(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return storage.SanitizeFilename(string(runes))
}

func parseSize(size string) (int, int, error) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size format")
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width: %w", err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height: %w", err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("dimensions must be positive")
	}
	return width, height, nil
}

func formInt(r *http.Request, name string, fallback int) int {
	v := r.FormValue(name)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func formInt64(r *http.Request, name string, fallback int64) int64 {
	v := r.FormValue(name)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func formFloat(r *http.Request, name string, fallback float64) float64 {
	v := r.FormValue(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
