package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nimbusworks/artforge/internal/stability"
	"github.com/nimbusworks/artforge/internal/storage"
	"github.com/nimbusworks/artforge/pkg/genapi"
)

const videosPathPrefix = "/ai-video-generation/videos/"

// aspectRatioSizes maps the requested ratio to the initial image dimensions.
var aspectRatioSizes = map[string][2]int{
	"16:9": {1024, 576},
	"1:1":  {768, 768},
	"9:16": {576, 1024},
}

// motionBuckets maps motion intensity to the upstream motion_bucket_id.
var motionBuckets = map[string]int{
	"Low":    30,
	"Medium": 80,
	"High":   120,
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req genapi.VideoGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body")
		return
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" || utf8.RuneCountInString(req.Prompt) > maxPromptLength {
		writeValidationErrors(w, []genapi.ValidationDetail{
			fieldError("prompt", "prompt must be between 1 and 2000 characters", "value_error"),
		})
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}
	if req.Quality == "" {
		req.Quality = "Standard"
	}
	if req.MotionIntensity == "" {
		req.MotionIntensity = "Medium"
	}

	size, ok := aspectRatioSizes[req.AspectRatio]
	if !ok {
		size = aspectRatioSizes["16:9"]
	}
	steps := 30
	if req.Quality == "High" {
		steps = 50
	}
	motionBucket, ok := motionBuckets[req.MotionIntensity]
	if !ok {
		motionBucket = motionBuckets["Medium"]
	}

	s.log.Info("video generation requested", "owner", req.UserID, "aspect_ratio", req.AspectRatio, "quality", req.Quality, "motion", req.MotionIntensity)

	// Step 1: generate the source frame.
	artifacts, err := s.generator.TextToImage(r.Context(), stability.TextToImageOptions{
		EngineID: s.cfg.DefaultEngineID,
		Prompt:   req.Prompt,
		Width:    size[0],
		Height:   size[1],
		Samples:  1,
		Steps:    steps,
		CfgScale: 7.0,
		Seed:     req.Seed,
	})
	if err != nil {
		s.log.Error("initial image generation failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error generating initial image: %v", err))
		return
	}

	var sourceImage []byte
	var sourceImageSeed int64
	for _, artifact := range artifacts {
		if artifact.Filtered {
			writeDetail(w, http.StatusBadRequest, "Initial image generation failed content filtering.")
			return
		}
		if len(artifact.Bytes) > 0 {
			sourceImage = artifact.Bytes
			sourceImageSeed = artifact.Seed
			break
		}
	}
	if sourceImage == nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to generate initial image for video creation.")
		return
	}

	// Step 2: animate it.
	video, err := s.generator.ImageToVideo(r.Context(), stability.ImageToVideoOptions{
		Image:          sourceImage,
		Seed:           sourceImageSeed,
		CfgScale:       7.0,
		MotionBucketID: motionBucket,
	})
	if err != nil {
		s.log.Error("image-to-video failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error generating video: %v", err))
		return
	}
	if video == nil || video.Filtered || len(video.Bytes) == 0 {
		writeDetail(w, http.StatusInternalServerError, "Failed to generate video from the initial image.")
		return
	}

	filename := fmt.Sprintf("video_%s.mp4", strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	key := s.store.ObjectKey("video", req.UserID, filename)
	if _, err := s.store.Put(r.Context(), key, video.Bytes, "video/mp4"); err != nil {
		s.log.Error("store video failed", "key", key, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not store generated video.")
		return
	}

	writeJSON(w, http.StatusOK, genapi.VideoGenerationResponse{
		Message: "Video generated successfully.",
		GeneratedVideo: &genapi.GeneratedVideo{
			VideoPath:       videosPathPrefix + key,
			VideoSeed:       video.Seed,
			SourceImageSeed: sourceImageSeed,
		},
	})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeDetail(w, http.StatusNotFound, "Video not found")
		return
	}

	body, contentType, err := s.store.GetStream(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "Video not found")
			return
		}
		s.log.Error("get video failed", "key", key, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not retrieve video file.")
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.log.Error("stream video failed", "key", key, "err", err)
	}
}
