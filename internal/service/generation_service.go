package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nimbusworks/artforge/internal/config"
	"github.com/nimbusworks/artforge/internal/ledger"
	"github.com/nimbusworks/artforge/internal/models"
	"github.com/nimbusworks/artforge/pkg/genapi"
)

var (
	ErrPromptRequired   = errors.New("prompt cannot be empty")
	ErrActionInProgress = errors.New("action already in progress")
	ErrEmptyResult      = errors.New("generation reported success but returned no results")
)

// Action identifies one generation control on the page.
type Action string

const (
	ActionGenerateImages Action = "generate-images"
	ActionEditImage      Action = "edit-image"
	ActionGenerateVideo  Action = "generate-video"
)

// FlowState is the per-action request lifecycle.
type FlowState string

const (
	StateIdle            FlowState = "idle"
	StateCheckingCredits FlowState = "checking-credits"
	StateInFlight        FlowState = "in-flight"
	StateSuccess         FlowState = "success"
	StateFailure         FlowState = "failure"
)

// GenerationAPI is the slice of the typed HTTP client the flow needs.
type GenerationAPI interface {
	GenerateImages(ctx context.Context, req genapi.ImageGenerationRequest) (*genapi.ImageGenerationResponse, error)
	EditImage(ctx context.Context, req genapi.ImageEditRequest) (*genapi.ImageEditResponse, error)
	GenerateVideo(ctx context.Context, req genapi.VideoGenerationRequest) (*genapi.VideoGenerationResponse, error)
	ResultURL(path string) string
}

// ImageOutcome is the display state produced by a successful image action.
type ImageOutcome struct {
	URLs   []string
	Seeds  []int64
	Billed int
}

// VideoOutcome is the display state produced by a successful video action.
type VideoOutcome struct {
	URL             string
	VideoSeed       int64
	SourceImageSeed int64
	Billed          int
}

// GenerationService orchestrates one generation action end to end: credit
// pre-check, the API call, billing by what actually came back, and the
// history record.
type GenerationService struct {
	cfg         config.Config
	log         *slog.Logger
	api         GenerationAPI
	credits     *ledger.CreditLedger
	generations *ledger.GenerationLedger

	mu    sync.Mutex
	busy  map[Action]bool
	state map[Action]FlowState
}

func NewGenerationService(cfg config.Config, log *slog.Logger, api GenerationAPI, credits *ledger.CreditLedger, generations *ledger.GenerationLedger) *GenerationService {
	return &GenerationService{
		cfg:         cfg,
		log:         log,
		api:         api,
		credits:     credits,
		generations: generations,
		busy:        make(map[Action]bool),
		state:       make(map[Action]FlowState),
	}
}

// State reports the lifecycle state of the action.
func (s *GenerationService) State(action Action) FlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state[action]; ok {
		return st
	}
	return StateIdle
}

// GenerateImages runs the text-to-image flow. The pre-check estimates
// requested count x unit cost; the actual charge is returned count x unit
// cost.
func (s *GenerationService) GenerateImages(ctx context.Context, req genapi.ImageGenerationRequest) (*ImageOutcome, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrPromptRequired
	}
	n := req.N
	if n <= 0 {
		n = 1
	}

	if err := s.begin(ActionGenerateImages); err != nil {
		return nil, err
	}
	success := false
	defer s.end(ActionGenerateImages, &success)

	profile := s.credits.Profile()
	estimate := n * s.cfg.ImageCreditCost
	if profile == nil || profile.Credits < estimate {
		return nil, ledger.ErrInsufficientCredits
	}
	req.UserID = profile.ID

	s.setState(ActionGenerateImages, StateInFlight)
	resp, err := s.api.GenerateImages(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, ErrEmptyResult
	}

	billed := len(resp.GeneratedImages) * s.cfg.ImageCreditCost
	if err := s.credits.Decrement(ctx, billed); err != nil {
		return nil, fmt.Errorf("charge credits: %w", err)
	}

	outcome := &ImageOutcome{Billed: billed}
	for _, img := range resp.GeneratedImages {
		outcome.URLs = append(outcome.URLs, s.api.ResultURL(img.Path))
		outcome.Seeds = append(outcome.Seeds, img.Seed)
	}

	s.record(ctx, models.GenerationRecord{
		OwnerID:    profile.ID,
		Kind:       models.KindImage,
		Prompt:     req.Prompt,
		ResultPath: resp.GeneratedImages[0].Path,
		ResultURL:  outcome.URLs[0],
		Credits:    billed,
		Params: map[string]any{
			"n":         n,
			"size":      req.Size,
			"engine_id": req.EngineID,
			"steps":     req.Steps,
			"cfg_scale": req.CfgScale,
			"seed":      req.Seed,
		},
		Status: models.GenerationCompleted,
	})

	success = true
	return outcome, nil
}

// EditImage runs the image-to-image flow. The pre-check uses the fixed edit
// cost; the actual charge scales by the number of returned images.
func (s *GenerationService) EditImage(ctx context.Context, req genapi.ImageEditRequest) (*ImageOutcome, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrPromptRequired
	}

	if err := s.begin(ActionEditImage); err != nil {
		return nil, err
	}
	success := false
	defer s.end(ActionEditImage, &success)

	profile := s.credits.Profile()
	if profile == nil || profile.Credits < s.cfg.EditCreditCost {
		return nil, ledger.ErrInsufficientCredits
	}
	req.UserID = profile.ID

	s.setState(ActionEditImage, StateInFlight)
	resp, err := s.api.EditImage(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.EditedImages) == 0 {
		return nil, ErrEmptyResult
	}

	billed := len(resp.EditedImages) * s.cfg.EditCreditCost
	if err := s.credits.Decrement(ctx, billed); err != nil {
		return nil, fmt.Errorf("charge credits: %w", err)
	}

	outcome := &ImageOutcome{Billed: billed}
	for _, img := range resp.EditedImages {
		outcome.URLs = append(outcome.URLs, s.api.ResultURL(img.Path))
		outcome.Seeds = append(outcome.Seeds, img.Seed)
	}

	s.record(ctx, models.GenerationRecord{
		OwnerID:    profile.ID,
		Kind:       models.KindImage,
		Prompt:     req.Prompt,
		SourcePath: resp.OriginalImagePath,
		ResultPath: resp.EditedImages[0].Path,
		ResultURL:  outcome.URLs[0],
		Credits:    billed,
		Params: map[string]any{
			"engine_id":      req.EngineID,
			"steps":          req.Steps,
			"cfg_scale":      req.CfgScale,
			"seed":           req.Seed,
			"image_strength": req.ImageStrength,
		},
		Status: models.GenerationCompleted,
	})

	success = true
	return outcome, nil
}

// GenerateVideo runs the video flow at a fixed cost.
func (s *GenerationService) GenerateVideo(ctx context.Context, req genapi.VideoGenerationRequest) (*VideoOutcome, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrPromptRequired
	}

	if err := s.begin(ActionGenerateVideo); err != nil {
		return nil, err
	}
	success := false
	defer s.end(ActionGenerateVideo, &success)

	profile := s.credits.Profile()
	if profile == nil || profile.Credits < s.cfg.VideoCreditCost {
		return nil, ledger.ErrInsufficientCredits
	}
	req.UserID = profile.ID

	s.setState(ActionGenerateVideo, StateInFlight)
	resp, err := s.api.GenerateVideo(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.GeneratedVideo == nil || resp.GeneratedVideo.VideoPath == "" {
		return nil, ErrEmptyResult
	}

	billed := s.cfg.VideoCreditCost
	if err := s.credits.Decrement(ctx, billed); err != nil {
		return nil, fmt.Errorf("charge credits: %w", err)
	}

	outcome := &VideoOutcome{
		URL:             s.api.ResultURL(resp.GeneratedVideo.VideoPath),
		VideoSeed:       resp.GeneratedVideo.VideoSeed,
		SourceImageSeed: resp.GeneratedVideo.SourceImageSeed,
		Billed:          billed,
	}

	s.record(ctx, models.GenerationRecord{
		OwnerID:    profile.ID,
		Kind:       models.KindVideo,
		Prompt:     req.Prompt,
		ResultPath: resp.GeneratedVideo.VideoPath,
		ResultURL:  outcome.URL,
		Credits:    billed,
		Params: map[string]any{
			"aspect_ratio":     req.AspectRatio,
			"quality":          req.Quality,
			"motion_intensity": req.MotionIntensity,
			"seed":             req.Seed,
		},
		Status: models.GenerationCompleted,
	})

	success = true
	return outcome, nil
}

// record appends the history entry. A failed record write does not reverse
// the charge; the generation ledger keeps the error.
func (s *GenerationService) record(ctx context.Context, rec models.GenerationRecord) {
	if err := s.generations.Add(ctx, &rec); err != nil {
		s.log.Error("failed to record generation", "owner", rec.OwnerID, "err", err)
	}
}

func (s *GenerationService) begin(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[action] {
		return ErrActionInProgress
	}
	s.busy[action] = true
	s.state[action] = StateCheckingCredits
	return nil
}

func (s *GenerationService) setState(action Action, state FlowState) {
	s.mu.Lock()
	s.state[action] = state
	s.mu.Unlock()
}

func (s *GenerationService) end(action Action, success *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy[action] = false
	if *success {
		s.state[action] = StateSuccess
	} else {
		s.state[action] = StateFailure
	}
}
