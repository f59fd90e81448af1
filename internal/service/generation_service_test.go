package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusworks/artforge/internal/config"
	"github.com/nimbusworks/artforge/internal/ledger"
	"github.com/nimbusworks/artforge/internal/models"
	"github.com/nimbusworks/artforge/pkg/genapi"
)

type userStoreStub struct {
	mu      sync.Mutex
	profile *models.UserProfile
}

func (s *userStoreStub) Find(_ context.Context, ownerID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil || s.profile.ID != ownerID {
		return nil, nil
	}
	copied := *s.profile
	return &copied, nil
}

func (s *userStoreStub) Create(_ context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *profile
	copied.CreatedAt = time.Now().UTC()
	copied.UpdatedAt = copied.CreatedAt
	s.profile = &copied
	return nil
}

func (s *userStoreStub) Update(context.Context, string, models.ProfileUpdate) error { return nil }

func (s *userStoreStub) DecrementCredits(_ context.Context, ownerID string, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil || s.profile.ID != ownerID || s.profile.Credits < amount {
		return false, nil
	}
	s.profile.Credits -= amount
	return true, nil
}

type generationStoreStub struct {
	mu         sync.Mutex
	nextID     int64
	records    []models.GenerationRecord
	failInsert error
}

func (s *generationStoreStub) Insert(_ context.Context, rec *models.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	s.nextID++
	rec.ID = s.nextID
	stored := *rec
	stored.CreatedAt = time.Now().UTC()
	s.records = append(s.records, stored)
	return nil
}

func (s *generationStoreStub) ListByOwner(_ context.Context, ownerID string) ([]models.GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GenerationRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type apiStub struct {
	mu            sync.Mutex
	generateCalls int
	editCalls     int
	videoCalls    int
	imageResponse *genapi.ImageGenerationResponse
	editResponse  *genapi.ImageEditResponse
	videoResponse *genapi.VideoGenerationResponse
	callErr       error
}

func (a *apiStub) GenerateImages(context.Context, genapi.ImageGenerationRequest) (*genapi.ImageGenerationResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generateCalls++
	return a.imageResponse, a.callErr
}

func (a *apiStub) EditImage(context.Context, genapi.ImageEditRequest) (*genapi.ImageEditResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.editCalls++
	return a.editResponse, a.callErr
}

func (a *apiStub) GenerateVideo(context.Context, genapi.VideoGenerationRequest) (*genapi.VideoGenerationResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.videoCalls++
	return a.videoResponse, a.callErr
}

func (a *apiStub) ResultURL(path string) string {
	return "https://api.example.com/routes" + path
}

func testConfig() config.Config {
	return config.Config{
		ImageCreditCost: 1,
		EditCreditCost:  1,
		VideoCreditCost: 10,
		StartingCredits: 10,
	}
}

func newFlow(t *testing.T, api *apiStub, credits int) (*GenerationService, *ledger.CreditLedger, *ledger.GenerationLedger, *userStoreStub) {
	t.Helper()
	users := &userStoreStub{profile: &models.UserProfile{
		ID:      "user-1",
		Email:   "user@example.com",
		Credits: credits,
		Tier:    models.TierFree,
	}}
	creditLedger := ledger.NewCreditLedger(users, nil, 10)
	_, err := creditLedger.Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	generationLedger := ledger.NewGenerationLedger(&generationStoreStub{}, nil)
	flow := NewGenerationService(testConfig(), discardLogger(), api, creditLedger, generationLedger)
	return flow, creditLedger, generationLedger, users
}

// Scenario: 3 credits, batch of 4 images at cost 1 each. Rejected before any
// network call.
func TestGenerateImagesRejectsBeforeNetworkWhenInsufficient(t *testing.T) {
	api := &apiStub{}
	flow, credits, _, _ := newFlow(t, api, 3)

	_, err := flow.GenerateImages(context.Background(), genapi.ImageGenerationRequest{
		Prompt: "four variations",
		N:      4,
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	assert.Equal(t, 0, api.generateCalls)
	assert.Equal(t, 3, credits.Credits())
	assert.Equal(t, StateFailure, flow.State(ActionGenerateImages))
}

// Scenario: 5 credits, one image requested, two returned with ok status. The
// charge follows what came back: 5 - 2 = 3, and the record bills 2.
func TestGenerateImagesBillsByReturnedCount(t *testing.T) {
	api := &apiStub{imageResponse: &genapi.ImageGenerationResponse{
		Message: "2 image(s) generated successfully.",
		GeneratedImages: []genapi.GeneratedImage{
			{Path: "/ai-image-generation/images/a.png", Seed: 11},
			{Path: "/ai-image-generation/images/b.png", Seed: 22},
		},
	}}
	flow, credits, generations, users := newFlow(t, api, 5)

	outcome, err := flow.GenerateImages(context.Background(), genapi.ImageGenerationRequest{
		Prompt: "a lighthouse",
		N:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Billed)
	assert.Equal(t, 3, credits.Credits())
	assert.Equal(t, 3, users.profile.Credits)
	require.Len(t, outcome.URLs, 2)
	assert.Equal(t, "https://api.example.com/routes/ai-image-generation/images/a.png", outcome.URLs[0])

	records := generations.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Credits)
	assert.Equal(t, models.KindImage, records[0].Kind)
	assert.Equal(t, models.GenerationCompleted, records[0].Status)
	assert.Equal(t, StateSuccess, flow.State(ActionGenerateImages))
}

// Scenario: edit reports ok status with an empty result list. Treated as a
// failure: no charge, no record.
func TestEditImageEmptyResultIsFailure(t *testing.T) {
	api := &apiStub{editResponse: &genapi.ImageEditResponse{
		Message:      "0 image(s) edited successfully.",
		EditedImages: nil,
	}}
	flow, credits, generations, _ := newFlow(t, api, 5)

	_, err := flow.EditImage(context.Background(), genapi.ImageEditRequest{
		Prompt: "make it snow",
		Image:  []byte{0x89, 0x50},
	})
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, 1, api.editCalls)
	assert.Equal(t, 5, credits.Credits())
	assert.Empty(t, generations.Records())
	assert.Equal(t, StateFailure, flow.State(ActionEditImage))
}

// Scenario: empty video prompt. Rejected client-side before any network call.
func TestGenerateVideoEmptyPromptRejected(t *testing.T) {
	api := &apiStub{}
	flow, credits, _, _ := newFlow(t, api, 50)

	_, err := flow.GenerateVideo(context.Background(), genapi.VideoGenerationRequest{Prompt: "   "})
	assert.ErrorIs(t, err, ErrPromptRequired)
	assert.Equal(t, 0, api.videoCalls)
	assert.Equal(t, 50, credits.Credits())
}

func TestGenerateVideoFixedCost(t *testing.T) {
	api := &apiStub{videoResponse: &genapi.VideoGenerationResponse{
		Message: "Video generated successfully.",
		GeneratedVideo: &genapi.GeneratedVideo{
			VideoPath:       "/ai-video-generation/videos/v.mp4",
			VideoSeed:       7,
			SourceImageSeed: 3,
		},
	}}
	flow, credits, generations, _ := newFlow(t, api, 15)

	outcome, err := flow.GenerateVideo(context.Background(), genapi.VideoGenerationRequest{Prompt: "waves"})
	require.NoError(t, err)
	assert.Equal(t, 10, outcome.Billed)
	assert.Equal(t, 5, credits.Credits())
	assert.Equal(t, "https://api.example.com/routes/ai-video-generation/videos/v.mp4", outcome.URL)
	assert.Equal(t, int64(7), outcome.VideoSeed)
	assert.Equal(t, int64(3), outcome.SourceImageSeed)

	records := generations.Records()
	require.Len(t, records, 1)
	assert.Equal(t, models.KindVideo, records[0].Kind)
	assert.Equal(t, 10, records[0].Credits)
}

func TestGenerateVideoInsufficientRejectedBeforeNetwork(t *testing.T) {
	api := &apiStub{}
	flow, _, _, _ := newFlow(t, api, 9)

	_, err := flow.GenerateVideo(context.Background(), genapi.VideoGenerationRequest{Prompt: "waves"})
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	assert.Equal(t, 0, api.videoCalls)
}

// A failed history write does not reverse the charge: the action still
// succeeds, the balance stays decremented, and the generation ledger keeps
// the error.
func TestGenerateImagesChargeSurvivesRecordWriteFailure(t *testing.T) {
	api := &apiStub{imageResponse: &genapi.ImageGenerationResponse{
		Message:         "1 image(s) generated successfully.",
		GeneratedImages: []genapi.GeneratedImage{{Path: "/ai-image-generation/images/a.png", Seed: 11}},
	}}
	users := &userStoreStub{profile: &models.UserProfile{ID: "user-1", Credits: 5, Tier: models.TierFree}}
	creditLedger := ledger.NewCreditLedger(users, nil, 10)
	_, err := creditLedger.Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	generationStore := &generationStoreStub{failInsert: errors.New("write denied")}
	generationLedger := ledger.NewGenerationLedger(generationStore, nil)
	flow := NewGenerationService(testConfig(), discardLogger(), api, creditLedger, generationLedger)

	outcome, err := flow.GenerateImages(context.Background(), genapi.ImageGenerationRequest{Prompt: "a fox"})
	require.NoError(t, err, "the generation itself succeeded")
	assert.Equal(t, 1, outcome.Billed)
	assert.Equal(t, 4, creditLedger.Credits())
	assert.Equal(t, 4, users.profile.Credits, "charge is persisted despite the failed record")
	assert.Empty(t, generationLedger.Records())
	assert.Error(t, generationLedger.Err())
	assert.Equal(t, StateSuccess, flow.State(ActionGenerateImages))
}

func TestGenerateImagesSurfacesAPIError(t *testing.T) {
	api := &apiStub{callErr: errors.New("engine overloaded")}
	flow, credits, generations, _ := newFlow(t, api, 5)

	_, err := flow.GenerateImages(context.Background(), genapi.ImageGenerationRequest{Prompt: "a fox"})
	require.Error(t, err)
	assert.Equal(t, 5, credits.Credits(), "no charge on failure")
	assert.Empty(t, generations.Records())
	assert.Equal(t, StateFailure, flow.State(ActionGenerateImages))
}
