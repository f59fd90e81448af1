package models

import "time"

type ContentKind string

const (
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindVoice ContentKind = "voice"
	KindText  ContentKind = "text"
)

type SubscriptionTier string

const (
	TierFree           SubscriptionTier = "free"
	TierPremiumMonthly SubscriptionTier = "premium-monthly"
	TierPremiumAnnual  SubscriptionTier = "premium-annual"
)

type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// UserProfile is keyed by the external auth identity of its owner.
type UserProfile struct {
	ID                string
	Email             string
	DisplayName       string
	Credits           int
	Tier              SubscriptionTier
	BillingCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProfileUpdate carries the optional fields of a partial profile write.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Email             *string
	DisplayName       *string
	Tier              *SubscriptionTier
	BillingCustomerID *string
}

// GenerationRecord logs one content-generation action and where its result
// lives. Records are append-only: there is no update or delete path.
type GenerationRecord struct {
	ID         int64
	OwnerID    string
	Kind       ContentKind
	Prompt     string
	SourcePath string
	ResultPath string
	ResultURL  string
	Credits    int
	Params     map[string]any
	Status     GenerationStatus
	CreatedAt  time.Time
}

type PaymentRecord struct {
	ID             int64
	OwnerID        string
	Provider       string
	ProviderCharge string
	Amount         int
	Currency       string
	Credits        int
	Subscription   SubscriptionTier
	Status         PaymentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
