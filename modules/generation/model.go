package generation

import (
	"time"

	"scenergy-server/modules/prompt"
	"scenergy-server/modules/settings"
)

// Job status values. Terminal states never transition again.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ErrNoImages is the exact user-facing message when zero variants succeed.
const ErrNoImages = "Failed to generate any images"

// GenerationRequest is the immutable input captured at enqueue time.
type GenerationRequest struct {
	ClientID            string                   `json:"clientId"`
	ProductID           string                   `json:"productId,omitempty"`
	SessionID           string                   `json:"sessionId"`
	Prompt              string                   `json:"prompt,omitempty"`
	Settings            *settings.Settings       `json:"settings,omitempty"`
	ProductImageID      string                   `json:"productImageId,omitempty"`
	ProductImageIDs     []string                 `json:"productImageIds,omitempty"`
	InspirationImageID  string                   `json:"inspirationImageId,omitempty"`
	InspirationImageURL string                   `json:"inspirationImageUrl,omitempty"`
	IsClientSession     bool                     `json:"isClientSession,omitempty"`
	ModelOverrides      map[string]string        `json:"modelOverrides,omitempty"`
	ArtDirector         *prompt.ArtDirectorInput `json:"artDirector,omitempty"`
	Type                string                   `json:"type,omitempty"`
}

// Job is one generation request's lifecycle record.
//
// ImageIDs is pre-populated with N placeholder identifiers at enqueue time so
// callers can reference expected results early. At completion it is replaced by
// the subset that actually uploaded. Version backs optimistic concurrency:
// every persisted write bumps it and refuses to clobber a newer record.
type Job struct {
	ID          string            `json:"id"`
	Request     GenerationRequest `json:"request"`
	Status      string            `json:"status"`
	ImageIDs    []string          `json:"imageIds"`
	Progress    int               `json:"progress"`
	Error       *string           `json:"error"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Version     int               `json:"version"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError
}

// terminalAt is the reference time for retention decisions.
func (j *Job) terminalAt() time.Time {
	if j.CompletedAt != nil {
		return *j.CompletedAt
	}
	return j.UpdatedAt
}

// EnqueueResult is returned to the caller immediately, before any generation.
type EnqueueResult struct {
	JobID            string   `json:"jobId"`
	ExpectedImageIDs []string `json:"expectedImageIds"`
}
