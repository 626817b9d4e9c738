package settings

import "context"

// Settings is the effective generation settings object: the flattened output
// of the cascade (global defaults → product defaults → collection/session
// overrides → per-request overrides). The cascade itself is resolved by an
// external collaborator; this server only consumes the result.
type Settings struct {
	NumberOfVariants int    `json:"numberOfVariants,omitempty"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
	ImageQuality     string `json:"imageQuality,omitempty"` // standard | high | ultra
	Model            string `json:"model,omitempty"`

	// Legacy flat prompt fields, consumed by the flat-settings prompt builder.
	Scene            string `json:"scene,omitempty"`
	Style            string `json:"style,omitempty"`
	Lighting         string `json:"lighting,omitempty"`
	Surroundings     string `json:"surroundings,omitempty"`
	RoomType         string `json:"roomType,omitempty"`
	CameraAngle      string `json:"cameraAngle,omitempty"`
	ColorScheme      string `json:"colorScheme,omitempty"`
	Props            string `json:"props,omitempty"`
	VarietyLevel     string `json:"varietyLevel,omitempty"`
	IncludePeople    bool   `json:"includePeople,omitempty"`
	EmphasizeProduct bool   `json:"emphasizeProduct,omitempty"`
}

// Merger resolves the settings cascade for one request. Implemented by the
// dashboard backend, not by this server.
type Merger interface {
	Resolve(ctx context.Context, clientID, productID, sessionID string, overrides *Settings) (*Settings, error)
}

// Normalize fills the defaults the orchestrator relies on.
func (s *Settings) Normalize() {
	if s.NumberOfVariants < 1 {
		s.NumberOfVariants = 1
	}
	if s.AspectRatio == "" {
		s.AspectRatio = "1:1"
	}
	if s.ImageQuality == "" {
		s.ImageQuality = "standard"
	}
}

// WebPQuality maps the image quality tier to the lossy WebP encoder quality.
func (s *Settings) WebPQuality() float32 {
	switch s.ImageQuality {
	case "ultra":
		return 95
	case "high":
		return 90
	default:
		return 82
	}
}
