package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"scenergy-server/modules/settings"
)

func TestBuildLegacyPrompt(t *testing.T) {
	s := &settings.Settings{
		Scene:            "cozy breakfast nook",
		Style:            "Rustic",
		Lighting:         "Morning sun",
		RoomType:         "kitchen",
		ColorScheme:      "Pastel",
		EmphasizeProduct: true,
		ImageQuality:     "high",
	}

	out := BuildLegacyPrompt(s, "with fresh flowers")

	assert.Contains(t, out, "Professional product photography.")
	assert.Contains(t, out, "Scene: cozy breakfast nook.")
	assert.Contains(t, out, "Rustic style.")
	assert.Contains(t, out, "Morning sun lighting.")
	assert.Contains(t, out, "Set in a kitchen.")
	assert.Contains(t, out, "Pastel color scheme.")
	assert.Contains(t, out, "focal point")
	assert.Contains(t, out, "Ultra high resolution output.")
	assert.Contains(t, out, "with fresh flowers.")
}

func TestBuildLegacyPromptSkipsEmptyFields(t *testing.T) {
	out := BuildLegacyPrompt(&settings.Settings{}, "")
	assert.Equal(t, "Professional product photography.", out)
}

func TestBuildLegacyPromptIncludePeople(t *testing.T) {
	out := BuildLegacyPrompt(&settings.Settings{IncludePeople: true}, "")
	assert.Contains(t, out, "people interacting naturally")
}
