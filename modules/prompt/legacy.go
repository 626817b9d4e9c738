package prompt

import (
	"strings"

	"scenergy-server/modules/settings"
)

// BuildLegacyPrompt renders flat generation settings into a single prompt
// string. Kept for clients that predate the bubble-based art director flow.
func BuildLegacyPrompt(s *settings.Settings, userPrompt string) string {
	parts := []string{"Professional product photography."}

	appendField := func(value, template string) {
		if v := strings.TrimSpace(value); v != "" {
			parts = append(parts, strings.Replace(template, "%s", v, 1))
		}
	}

	appendField(s.Scene, "Scene: %s.")
	appendField(s.Style, "%s style.")
	appendField(s.Lighting, "%s lighting.")
	appendField(s.Surroundings, "Surrounded by %s.")
	appendField(s.RoomType, "Set in a %s.")
	appendField(s.CameraAngle, "%s camera angle.")
	appendField(s.ColorScheme, "%s color scheme.")
	appendField(s.Props, "Styled with %s.")
	appendField(s.VarietyLevel, "Variety level: %s.")

	if s.IncludePeople {
		parts = append(parts, "Include people interacting naturally with the product.")
	}
	if s.EmphasizeProduct {
		parts = append(parts, "Keep the product as the clear focal point of the composition.")
	}
	if s.ImageQuality == "high" || s.ImageQuality == "ultra" {
		parts = append(parts, "Ultra high resolution output.")
	}

	if user := strings.TrimSpace(userPrompt); user != "" {
		parts = append(parts, ensureSentence(user))
	}

	return strings.Join(parts, " ")
}
