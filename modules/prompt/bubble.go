package prompt

import "strings"

// BubbleType tags one scene/style preference contributed by the art director UI.
type BubbleType string

const (
	BubbleStyle            BubbleType = "style"
	BubbleLighting         BubbleType = "lighting"
	BubbleMood             BubbleType = "mood"
	BubbleHumanInteraction BubbleType = "human-interaction"
	BubbleProps            BubbleType = "props"
	BubbleBackground       BubbleType = "background"
	BubbleCameraAngle      BubbleType = "camera-angle"
	BubbleColorPalette     BubbleType = "color-palette"
	BubbleReference        BubbleType = "reference"
	BubbleCustom           BubbleType = "custom"
)

// Bubble is a typed tag/value pair. Custom free text wins over a preset label.
type Bubble struct {
	Type   BubbleType `json:"type"`
	Preset string     `json:"preset,omitempty"`
	Custom string     `json:"custom,omitempty"`
}

// Value returns the bubble's effective text.
func (b Bubble) Value() string {
	if custom := strings.TrimSpace(b.Custom); custom != "" {
		return custom
	}
	return strings.TrimSpace(b.Preset)
}

// firstByType builds a map keyed by bubble type in a single pass, keeping the
// first bubble of each type. Emission order is decided by the caller, so this
// stays deterministic regardless of the incoming bubble order.
func firstByType(bubbles []Bubble) map[BubbleType]Bubble {
	byType := make(map[BubbleType]Bubble, len(bubbles))
	for _, b := range bubbles {
		if b.Value() == "" {
			continue
		}
		if _, seen := byType[b.Type]; !seen {
			byType[b.Type] = b
		}
	}
	return byType
}

// bubbleClauses renders the bubble map as prompt clauses in the fixed order:
// style, lighting, mood, human-interaction, props, background, then the
// remainder types the named extractors never consume.
func bubbleClauses(byType map[BubbleType]Bubble) []string {
	var clauses []string

	appendClause := func(t BubbleType, render func(string) string) {
		if b, ok := byType[t]; ok {
			clauses = append(clauses, render(b.Value()))
		}
	}

	appendClause(BubbleStyle, func(v string) string { return v + " style." })
	appendClause(BubbleLighting, func(v string) string { return v + " lighting." })
	appendClause(BubbleMood, func(v string) string { return v + " mood." })
	appendClause(BubbleHumanInteraction, func(v string) string { return ensureSentence(v) })
	appendClause(BubbleProps, func(v string) string { return "Styled with " + v + "." })
	appendClause(BubbleBackground, func(v string) string { return "Set against " + v + "." })

	// catch-all for the types no dedicated extractor consumes
	appendClause(BubbleCameraAngle, func(v string) string { return "Camera angle: " + v + "." })
	appendClause(BubbleColorPalette, func(v string) string { return "Color palette: " + v + "." })
	appendClause(BubbleReference, func(v string) string { return "Inspired by " + v + "." })
	appendClause(BubbleCustom, func(v string) string { return ensureSentence(v) })

	return clauses
}

func ensureSentence(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.HasSuffix(v, ".") || strings.HasSuffix(v, "!") || strings.HasSuffix(v, "?") {
		return v
	}
	return v + "."
}
