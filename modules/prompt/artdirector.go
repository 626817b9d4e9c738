package prompt

import (
	"log"
	"strings"
)

// SubjectAnalysis is the upstream vision analysis of the product photo. Only
// the hyphenated class name may leak into the prompt anchors; every other
// descriptive detail stays deferred to the reference image itself.
type SubjectAnalysis struct {
	SubjectClassHyphenated string `json:"subjectClassHyphenated"`
	NativeSceneCategory    string `json:"nativeSceneCategory"`
	InputCameraAngle       string `json:"inputCameraAngle"`
}

// ArtDirectorInput carries everything the sandwich composer consumes.
type ArtDirectorInput struct {
	SubjectAnalysis *SubjectAnalysis `json:"subjectAnalysis,omitempty"`
	MergedBubbles   []Bubble         `json:"mergedBubbles,omitempty"`
	UserPrompt      string           `json:"userPrompt,omitempty"`
	SceneType       string           `json:"sceneType,omitempty"`
}

// ArtDirectorResult is the composed prompt plus its individual segments, kept
// for debugging and for the enqueue response echo.
type ArtDirectorResult struct {
	FinalPrompt    string `json:"finalPrompt"`
	IntroAnchor    string `json:"introAnchor"`
	SceneNarrative string `json:"sceneNarrative"`
	UserAdditions  string `json:"userAdditions"`
	OutroAnchor    string `json:"outroAnchor"`
}

// BuildArtDirectorPrompt composes the four-segment sandwich prompt: a subject
// anchor, the scene narrative, the user's free-text additions, and a closing
// anchor restating product fidelity. Empty segments are dropped and the rest
// joined with blank lines.
func BuildArtDirectorPrompt(input ArtDirectorInput) ArtDirectorResult {
	if input.SubjectAnalysis == nil || strings.TrimSpace(input.SubjectAnalysis.SubjectClassHyphenated) == "" {
		log.Printf("⚠️ No subject analysis available, falling back to simple prompt")
		simple := BuildSimplePrompt(input.MergedBubbles, input.UserPrompt)
		return ArtDirectorResult{FinalPrompt: simple, SceneNarrative: simple}
	}

	class := strings.TrimSpace(input.SubjectAnalysis.SubjectClassHyphenated)
	env := environmentType(input.SubjectAnalysis.NativeSceneCategory)

	result := ArtDirectorResult{
		IntroAnchor:    introAnchor(class, env),
		SceneNarrative: sceneNarrative(input),
		UserAdditions:  strings.TrimSpace(input.UserPrompt),
		OutroAnchor:    outroAnchor(class),
	}

	segments := make([]string, 0, 4)
	for _, segment := range []string{result.IntroAnchor, result.SceneNarrative, result.UserAdditions, result.OutroAnchor} {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	result.FinalPrompt = strings.Join(segments, "\n\n")

	log.Printf("🎨 Art director prompt composed for %s (%d chars)", class, len(result.FinalPrompt))
	return result
}

// BuildSimplePrompt is the degraded path when no subject analysis exists: the
// quality framing, the bubble clauses, and the user's text, with no anchors.
func BuildSimplePrompt(bubbles []Bubble, userPrompt string) string {
	parts := []string{qualityFraming}
	parts = append(parts, bubbleClauses(firstByType(bubbles))...)
	if user := strings.TrimSpace(userPrompt); user != "" {
		parts = append(parts, ensureSentence(user))
	}
	return strings.Join(parts, " ")
}

const qualityFraming = "Professional product photography, photorealistic, high detail, natural shadows."

func introAnchor(class, env string) string {
	return "This is a professional product photograph of the exact " + class +
		" shown in the reference image, placed in a " + env + " environment. " +
		"Preserve the " + class + "'s shape, size, proportion, material, color, texture, and camera angle exactly as captured in the reference."
}

func outroAnchor(class string) string {
	return "Do not reinvent or restyle the " + class +
		": its shape, size, proportion, material, color, texture, and camera angle must remain exactly as in the reference image."
}

func sceneNarrative(input ArtDirectorInput) string {
	parts := []string{qualityFraming}

	angle := ""
	if input.SubjectAnalysis != nil {
		angle = input.SubjectAnalysis.InputCameraAngle
	}
	parts = append(parts, perspectiveSentence(angle))

	if scene := strings.TrimSpace(input.SceneType); scene != "" {
		parts = append(parts, "The setting is a "+scene+".")
	}

	parts = append(parts, bubbleClauses(firstByType(input.MergedBubbles))...)
	return strings.Join(parts, " ")
}

// environmentType maps the analyzed native scene category to the environment
// word used in the subject anchor.
func environmentType(category string) string {
	switch category {
	case "Indoor Room":
		return "interior"
	case "Outdoor Nature":
		return "exterior"
	case "Urban/Street":
		return "exterior"
	case "Studio":
		return "studio"
	default:
		return "interior"
	}
}

func perspectiveSentence(angle string) string {
	switch angle {
	case "Frontal":
		return "The scene is composed from a frontal viewpoint, keeping the subject squarely facing the camera."
	case "Angled":
		return "The scene is composed from a three-quarter angled perspective on the subject."
	case "Top-Down":
		return "The scene is composed directly from above, in a top-down perspective."
	case "Low Angle":
		return "The scene is composed from a low camera angle, looking slightly upward at the subject."
	default:
		return "The scene keeps a balanced perspective on the subject."
	}
}
