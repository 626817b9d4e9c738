package storage

import "strings"

// extensionMIMETypes maps file extensions to the MIME type sent to the model.
var extensionMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".avif": "image/avif",
}

// CorrectMIMEType fixes a missing or placeholder content type by sniffing the
// filename extension. Supabase hands back application/octet-stream (and the
// occasional application/xml error shell) for files uploaded without a type.
func CorrectMIMEType(path, declared string) string {
	declared = strings.TrimSpace(strings.ToLower(strings.Split(declared, ";")[0]))

	if declared != "" && declared != "application/octet-stream" && declared != "application/xml" {
		return declared
	}

	lower := strings.ToLower(path)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	for ext, mime := range extensionMIMETypes {
		if strings.HasSuffix(lower, ext) {
			return mime
		}
	}

	// unknown extension - PNG is what the generation pipeline produces
	return "image/png"
}
