package constants

import "strings"

// Source formats a TextSource knows how to turn into documents.
const (
	TEXT   = "TEXT"   // raw OCR text dump
	VISION = "VISION" // document-AI AnnotateFileResponse JSON
	PDF    = "PDF"
	IMAGE  = "IMAGE"
)

// FileTypes holds the formats recorded on extract runs.
var FileTypes = []string{TEXT, VISION, PDF, IMAGE}

// AllowedExtensions holds the default extensions picked up by directory and bucket sources.
var AllowedExtensions = map[string]struct{}{
	"txt":  {},
	"json": {},
	"pdf":  {},
	"tif":  {},
	"tiff": {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the source format for an extension, or "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "txt":
		return TEXT
	case "json":
		return VISION
	case "pdf":
		return PDF
	case "tif", "tiff", "png", "jpg", "jpeg":
		return IMAGE
	default:
		return ""
	}
}

// NeedsOCR reports whether a format has to go through the OCR extractor first.
func NeedsOCR(format string) bool {
	return format == PDF || format == IMAGE
}
