package constants

import "strings"

const (
	// CaptureDirName is the dedicated scratch directory name under the cache root.
	CaptureDirName = "captured-images"
	// ScratchPrefix and ScratchExt frame the uuid in scratch file names.
	ScratchPrefix = "capture-"
	ScratchExt    = ".jpg"

	// DefaultChooserTitle is shown when neither the session nor the request sets one.
	DefaultChooserTitle = "Select Image Source"
)

// AllowedExtensions holds the image extensions the default providers can decode.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
}

// ConvertibleExtensions need an external converter before they can be decoded.
var ConvertibleExtensions = map[string]struct{}{
	"heic": {},
	"heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
