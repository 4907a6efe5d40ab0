package constants

import "strings"

// VideoExtensions holds the video formats picked up from the input directory.
var VideoExtensions = map[string]struct{}{
	"mp4": {},
	"avi": {},
	"mov": {},
}

// ScreenshotExt is the extension of every extracted scene image.
const ScreenshotExt = "jpg"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsVideo reports whether ext (with or without dot) is a supported video format.
func IsVideo(ext string) bool {
	_, ok := VideoExtensions[NormalizeExt(ext)]
	return ok
}
