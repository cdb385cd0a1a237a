package fingerprint

import (
	"fmt"
	"math/bits"
	"path"
	"strconv"
	"strings"
)

// Bits is the width of a fingerprint.
const Bits = 64

// Fingerprint is a 64-bit perceptual hash.
type Fingerprint uint64

// String renders the fingerprint as 16 lowercase hex characters.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Parse is the inverse of Fingerprint.String.
func Parse(value string) (Fingerprint, error) {
	value = strings.TrimSpace(value)
	if len(value) != 16 {
		return 0, fmt.Errorf("fingerprint %q: want 16 hex characters", value)
	}
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("fingerprint %q: %w", value, err)
	}
	return Fingerprint(v), nil
}

// Distance returns the Hamming distance between a and b, in [0, 64].
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// MediaKind classifies a file for fingerprinting.
type MediaKind string

const (
	KindImage       MediaKind = "image"
	KindVideo       MediaKind = "video"
	KindUnsupported MediaKind = "unsupported"
)

var imageExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

var videoExtensions = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"flv":  "video/x-flv",
}

func extension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}

// KindForFilename classifies filename by extension.
func KindForFilename(filename string) MediaKind {
	ext := extension(filename)
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo
	}
	return KindUnsupported
}

// Supported reports whether filename has an image or video extension.
func Supported(filename string) bool {
	return KindForFilename(filename) != KindUnsupported
}

// MIMEType returns the MIME type implied by filename's extension, or
// application/octet-stream.
func MIMEType(filename string) string {
	ext := extension(filename)
	if mime, ok := imageExtensions[ext]; ok {
		return mime
	}
	if mime, ok := videoExtensions[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
