// ABOUTME: Content type detection for downloaded image bytes
// ABOUTME: Falls back to image/jpeg when the payload is not a recognizable image

package storage

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultImageType is assumed when sniffing finds no image signature.
const DefaultImageType = "image/jpeg"

// DetectImageType sniffs the MIME type of data. Non-image payloads report
// DefaultImageType so uploads are always tagged as images.
func DetectImageType(data []byte) string {
	mt := mimetype.Detect(data)
	if mt == nil || !strings.HasPrefix(mt.String(), "image/") {
		return DefaultImageType
	}
	return mt.String()
}
