// Package objectstore is the boundary to payment slip storage. The core only
// keeps the reference string it gets back; the bytes live elsewhere.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Store uploads slip images and resolves their public references.
type Store interface {
	Upload(ctx context.Context, data []byte, path string) (url string, err error)
	PublicURL(path string) string
}

const maxDefaultSlipBytes = 5 << 20

// ValidateSlip rejects uploads that are empty, oversized, or not an image.
// Content sniffing uses the standard signature table; jpeg and png cover what
// banking apps export.
func ValidateSlip(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return fmt.Errorf("payment slip is empty")
	}
	if maxBytes <= 0 {
		maxBytes = maxDefaultSlipBytes
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("payment slip exceeds %d bytes", maxBytes)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/jpeg") && !strings.HasPrefix(contentType, "image/png") {
		return fmt.Errorf("payment slip must be a jpeg or png image, got %s", contentType)
	}
	return nil
}

// SlipExtension returns the file extension matching the sniffed image type.
// Call after ValidateSlip.
func SlipExtension(data []byte) string {
	if strings.HasPrefix(http.DetectContentType(data), "image/png") {
		return ".png"
	}
	return ".jpg"
}
