package task

import "strings"

// MaxImageBytes is the upload size ceiling (5 MiB).
const MaxImageBytes = 5 * 1024 * 1024

// ValidateImage checks the declared content type and size of a file before
// any upload is attempted. It is pure and performs no I/O.
func ValidateImage(contentType string, size int64) error {
	if !strings.HasPrefix(contentType, "image/") {
		return &ValidationError{Reason: "file must be an image"}
	}
	if size > MaxImageBytes {
		return &ValidationError{Reason: "image too large (max 5MB)"}
	}
	return nil
}
