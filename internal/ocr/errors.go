package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDirectoryNotFound reports a missing or non-directory path passed to
// ProcessDirectory.
var ErrDirectoryNotFound = errors.New("directory not found")

// UnsupportedFormatError reports a file extension outside the configured
// allow-list.
type UnsupportedFormatError struct {
	Extension string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q, supported: %s", e.Extension, strings.Join(e.Supported, ", "))
}

// UnreadableImageError reports a file that could not be decoded as an image.
type UnreadableImageError struct {
	Path string
	Err  error
}

func (e *UnreadableImageError) Error() string {
	return fmt.Sprintf("could not read image %s: %v", e.Path, e.Err)
}

func (e *UnreadableImageError) Unwrap() error { return e.Err }
