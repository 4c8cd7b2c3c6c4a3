package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const DefaultMaxSize int64 = 10 << 20

var (
	ErrInvalidFile = errors.New("invalid media file")
	ErrEmpty       = fmt.Errorf("%w: file is empty", ErrInvalidFile)
	ErrTooLarge    = fmt.Errorf("%w: file exceeds size limit", ErrInvalidFile)
	ErrNotImage    = fmt.Errorf("%w: only image files are allowed", ErrInvalidFile)
)

// File is an evidence photo as received from the submitter. ContentType is
// the type the submitter declared.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Validate checks size and type class without touching the store. Both the
// declared type and the sniffed content must be images.
func Validate(f File, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	size := int64(len(f.Data))
	if size == 0 {
		return ErrEmpty
	}
	if size > maxSize {
		return fmt.Errorf("%w: %d bytes, maximum is %d", ErrTooLarge, size, maxSize)
	}
	if !isImageType(f.ContentType) {
		return fmt.Errorf("%w: declared type %q", ErrNotImage, f.ContentType)
	}
	if detected := DetectContentType(f.Data); !isImageType(detected) {
		return fmt.Errorf("%w: content looks like %q", ErrNotImage, detected)
	}
	return nil
}

func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func isImageType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "image/")
}
