// Package intake validates user-selected crop photos before any remote call.
package intake

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"harvesttutor/internal/models"
)

// MaxImageBytes is the upload ceiling (10 MiB).
const MaxImageBytes = 10 << 20

const imagePrefix = "image/"

var (
	ErrNoImage  = errors.New("please select an image first")
	ErrNotImage = errors.New("please upload an image file")
	ErrTooLarge = errors.New("image must be smaller than 10MB")
)

// Accept validates a selected file and returns it as the active image.
// declaredType is the client-supplied MIME type and may be empty.
func Accept(name, declaredType string, data []byte) (*models.UploadedImage, error) {
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	if len(data) > MaxImageBytes {
		return nil, ErrTooLarge
	}
	sniffed := mimetype.Detect(data).String()
	if !isImage(sniffed) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, sniffed)
	}
	mimeType := normalizeType(declaredType)
	if mimeType == "" {
		mimeType = normalizeType(sniffed)
	}
	if !isImage(mimeType) {
		return nil, ErrNotImage
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	return &models.UploadedImage{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

// CheckSize rejects a file by its reported size before the payload is read.
func CheckSize(size int64) error {
	if size > MaxImageBytes {
		return ErrTooLarge
	}
	return nil
}

// Preview renders the image as a data URI for display.
func Preview(img *models.UploadedImage) string {
	if img == nil || len(img.Data) == 0 {
		return ""
	}
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(normalizeType(mimeType), imagePrefix)
}

// normalizeType drops parameters such as "; charset=binary" and lowercases.
func normalizeType(mimeType string) string {
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
