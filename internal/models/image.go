package models

// UploadedImage is the photo the user selected for the current session.
type UploadedImage struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// ImageInfo is the metadata part of an UploadedImage, safe to serialize.
type ImageInfo struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Info returns the image metadata without the payload.
func (img *UploadedImage) Info() *ImageInfo {
	if img == nil {
		return nil
	}
	return &ImageInfo{Name: img.Name, MimeType: img.MimeType, Size: img.Size}
}
