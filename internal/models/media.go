package models

import (
	"bytes"
	"io"
	"strings"
)

// MediaCategory is the coarse MIME family of an upload
type MediaCategory string

const (
	MediaImage MediaCategory = "image"
	MediaVideo MediaCategory = "video"
)

// CategoryFromMIME maps a MIME type to its category, returning false for
// anything that is neither an image nor a video
func CategoryFromMIME(mimeType string) (MediaCategory, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo, true
	}
	return "", false
}

// MediaContent is a handle to the bytes of an upload. Release frees the
// underlying resource and must be safe to call more than once.
type MediaContent interface {
	Open() (io.ReadCloser, error)
	Release() error
}

// UploadedMedia represents one accepted upload
type UploadedMedia struct {
	ID       string
	Filename string
	MIMEType string
	Category MediaCategory
	Size     int64
	Content  MediaContent
}

// Open returns a fresh reader over the media bytes
func (m UploadedMedia) Open() (io.ReadCloser, error) {
	return m.Content.Open()
}

// Release frees the media content
func (m UploadedMedia) Release() error {
	if m.Content == nil {
		return nil
	}
	return m.Content.Release()
}

// Info returns the serializable description of the media
func (m UploadedMedia) Info() MediaInfo {
	return MediaInfo{
		ID:        m.ID,
		Filename:  m.Filename,
		MIMEType:  m.MIMEType,
		Category:  m.Category,
		SizeBytes: m.Size,
	}
}

// MediaInfo describes media without its content
type MediaInfo struct {
	ID        string        `json:"id"`
	Filename  string        `json:"filename"`
	MIMEType  string        `json:"mime_type"`
	Category  MediaCategory `json:"category"`
	SizeBytes int64         `json:"size_bytes"`
}

// BytesContent keeps media in memory
type BytesContent []byte

func (b BytesContent) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b BytesContent) Release() error { return nil }
