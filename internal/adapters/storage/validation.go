package storage

import (
	"fmt"
	"strings"
)

// fallbackContentType is stored when a provider delivers media without
// declaring a type.
const fallbackContentType = "application/octet-stream"

// AllowedContentTypes lists the MIME types accepted for message attachments.
// The set follows what the chat providers actually deliver: photos, voice
// notes, short videos and document files.
var AllowedContentTypes = map[string]bool{
	// Images
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,

	// Documents
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"text/plain":               true,

	// Office OpenXML documents
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,

	// Voice notes and audio
	"audio/aac":  true,
	"audio/amr":  true,
	"audio/mpeg": true,
	"audio/mp4":  true,
	"audio/ogg":  true,
	"audio/wav":  true,

	// Video
	"video/mp4":  true,
	"video/3gpp": true,
	"video/webm": true,

	// Media delivered without a declared type.
	"application/octet-stream": true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	// Normalize content type (remove parameters like charset)
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !AllowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ValidateFileSize checks if the attachment size is within limits.
func (s *MediaStore) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("attachment is empty")
	}
	if sizeBytes > s.maxFileSize {
		return fmt.Errorf("attachment size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, s.maxFileSize)
	}
	return nil
}
