package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeNeutralizesActiveContent(t *testing.T) {
	tests := []struct {
		mime string
		ext  string
	}{
		{"text/html", "html"},
		{"text/html; charset=utf-8", "html"},
		{"image/svg+xml", "svg"},
		{"application/javascript", "js"},
		{"application/xml", "xml"},
		{"application/x-httpd-php", "php"},
		// either signal alone is enough: active type under a harmless
		// extension, or active extension under a harmless type
		{"text/html; charset=utf-8", "txt"},
		{"text/plain", "html"},
		{"application/octet-stream", "svg"},
		{"image/png", "php"},
	}
	for _, tt := range tests {
		plan := SanitizeContentType(tt.mime, tt.ext)
		assert.Equal(t, "application/octet-stream", plan.ContentType, "%s / %s", tt.mime, tt.ext)
		assert.Equal(t, "attachment", plan.Disposition, "%s / %s", tt.mime, tt.ext)
	}
}

func TestSanitizeAllowsInlineMedia(t *testing.T) {
	tests := []struct {
		mime string
		ext  string
	}{
		{"image/png", "png"},
		{"image/jpeg", "jpg"},
		{"video/mp4", "mp4"},
		{"audio/mpeg", "mp3"},
		{"application/pdf", "pdf"},
	}
	for _, tt := range tests {
		plan := SanitizeContentType(tt.mime, tt.ext)
		assert.Equal(t, tt.mime, plan.ContentType)
		assert.Equal(t, "inline", plan.Disposition)
	}
}

func TestSanitizePassiveContentDownloadsWithTypePreserved(t *testing.T) {
	plan := SanitizeContentType("application/zip", "zip")
	assert.Equal(t, "application/zip", plan.ContentType)
	assert.Equal(t, "attachment", plan.Disposition)

	plan = SanitizeContentType("text/plain; charset=utf-8", "txt")
	assert.Equal(t, "text/plain", plan.ContentType)
	assert.Equal(t, "attachment", plan.Disposition)
}

func TestSanitizeEmptyTypeFallsBack(t *testing.T) {
	plan := SanitizeContentType("", "bin")
	assert.Equal(t, "application/octet-stream", plan.ContentType)
	assert.Equal(t, "attachment", plan.Disposition)
}

func TestSanitizeCaseInsensitive(t *testing.T) {
	plan := SanitizeContentType("TEXT/HTML", "HTML")
	assert.Equal(t, "application/octet-stream", plan.ContentType)
	assert.Equal(t, "attachment", plan.Disposition)
}
