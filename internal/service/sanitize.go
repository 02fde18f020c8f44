package service

import (
	"mime"
	"strings"
)

// Content types that a browser could execute in the store's origin. Anything
// matching is served as an opaque download instead.
var activeMimeTypes = map[string]bool{
	"text/html":              true,
	"application/xhtml+xml":  true,
	"text/xml":               true,
	"application/xml":        true,
	"image/svg+xml":          true,
	"text/javascript":        true,
	"application/javascript": true,
	"application/ecmascript": true,
	"text/ecmascript":        true,
	"application/x-httpd-php": true,
	"application/x-sh":        true,
	"text/x-sh":               true,
	"text/x-php":              true,
}

var activeExtensions = map[string]bool{
	"html":  true,
	"htm":   true,
	"xhtml": true,
	"js":    true,
	"mjs":   true,
	"svg":   true,
	"xml":   true,
	"xsl":   true,
	"php":   true,
	"php3":  true,
	"php4":  true,
	"php5":  true,
	"phtml": true,
	"sh":    true,
	"cgi":   true,
}

// Content types safe to render inline. Everything else downloads as an
// attachment even when its type is preserved.
var inlineMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/ogg":       true,
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"audio/wav":       true,
	"audio/mp4":       true,
	"application/pdf": true,
}

// ServePlan is how one response presents a stored blob.
type ServePlan struct {
	ContentType string
	Disposition string // "inline" or "attachment"
}

// SanitizeContentType maps a stored mime type and extension to safe response
// headers. Active content is neutralized to application/octet-stream and
// forced to download; passive content keeps its type and renders inline only
// when on the allow list.
func SanitizeContentType(storedMime, extension string) ServePlan {
	mimeType := strings.ToLower(strings.TrimSpace(storedMime))
	if mediatype, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mediatype
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	ext := strings.ToLower(strings.TrimSpace(extension))

	if activeMimeTypes[mimeType] || activeExtensions[ext] {
		return ServePlan{
			ContentType: "application/octet-stream",
			Disposition: "attachment",
		}
	}
	plan := ServePlan{ContentType: mimeType, Disposition: "attachment"}
	if inlineMimeTypes[mimeType] {
		plan.Disposition = "inline"
	}
	return plan
}
