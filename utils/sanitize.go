package utils

import (
	"fmt"
	"strings"
)

// SanitizeHeaderFilename makes a stored name safe to embed in a
// Content-Disposition header: control characters, quotes and backslashes are
// stripped so the name cannot break out of the quoted value.
func SanitizeHeaderFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "download"
	}
	return cleaned
}

// ContentDisposition renders a disposition header value with a sanitized
// filename.
func ContentDisposition(disposition, filename string) string {
	return fmt.Sprintf("%s; filename=\"%s\"", disposition, SanitizeHeaderFilename(filename))
}
