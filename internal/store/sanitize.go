package store

import (
	"strings"
	"unicode/utf8"
)

// FallbackName is used when a display name is empty or unusable.
const FallbackName = "shared_content"

// maxNameLength bounds the sanitized display name.
const maxNameLength = 255

// reserved replaces path separators and filesystem-reserved characters.
var reserved = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeName defensively cleans a caller-supplied display name. The name
// is pure metadata echoed back to receivers, but it must never be usable to
// smuggle path components or control bytes.
func SanitizeName(name string) string {
	if !utf8.ValidString(name) {
		return FallbackName
	}

	name = strings.ReplaceAll(name, "\x00", "")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "_")
	}
	name = reserved.Replace(name)
	name = strings.TrimSpace(name)

	if name == "" {
		return FallbackName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		runes := []rune(name)
		name = string(runes[:maxNameLength])
	}
	return name
}
