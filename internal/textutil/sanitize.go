package textutil

import (
	"strings"
	"unicode"
)

// fileNameReplacer maps path separators and shell-hostile characters to
// dashes and drops characters that are invalid on common filesystems.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName returns name with unsafe characters replaced, control
// characters removed, and surrounding whitespace and dots trimmed. The result
// may be empty.
func SanitizeFileName(name string) string {
	name = fileNameReplacer.Replace(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.Trim(name, " .")
}

// FileStem returns the sanitized base name of name without its extension, or
// fallback when nothing usable remains.
func FileStem(name, fallback string) string {
	base := name
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	if ext := strings.LastIndex(base, "."); ext > 0 {
		base = base[:ext]
	}
	if stem := SanitizeFileName(base); stem != "" {
		return stem
	}
	return fallback
}
