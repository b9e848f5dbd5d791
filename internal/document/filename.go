package document

import (
	"strings"

	"github.com/JakeFAU/harvester/internal/harvest"
)

const (
	maxTitleLen   = 80
	fallbackTitle = "document"
)

// windows device names are invalid filenames on NTFS regardless of extension.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// Filename builds the deterministic, filesystem-safe document name
// "{sanitized-title}--{short-hash}.md". The hash covers the normalized URL
// so reruns of the same page land on the same file.
func Filename(title, normalizedURL string, hasher harvest.Hasher) (string, error) {
	digest, err := hasher.Hash([]byte(normalizedURL))
	if err != nil {
		return "", err
	}
	short := digest
	if len(short) > 8 {
		short = short[:8]
	}
	return sanitizeTitle(title) + "--" + short + ".md", nil
}

func sanitizeTitle(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if forbidden(r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), "_ .")
	if cleaned == "" {
		return fallbackTitle
	}

	var compacted strings.Builder
	compacted.Grow(len(cleaned))
	prevUnderscore := false
	for _, r := range cleaned {
		if r == '_' {
			if !prevUnderscore {
				compacted.WriteRune(r)
			}
			prevUnderscore = true
			continue
		}
		compacted.WriteRune(r)
		prevUnderscore = false
	}

	name := compacted.String()
	if len(name) > maxTitleLen {
		name = strings.TrimRight(truncateRunes(name, maxTitleLen), "_ .")
	}
	if name == "" {
		return fallbackTitle
	}
	if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
		name += "_"
	}
	return name
}

// truncateRunes cuts at a byte budget without splitting a multi-byte rune.
func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for i := maxBytes; i > 0; i-- {
		if _, ok := validCut(s, i); ok {
			return s[:i]
		}
	}
	return ""
}

func validCut(s string, i int) (string, bool) {
	if i >= len(s) {
		return s, true
	}
	// A continuation byte means we are mid-rune.
	if s[i]&0xC0 == 0x80 {
		return "", false
	}
	return s[:i], true
}

func forbidden(r rune) bool {
	switch r {
	case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return r <= 0x1F
}
