package inliner

import (
	"path/filepath"
	"strings"
)

// SourceKind tells how a StyleSource is resolved.
type SourceKind int

const (
	// FilePath sources are read through ReadCSS.
	FilePath SourceKind = iota + 1
	// RawText sources are CSS text.
	RawText
)

func (k SourceKind) String() string {
	switch k {
	case FilePath:
		return "file"
	case RawText:
		return "raw"
	default:
		return "unknown"
	}
}

// StyleSource is one unit of CSS input.
type StyleSource struct {
	Kind  SourceKind
	Value string
}

// FileSource returns a file (or URL) source.
func FileSource(path string) StyleSource {
	return StyleSource{Kind: FilePath, Value: path}
}

// RawSource returns a raw CSS source.
func RawSource(text string) StyleSource {
	return StyleSource{Kind: RawText, Value: text}
}

// Classify decides whether s is a path or CSS text:
//   - anything with a line break is CSS text
//   - "/", "http://" and "https://" prefixes are paths
//   - a ".css" suffix is a path
//   - everything else is CSS text
func Classify(s string) StyleSource {
	src, _ := classify(s)
	return src
}

// classify also reports whether the last rule (the fallback) decided.
func classify(s string) (StyleSource, bool) {
	switch {
	case strings.ContainsAny(s, "\r\n"):
		return RawSource(s), false
	case strings.HasPrefix(s, "/"), isURL(s):
		return FileSource(s), false
	case strings.HasSuffix(s, ".css"):
		return FileSource(s), false
	default:
		return RawSource(s), true
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// normalizeKey returns the identity of a file source: URLs verbatim, local
// paths absolute and cleaned.
func normalizeKey(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || isURL(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
