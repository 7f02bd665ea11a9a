// Package ingestion implements the pure admission policy that decides which
// files are eligible to enter a corpus cache. It has no side effects and
// retains no allocations, so it can be called from both the bulk directory
// walk and the incremental replace path without any shared state.
package ingestion

import (
	"strings"
)

// MaximumFileSize is the largest file size, in bytes, that will be admitted
// into a corpus cache.
const MaximumFileSize = 50 * 1024 * 1024

// excludedExtensions is the set of lowercased file extensions (without the
// leading dot) that are always rejected, regardless of size.
var excludedExtensions = map[string]bool{
	"png":   true,
	"jpg":   true,
	"jpeg":  true,
	"gif":   true,
	"pdf":   true,
	"zip":   true,
	"tar":   true,
	"gz":    true,
	"so":    true,
	"dylib": true,
	"dll":   true,
	"exe":   true,
	"bin":   true,
	"o":     true,
	"a":     true,
}

// Admit reports whether a file of the given size and path should be admitted
// into a corpus cache. It rejects empty files, files larger than
// MaximumFileSize, and files whose extension (case-insensitively) names a
// known binary format. It never inspects file contents and never returns an
// error: rejection is purely a boolean outcome.
func Admit(path string, size int64) bool {
	return AllowedSize(size) && AllowedExtension(path)
}

// AllowedSize reports whether size falls within the bounds admitted into a
// corpus cache: non-empty and at most MaximumFileSize. It considers size in
// isolation, independent of the extension filter.
func AllowedSize(size int64) bool {
	return size > 0 && size <= MaximumFileSize
}

// AllowedExtension reports whether path's extension does not name one of
// the excluded binary formats (case-insensitively). It considers the
// extension in isolation, independent of the size predicate.
func AllowedExtension(path string) bool {
	return !excludedExtension(path)
}

// excludedExtension reports whether path's extension matches one of the
// excluded binary extensions, case-insensitively.
func excludedExtension(path string) bool {
	ext := extension(path)
	if ext == "" {
		return false
	}
	return excludedExtensions[strings.ToLower(ext)]
}

// extension returns the file extension of path without its leading dot, or
// the empty string if path has no extension. It is implemented directly
// (rather than via path/filepath) so that it operates purely on the string
// form of the path and makes no filesystem-separator assumptions beyond the
// final path segment.
func extension(path string) string {
	base := path
	if idx := strings.LastIndexAny(path, `/\`); idx != -1 {
		base = path[idx+1:]
	}
	dot := strings.LastIndex(base, ".")
	if dot <= 0 || dot == len(base)-1 {
		return ""
	}
	return base[dot+1:]
}
