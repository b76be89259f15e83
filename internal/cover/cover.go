// Package cover persists uploaded cover images and returns the URL they are
// served from.
package cover

import (
	"mime"
	"path/filepath"
	"strings"
)

// Key derives the storage key for an upload: the ISBN followed by every
// extension of the original file name ("cover.tar.gz" keeps ".tar.gz").
func Key(isbn, filename string) string {
	return isbn + Extensions(filename)
}

// Extensions returns all suffixes of the base file name, or "" when it has none.
func Extensions(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimLeft(base, ".")
	base = strings.TrimRight(base, ".")

	idx := strings.Index(base, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(base[idx:])
}

// ContentType guesses the MIME type from the last extension, falling back to
// the type declared by the client.
func ContentType(filename, declared string) string {
	if ext := filepath.Ext(filename); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	return declared
}

// IsImage reports whether a MIME type describes an image.
func IsImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
