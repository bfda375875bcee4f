package security

import (
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// FileType is the find(1) type filter.
type FileType string

const (
	FileTypeAny  FileType = ""
	FileTypeFile FileType = "f"
	FileTypeDir  FileType = "d"
	FileTypeLink FileType = "l"
)

// ParseFileType maps user-facing names onto a FileType. The empty string
// means no filter.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FileTypeAny, nil
	case "f", "file":
		return FileTypeFile, nil
	case "d", "dir", "directory":
		return FileTypeDir, nil
	case "l", "link", "symlink":
		return FileTypeLink, nil
	}
	return FileTypeAny, errors.NewValidation("type", "must be one of file, dir, link", s)
}

// Valid reports whether t is one of the declared constants. Values can be
// built by conversion from any string, so callers re-check before
// rendering t into a command line.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeAny, FileTypeFile, FileTypeDir, FileTypeLink:
		return true
	}
	return false
}
