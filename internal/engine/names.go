package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateName checks a database or table name.
// Names must be non-empty and free of NUL bytes.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", kind)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%s name %q contains a NUL byte", kind, name)
	}
	return nil
}

// FileName maps a database name to a file name with the given extension.
// Names are path-escaped so any name maps to a single file inside the
// engine's directory.
func FileName(name, ext string) string {
	escaped := url.PathEscape(name)
	// PathEscape leaves "." alone; keep "." and ".." from meaning directories.
	if strings.Trim(escaped, ".") == "" {
		escaped = strings.ReplaceAll(escaped, ".", "%2E")
	}
	return escaped + ext
}

// NameFromFile reverses FileName. ok is false when file does not carry ext
// or does not decode.
func NameFromFile(file, ext string) (string, bool) {
	base, found := strings.CutSuffix(file, ext)
	if !found || base == "" {
		return "", false
	}
	name, err := url.PathUnescape(base)
	if err != nil {
		return "", false
	}
	return name, true
}
