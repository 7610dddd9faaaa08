// Package pathutil shortens paths for display. Internally filterline keeps
// absolute paths; people read them relative to where they are.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails, the path is already
// relative, or it lies outside root.
//
// Examples:
//   - ToRelative("/var/log/app/server.log", "/var/log") → "app/server.log"
//   - ToRelative("/tmp/filterline/results/x", "/var/log") → "/tmp/filterline/results/x"
//   - ToRelative("app/server.log", "/var/log") → "app/server.log"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}
	return relPath
}

// ToRelativeAll applies ToRelative to every path, returning a new slice
func ToRelativeAll(paths []string, rootDir string) []string {
	if len(paths) == 0 {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = ToRelative(p, rootDir)
	}
	return out
}

// Display renders path relative to the working directory when it lies below it
func Display(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	return ToRelative(path, wd)
}
