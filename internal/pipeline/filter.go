package pipeline

import (
	"path/filepath"
	"strings"

	"modsync/internal/model"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter drops events whose path, relative to root, matches the ignore list.
func Filter(inCh <-chan model.FileEvent, root string, ignoreList []string) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			rel, err := filepath.Rel(root, event.Path)
			if err != nil || ShouldIgnore(filepath.ToSlash(rel), ignoreList) {
				continue
			}
			outCh <- event
		}
	}()

	return outCh
}

// ShouldIgnore reports whether a slash-separated relative path matches any
// ignore pattern. Patterns without a slash also match any single path segment.
func ShouldIgnore(relPath string, ignoreList []string) bool {
	if strings.HasSuffix(relPath, ".modsync.tmp") {
		return true
	}

	parts := strings.Split(relPath, "/")
	for _, pattern := range ignoreList {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}

		if strings.Contains(pattern, "/") {
			continue
		}

		for _, part := range parts {
			if ok, _ := doublestar.Match(pattern, part); ok {
				return true
			}
		}
	}

	return false
}

// ShouldIgnoreDir reports whether a whole directory can be skipped.
func ShouldIgnoreDir(relDir string, ignoreList []string) bool {
	if ShouldIgnore(relDir, ignoreList) {
		return true
	}

	for _, pattern := range ignoreList {
		base, ok := strings.CutSuffix(pattern, "/**")
		if !ok {
			continue
		}

		if matched, _ := doublestar.Match(base, relDir); matched {
			return true
		}
	}

	return false
}
