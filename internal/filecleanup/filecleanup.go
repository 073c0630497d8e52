// Package filecleanup is the default file-cleanup collaborator: removing a
// track from a queue, or a session expiring, may invoke it to delete an
// uploaded file that is no longer referenced anywhere, per spec.md §4.4.
//
// Grounded on the teacher's upload-path handling (api.go's blob endpoints),
// simplified to the single Remove side-effect the core needs.
package filecleanup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Cleaner deletes files under a base directory, given a URL path in the
// session.UploadPrefix namespace.
type Cleaner struct {
	baseDir   string
	urlPrefix string
}

// New builds a Cleaner that maps url paths under urlPrefix onto files inside
// baseDir.
func New(baseDir, urlPrefix string) *Cleaner {
	return &Cleaner{baseDir: baseDir, urlPrefix: urlPrefix}
}

// Remove implements session.FileCleanup. Failures are logged and otherwise
// swallowed: per spec.md §7, file-cleanup failures are non-fatal.
func (c *Cleaner) Remove(url string) {
	if c == nil || c.baseDir == "" || !strings.HasPrefix(url, c.urlPrefix) {
		return
	}
	rel := strings.TrimPrefix(url, c.urlPrefix)
	rel = filepath.Clean("/" + rel)
	path := filepath.Join(c.baseDir, rel)
	if !strings.HasPrefix(path, filepath.Clean(c.baseDir)+string(filepath.Separator)) {
		slog.Warn("file cleanup refused path outside base dir", "url", url)
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("file cleanup failed", "path", path, "err", err)
	}
}
