// Package samplelib is the default sample-library collaborator: it
// enumerates a fixed on-disk directory of seed tracks so a freshly created,
// empty session starts with something playable, per spec.md §4.2.
//
// Grounded on the teacher's internal/blob/store.go on-disk-path-plus-metadata
// shape, simplified to a read-only directory walk since seeding never
// writes.
package samplelib

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wavesync/syncd/internal/protocol"
)

// Library enumerates seed tracks for empty new sessions from files under
// Dir, exposed under the URL namespace session.SamplePrefix.
type Library struct {
	dir       string
	urlPrefix string
}

// New builds a Library rooted at dir, serving tracks under urlPrefix (the
// spec's UploadPrefix+"samples/" namespace by convention).
func New(dir, urlPrefix string) *Library {
	return &Library{dir: dir, urlPrefix: urlPrefix}
}

var audioExt = map[string]bool{
	".mp3": true, ".flac": true, ".ogg": true, ".wav": true, ".m4a": true,
}

// SeedTracks implements session.SampleLibrary.
func (l *Library) SeedTracks() []protocol.Track {
	if l.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		slog.Warn("sample library read failed", "dir", l.dir, "err", err)
		return nil
	}

	var tracks []protocol.Track
	for _, e := range entries {
		if e.IsDir() || !audioExt[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		title := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		tracks = append(tracks, protocol.Track{
			URL:   l.urlPrefix + e.Name(),
			Title: title,
			Metadata: map[string]any{
				"type": "sample",
			},
		})
	}
	return tracks
}
