// Package photos stores guard photos and returns the reference that is
// written to the photo_path column.
package photos

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store persists one photo under name and returns where it ended up.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ObjectName builds "<user_id>_<YYYYMMDD_HHMMSS>_<basename>". Path
// separators in the user id are replaced so the name stays one segment.
func ObjectName(userID, filename string, at time.Time) string {
	id := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(userID))
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "photo.jpg"
	}
	return fmt.Sprintf("%s_%s_%s", id, at.Format("20060102_150405"), base)
}

// Local writes photos into a directory on disk.
type Local struct {
	Dir string
}

// NewLocal returns a store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// Save writes the photo and returns its file path.
func (l *Local) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("photo dir: %w", err)
	}
	path := filepath.Join(l.Dir, filepath.Base(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return path, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
