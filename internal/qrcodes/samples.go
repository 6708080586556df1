// Package qrcodes writes the sample shift QR images guards can scan.
package qrcodes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// Sample file names and the payloads they encode.
var Samples = []struct {
	File    string
	Payload string
}{
	{File: "sample_qr_start.png", Payload: "QR_START"},
	{File: "sample_qr_end.png", Payload: "QR_END"},
}

const sampleSize = 320

// EnsureSamples creates dir and writes any sample image that is missing.
// Existing files are left untouched. It returns the sample paths.
func EnsureSamples(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("qr dir: %w", err)
	}
	paths := make([]string, 0, len(Samples))
	for _, s := range Samples {
		path := filepath.Join(dir, s.File)
		paths = append(paths, path)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := qrcode.WriteFile(s.Payload, qrcode.Medium, sampleSize, path); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return paths, nil
}
