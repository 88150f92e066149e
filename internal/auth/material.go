// Package auth checks for the OAuth token files the backend gateway writes
// after a successful login. The bridge never reads their contents.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoAuthMaterial means the auth directory holds no token files.
var ErrNoAuthMaterial = errors.New("no auth files found")

// CountAuthFiles returns the number of *.json files directly inside dir.
// A missing directory counts as zero files.
func CountAuthFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read auth dir %s: %w", dir, err)
	}

	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			n++
		}
	}
	return n, nil
}

// Check returns the file count, or ErrNoAuthMaterial when there are none.
func Check(dir string) (int, error) {
	n, err := CountAuthFiles(dir)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoAuthMaterial, dir)
	}
	return n, nil
}
