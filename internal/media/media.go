// Package media downloads post media into temporary files for upload.
package media

import (
	"context"
	"fmt"
	"os"
)

// File is a downloaded media file living in its own temporary directory.
type File struct {
	Path   string
	Width  int
	Height int

	dir string
}

// NewFile wraps a file stored in dir. The File owns dir and removes it on Close.
func NewFile(dir, path string, width, height int) *File {
	return &File{Path: path, Width: width, Height: height, dir: dir}
}

// Close removes the file and its temporary directory.
func (f *File) Close() error {
	if f == nil || f.dir == "" {
		return nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("remove %s: %w", f.dir, err)
	}
	return nil
}

// Downloader fetches the media behind a URL.
type Downloader interface {
	Download(ctx context.Context, url string) (*File, error)
}

func tempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}
