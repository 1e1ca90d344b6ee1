// Package source reads the code that a Sonar issue points at.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a file does not exist in the source tree.
var ErrNotFound = errors.New("source file not found")

// ErrLineRange is returned when a requested line range falls outside a file.
var ErrLineRange = errors.New("line range out of bounds")

// Fetcher returns the raw contents of a file addressed by its path relative
// to the project root.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// DirFetcher reads files from a local checkout.
type DirFetcher struct {
	root string
}

// NewDirFetcher creates a DirFetcher rooted at dir.
func NewDirFetcher(dir string) (*DirFetcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving source dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source dir %s is not a directory", abs)
	}
	return &DirFetcher{root: abs}, nil
}

// Fetch reads path below the root. Paths escaping the root are rejected.
func (d *DirFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := filepath.Join(d.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(d.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes source root", path)
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Lines returns lines from through to (1-based, inclusive) of content.
// CRLF line endings are normalized to LF.
func Lines(content []byte, from, to int) (string, error) {
	if from < 1 || to < from {
		return "", fmt.Errorf("%w: %d-%d", ErrLineRange, from, to)
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	if text == "" {
		lines = nil
	}
	if to > len(lines) {
		return "", fmt.Errorf("%w: %d-%d, file has %d lines", ErrLineRange, from, to, len(lines))
	}
	return strings.Join(lines[from-1:to], "\n"), nil
}
