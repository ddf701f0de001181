package storage

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed examples/*
var examples embed.FS

// ExampleNames lists the bundled example scripts.
func ExampleNames() []string {
	entries, _ := fs.ReadDir(examples, "examples")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// SeedExamples writes the bundled example scripts into dir. Existing files
// are left untouched. It returns the names that were written.
func SeedExamples(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scripts directory: %w", err)
	}

	var written []string
	for _, name := range ExampleNames() {
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return written, fmt.Errorf("failed to stat %s: %w", name, err)
		}

		data, err := examples.ReadFile("examples/" + name)
		if err != nil {
			return written, err
		}
		mode := os.FileMode(0644)
		if strings.HasSuffix(name, ".sh") {
			mode = 0755
		}
		if err := os.WriteFile(path, data, mode); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		// WriteFile's mode is subject to the umask.
		if err := os.Chmod(path, mode); err != nil {
			return written, fmt.Errorf("failed to chmod %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
