// internal/storage/memory/file.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OCAP2/placefinder/pkg/core"
)

func (b *Backend) compressed() bool {
	return b.cfg.Compress || strings.HasSuffix(b.cfg.Path, ".gz")
}

// readFile decodes the identity -> entries map. A missing file is an empty map.
func readFile(path string, compressed bool) (map[string][]core.FavouriteEntry, error) {
	data := make(map[string][]core.FavouriteEntry)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open favourites file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode favourites file: %w", err)
	}
	return data, nil
}

// writeFile writes data to a temp file next to path and renames it into
// place, so readers never observe a partial file.
func writeFile(path string, data map[string][]core.FavouriteEntry, compressed bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if compressed {
		gzWriter := gzip.NewWriter(f)
		if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode favourites: %w", err)
		}
		if err := gzWriter.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to flush gzip stream: %w", err)
		}
	} else {
		encoder := json.NewEncoder(f)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(data); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode favourites: %w", err)
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace favourites file: %w", err)
	}
	return nil
}
