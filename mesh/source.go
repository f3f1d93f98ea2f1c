package mesh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AssetSource fetches named map assets.
type AssetSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// DirSource reads assets from a local directory. Names are confined to Dir.
type DirSource struct {
	Dir string
}

// Fetch reads one asset from disk.
func (s DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir, filepath.Clean(string(filepath.Separator)+name))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &AssetNotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// String returns the directory.
func (s DirSource) String() string {
	return s.Dir
}

// NewSource picks an HTTPSource when baseURL is set and a DirSource otherwise.
func NewSource(cfg MapsConfig, opts ...FetchOption) (AssetSource, error) {
	if cfg.BaseURL != "" {
		return NewHTTPSource(cfg.BaseURL, opts...)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("maps: neither dir nor baseUrl configured")
	}
	return DirSource{Dir: cfg.Dir}, nil
}
