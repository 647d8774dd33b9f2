package refdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonny/equindex/internal/contracts"
)

// FileSource reads a local CSV with columns symbol,company_name,sector,industry,market_cap
type FileSource struct {
	path string
	opts parseOptions
}

// NewFileSource creates a source for a local file
func NewFileSource(path, defaultSector, suffix string) *FileSource {
	return &FileSource{
		path: path,
		opts: parseOptions{DefaultSector: defaultSector, SymbolSuffix: suffix},
	}
}

// Name returns the file name without extension
func (s *FileSource) Name() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Fetch reads and parses the file
func (s *FileSource) Fetch(_ context.Context) ([]contracts.Stock, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	stocks, err := parseStocks(f, s.opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return stocks, nil
}
