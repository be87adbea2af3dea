package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

// Open returns the IndexStore selected by opts.Backend.
func Open(ctx context.Context, opts Options) (IndexStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendSQLite:
		return OpenSQLite(ctx, opts)
	case BackendMemory:
		return NewMemoryStore(opts)
	default:
		return nil, errors.ConfigError(fmt.Sprintf(
			"unknown store backend %q (valid: %s, %s)", opts.Backend, BackendSQLite, BackendMemory), nil)
	}
}

// ReadMeta opens an existing SQLite index read-only and returns its
// recorded configuration and counts.
func ReadMeta(ctx context.Context, path string) (IndexMeta, *Stats, error) {
	s, err := OpenSQLite(ctx, Options{Path: path, ReadOnly: true})
	if err != nil {
		return IndexMeta{}, nil, err
	}
	defer func() { _ = s.Close() }()

	st, err := s.Stats(ctx)
	if err != nil {
		return IndexMeta{}, nil, err
	}
	return s.Meta(), st, nil
}
