package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

// IndexFileName returns the index file name for an embedding space and
// chunk configuration, so each configuration gets its own index.
func IndexFileName(modelID string, chunkSize, overlap int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", modelID, chunkSize, overlap)))
	return "index-" + hex.EncodeToString(sum[:])[:12] + ".db"
}

// IndexPath joins dataDir and IndexFileName.
func IndexPath(dataDir, modelID string, chunkSize, overlap int) string {
	return filepath.Join(dataDir, IndexFileName(modelID, chunkSize, overlap))
}

// ListIndexFiles returns the index files in dataDir, sorted.
func ListIndexFiles(dataDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "index-*.db"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// fileSize returns the combined size of a SQLite file and its WAL.
func fileSize(path string) int64 {
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// toMap flattens meta into index_meta rows.
func (m IndexMeta) toMap() map[string]string {
	return map[string]string{
		metaSchemaVersion: strconv.Itoa(m.SchemaVersion),
		metaModelID:       m.ModelID,
		metaDimensions:    strconv.Itoa(m.Dimensions),
		metaChunkSize:     strconv.Itoa(m.ChunkSize),
		metaChunkOverlap:  strconv.Itoa(m.ChunkOverlap),
		metaFusion:        m.Fusion,
		metaRRFConstant:   strconv.Itoa(m.RRFConstant),
		metaCreatedAt:     m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// metaFromMap parses index_meta rows. A missing or unparsable schema
// version is a schema error.
func metaFromMap(rows map[string]string) (IndexMeta, error) {
	version, err := strconv.Atoi(rows[metaSchemaVersion])
	if err != nil {
		return IndexMeta{}, errors.SchemaError("index has no schema version", err)
	}

	atoi := func(key string) int {
		n, _ := strconv.Atoi(rows[key])
		return n
	}
	created, _ := time.Parse(time.RFC3339, rows[metaCreatedAt])

	return IndexMeta{
		SchemaVersion: version,
		ModelID:       rows[metaModelID],
		Dimensions:    atoi(metaDimensions),
		ChunkSize:     atoi(metaChunkSize),
		ChunkOverlap:  atoi(metaChunkOverlap),
		Fusion:        rows[metaFusion],
		RRFConstant:   atoi(metaRRFConstant),
		CreatedAt:     created,
	}, nil
}

// prepareNewMeta fills defaults for a fresh index and checks that the
// embedding space is known.
func prepareNewMeta(m IndexMeta) (IndexMeta, error) {
	if m.ModelID == "" || m.Dimensions <= 0 {
		return m, errors.ConfigError("a new index needs an embedding model id and dimensions", nil)
	}
	m.SchemaVersion = SchemaVersion
	if m.Fusion == "" {
		m.Fusion = FusionRRF
	}
	if m.RRFConstant <= 0 {
		m.RRFConstant = 60
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m, nil
}

// checkMeta compares a stored index against what the caller expects.
// Zero-valued expectations are not checked.
func checkMeta(stored, want IndexMeta) error {
	if stored.SchemaVersion != SchemaVersion {
		return errors.SchemaError(fmt.Sprintf(
			"index schema version %d is not supported (want %d)", stored.SchemaVersion, SchemaVersion), nil)
	}
	if want.ModelID != "" && want.ModelID != stored.ModelID {
		return errors.EmbeddingSpaceMismatchError(stored.ModelID, want.ModelID)
	}
	if want.Dimensions != 0 && want.Dimensions != stored.Dimensions {
		return errors.EmbeddingSpaceMismatchError(
			fmt.Sprintf("%s (%d dims)", stored.ModelID, stored.Dimensions),
			fmt.Sprintf("%s (%d dims)", want.ModelID, want.Dimensions))
	}
	if (want.ChunkSize != 0 && want.ChunkSize != stored.ChunkSize) ||
		(want.ChunkOverlap != 0 && want.ChunkOverlap != stored.ChunkOverlap) {
		return errors.New(errors.ErrCodeChunkConfig, fmt.Sprintf(
			"index was chunked with size=%d overlap=%d, requested size=%d overlap=%d",
			stored.ChunkSize, stored.ChunkOverlap, want.ChunkSize, want.ChunkOverlap), nil)
	}
	if (want.Fusion != "" && want.Fusion != stored.Fusion) ||
		(want.RRFConstant != 0 && want.RRFConstant != stored.RRFConstant) {
		return errors.New(errors.ErrCodeFusionConfig, fmt.Sprintf(
			"index fusion policy is %s k=%d, configuration asks for %s k=%d",
			stored.Fusion, stored.RRFConstant, want.Fusion, want.RRFConstant), nil).
			WithSuggestion("Fusion policy is fixed when an index is created; rebuild the index to change it")
	}
	return nil
}
