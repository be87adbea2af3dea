package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

func TestIndexFileName_DependsOnSpaceAndChunking(t *testing.T) {
	base := IndexFileName("ollama:nomic-embed-text@768", 1500, 300)

	assert.Equal(t, base, IndexFileName("ollama:nomic-embed-text@768", 1500, 300))
	assert.Regexp(t, `^index-[0-9a-f]{12}\.db$`, base)
	assert.NotEqual(t, base, IndexFileName("static:fnv-hash@256", 1500, 300))
	assert.NotEqual(t, base, IndexFileName("ollama:nomic-embed-text@768", 1000, 300))
	assert.NotEqual(t, base, IndexFileName("ollama:nomic-embed-text@768", 1500, 200))
}

func TestListIndexFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"index-bbb.db", "index-aaa.db", "index.lock", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files, err := ListIndexFiles(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "index-aaa.db"),
		filepath.Join(dir, "index-bbb.db"),
	}, files)
}

func TestIndexMeta_MapRoundTrip(t *testing.T) {
	meta, err := prepareNewMeta(IndexMeta{
		ModelID:      "static:fnv-hash@256",
		Dimensions:   256,
		ChunkSize:    800,
		ChunkOverlap: 100,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := metaFromMap(meta.toMap())

	require.NoError(t, err)
	assert.True(t, meta.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt = meta.CreatedAt
	assert.Equal(t, meta, got)
	assert.Equal(t, FusionRRF, got.Fusion)
	assert.Equal(t, 60, got.RRFConstant)
}

func TestMetaFromMap_MissingVersionIsSchemaError(t *testing.T) {
	_, err := metaFromMap(map[string]string{metaModelID: "x"})

	require.Error(t, err)
	assert.Equal(t, pderrors.ErrCodeSchema, pderrors.GetCode(err))
}

func TestCheckMeta_SchemaVersionMismatch(t *testing.T) {
	stored := testMeta()
	stored.SchemaVersion = SchemaVersion + 1

	err := checkMeta(stored, IndexMeta{})

	assert.Equal(t, pderrors.ErrCodeSchema, pderrors.GetCode(err))
}

func TestCheckMeta_ZeroExpectationsAreNotChecked(t *testing.T) {
	stored, err := prepareNewMeta(testMeta())
	require.NoError(t, err)

	assert.NoError(t, checkMeta(stored, IndexMeta{}))
	assert.NoError(t, checkMeta(stored, IndexMeta{ModelID: stored.ModelID}))
}
