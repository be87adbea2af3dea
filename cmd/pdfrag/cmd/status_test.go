package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

func TestStatusCmd_NoIndex(t *testing.T) {
	// Given: a project without an index
	dir := newProject(t)

	// When: asking for status
	_, err := execute(t, "status", "-C", dir)

	// Then: not found, with a hint to index
	require.Error(t, err)
	assert.Equal(t, pderrors.KindNotFound, pderrors.KindOf(err))
	assert.Contains(t, err.Error(), "no index found")
	assert.Contains(t, pderrors.FormatForCLI(err), "pdfrag index")
}

func TestStatusCmd_JSON(t *testing.T) {
	// Given: an offline index with two documents
	dir := newProject(t)
	seedIndex(t, dir, papers...)

	// When: asking for status as JSON
	out, err := execute(t, "status", "-C", dir, "--offline", "--format", "json")
	require.NoError(t, err)

	// Then: the index and its configuration are listed
	var statuses []indexStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 1)
	st := statuses[0]
	assert.Equal(t, "static:fnv-hash@256", st.ModelID)
	assert.Equal(t, 256, st.Dimensions)
	assert.Equal(t, 1500, st.ChunkSize)
	assert.Equal(t, 300, st.ChunkOverlap)
	assert.Equal(t, "rrf", st.Fusion)
	assert.Equal(t, 60, st.RRFConstant)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, 2, st.Chunks)
	assert.True(t, st.Active)
	assert.Empty(t, st.Error)
}

func TestStatusCmd_Text(t *testing.T) {
	dir := newProject(t)
	seedIndex(t, dir, papers...)

	out, err := execute(t, "status", "-C", dir, "--offline")

	require.NoError(t, err)
	assert.Contains(t, out, "(active)")
	assert.Contains(t, out, "static:fnv-hash@256 (256 dims)")
	assert.Contains(t, out, "1500 runes, 300 overlap")
	assert.Contains(t, out, "2 documents, 2 chunks, ")
	assert.Contains(t, out, "iB")
}

func TestStatusCmd_OtherConfigurationIsNotActive(t *testing.T) {
	// Given: an offline index
	dir := newProject(t)
	seedIndex(t, dir, papers...)

	// When: the configured provider is Ollama
	out, err := execute(t, "status", "-C", dir, "--format", "json")
	require.NoError(t, err)

	// Then: the static index is listed but not active
	var statuses []indexStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Active)
}
