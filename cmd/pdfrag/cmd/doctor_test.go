package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pdfrag/internal/pdf"
	"github.com/Aman-CERP/pdfrag/internal/preflight"
)

func TestDoctorCmd_JSON(t *testing.T) {
	// Given: an offline project
	dir := newProject(t)

	// When: running the system check as JSON
	out, err := execute(t, "doctor", "-C", dir, "--offline", "--json")

	// Then: every check is reported and the failure state follows pdftotext
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name     string `json:"name"`
			Status   string `json:"status"`
			Required bool   `json:"required"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	statuses := make(map[string]string, len(report.Checks))
	for _, c := range report.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, preflight.Pass.String(), statuses["embedder"])
	assert.Equal(t, preflight.Pass.String(), statuses["write_permissions"])

	if pdf.CheckAvailable() != nil {
		require.Error(t, err)
		assert.Equal(t, preflight.NotReady, report.Status)
		assert.Equal(t, "FAIL", statuses["pdftotext"])
		return
	}
	assert.Equal(t, "PASS", statuses["pdftotext"])
	if report.Status == preflight.NotReady {
		require.Error(t, err)
	} else {
		require.NoError(t, err)
	}
}
