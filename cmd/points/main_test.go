package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"bookswap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestImportAndList(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "points.db")
	seed := filepath.Join(dir, "points.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
points:
  - name: Main Library
    kind: LIBRARY
    address: 1 Library Sq
  - name: Central Station
    kind: METRO
  - name: Old Campus
    kind: CAMPUS
    enabled: false
`), 0o644))

	out, err := execute(t, "--db", dbPath, "import", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 meeting points")

	out, err = execute(t, "--db", dbPath, "--format", "json", "list")
	require.NoError(t, err)
	var points []models.MeetingPoint
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	assert.Len(t, points, 2)

	out, err = execute(t, "--db", dbPath, "--format", "json", "list", "--all", "--kind", "CAMPUS")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 1)
	assert.False(t, points[0].Enabled)

	out, err = execute(t, "--db", dbPath, "list", "--kind", "METRO")
	require.NoError(t, err)
	assert.Contains(t, out, "Central Station")
}

func TestInvalidInput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "points.db")

	_, err := execute(t, "--db", dbPath, "--format", "xml", "list")
	assert.Error(t, err)

	_, err = execute(t, "--db", dbPath, "list", "--kind", "BEACH")
	assert.Error(t, err)

	_, err = execute(t, "--db", dbPath, "import")
	assert.Error(t, err)
}
