package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "postgres", driverFor("postgres://u:p@localhost/arrests"))
	assert.Equal(t, "postgres", driverFor("postgresql://localhost/arrests"))
	assert.Equal(t, "sqlite", driverFor("runs.db"))
}

func TestReconstructCommand(t *testing.T) {
	dir := t.TempDir()
	page := strings.Join([]string{
		"Case Number", "17-42",
		"Date Arrest", "02/14/17 21:15",
		"Primary Location", "EMBARCADERO STATION",
		"Sex: m",
		"Race: w",
		"PC 647(f) DRUNK IN PUBLIC",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log-1.txt"), []byte(page), 0o644))
	out := filepath.Join(t.TempDir(), "out.csv")

	t.Setenv("DB_URL", "")
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"reconstruct", "--dir", dir, "--csv", out, "--db", filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, stdout.String(), "1 records from 1 documents")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "17-42")
}
