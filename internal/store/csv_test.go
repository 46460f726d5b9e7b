package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greentrap/internal/panel"
)

func TestSaveAndLoadPanel(t *testing.T) {
	a := panel.NewObservation("TUR", 2010)
	a.Set("Inflation_CPI_Pct", 8.57)
	a.Set("Is_Energy_Importer", 1)
	a.SetLabel("Period", "Recovery_Green")

	b := panel.NewObservation("TUR", 2011)
	// Inflation missing on purpose.
	b.Set("Is_Energy_Importer", 1)
	b.SetLabel("Period", "Recovery_Green")

	c := panel.NewObservation("DEU", 2010)
	c.Set("Inflation_CPI_Pct", 1.1)
	c.Set("Is_Energy_Importer", 0)
	c.SetLabel("Period", "Recovery_Green")

	p, err := panel.New([]panel.Observation{a, b, c})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "panel.csv")
	require.NoError(t, SavePanel(p, path))

	loaded, err := LoadPanel(path)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())

	rows := loaded.Rows()
	assert.Equal(t, "DEU", rows[0].Country)
	assert.Equal(t, "TUR", rows[1].Country)

	v, ok := rows[1].Value("Inflation_CPI_Pct")
	require.True(t, ok)
	assert.InDelta(t, 8.57, v, 1e-9)

	_, ok = rows[2].Value("Inflation_CPI_Pct")
	assert.False(t, ok, "empty cell loads as missing")

	label, ok := rows[1].Label("Period")
	require.True(t, ok)
	assert.Equal(t, "Recovery_Green", label)
}

func TestSavePanelMissingValuesAreEmptyCells(t *testing.T) {
	a := panel.NewObservation("TUR", 2010)
	a.Set("x", 1.5)
	b := panel.NewObservation("TUR", 2011)

	p, err := panel.New([]panel.Observation{a, b})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, SavePanel(p, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "NaN", "missing values must serialize as empty cells")

	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Country_Code,Year,x", lines[0])
	assert.Equal(t, "TUR,2011,", lines[2])
}

func TestLoadPanelMissingFile(t *testing.T) {
	_, err := LoadPanel(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestLoadPanelRequiresKeyColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	_, err := LoadPanel(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Country_Code")
}

func TestLoadPanelDuplicateRowsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.csv")
	csv := "Country_Code,Year,x\nTUR,2010,1\nTUR,2010,2\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	_, err := LoadPanel(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
