package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("background\n person \n"), 0644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"background", "person"}, labels)

	assert.Equal(t, "person", labelFor(labels, 1))
	assert.Equal(t, "7", labelFor(labels, 7))
	assert.Equal(t, "-1", labelFor(labels, -1))
}

func TestLoadLabels_Missing(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
