package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var datasetPatterns = []string{"*.yaml", "*.yml", "*.json", "*.csv"}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestDiscoverDatasetFiles_EmptyArgs(t *testing.T) {
	files, err := discoverDatasetFiles([]string{}, false, datasetPatterns, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverDatasetFiles_ExplicitFiles(t *testing.T) {
	tempDir := t.TempDir()
	yamlFile := touch(t, filepath.Join(tempDir, "a.yaml"))
	csvFile := touch(t, filepath.Join(tempDir, "b.csv"))
	txtFile := touch(t, filepath.Join(tempDir, "notes.txt"))

	files, err := discoverDatasetFiles([]string{csvFile, yamlFile, txtFile, yamlFile}, false, datasetPatterns, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{yamlFile, csvFile}, files)
}

func TestDiscoverDatasetFiles_Directory(t *testing.T) {
	tempDir := t.TempDir()
	jsonFile := touch(t, filepath.Join(tempDir, "set.json"))
	ymlFile := touch(t, filepath.Join(tempDir, "set.yml"))
	touch(t, filepath.Join(tempDir, "readme.md"))

	files, err := discoverDatasetFiles([]string{tempDir}, false, datasetPatterns, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{jsonFile, ymlFile}, files)
}

func TestDiscoverDatasetFiles_Recursion(t *testing.T) {
	tempDir := t.TempDir()
	subDir := filepath.Join(tempDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0o750))

	rootFile := touch(t, filepath.Join(tempDir, "root.yaml"))
	subFile := touch(t, filepath.Join(subDir, "sub.yaml"))

	files, err := discoverDatasetFiles([]string{tempDir}, true, datasetPatterns, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{rootFile, subFile}, files)

	files, err = discoverDatasetFiles([]string{tempDir}, false, datasetPatterns, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{rootFile}, files)
}

func TestDiscoverDatasetFiles_ExcludePatterns(t *testing.T) {
	tempDir := t.TempDir()
	keep := touch(t, filepath.Join(tempDir, "keep.yaml"))
	touch(t, filepath.Join(tempDir, "skip_draft.yaml"))

	files, err := discoverDatasetFiles([]string{tempDir}, false, datasetPatterns, []string{"*draft*"})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
}

func TestDiscoverDatasetFiles_NonExistent(t *testing.T) {
	files, err := discoverDatasetFiles([]string{"/nonexistent/directory"}, false, datasetPatterns, nil)
	require.Error(t, err)
	assert.Nil(t, files)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestShouldIncludeFile(t *testing.T) {
	testCases := []struct {
		path     string
		include  []string
		exclude  []string
		expected bool
	}{
		{"a.yaml", datasetPatterns, nil, true},
		{"a.YAML", datasetPatterns, nil, false},
		{"a.txt", datasetPatterns, nil, false},
		{"a.txt", nil, nil, true},
		{"a.txt", nil, []string{"*.txt"}, false},
		{"dir/old.csv", datasetPatterns, []string{"old.*"}, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, shouldIncludeFile(tc.path, tc.include, tc.exclude), "path=%s", tc.path)
	}
}

func TestMatchesAnyPattern_EmptyPatterns(t *testing.T) {
	assert.False(t, matchesAnyPattern("test.yaml", nil))
}
