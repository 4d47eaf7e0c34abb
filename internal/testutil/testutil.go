// Package testutil locates the repository and its bundled datasets for tests
// and development tools.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// projectRoot walks up from this file to the directory holding go.mod. The
// result does not change during a process, so it is computed once.
var projectRoot = sync.OnceValues(func() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	start := filepath.Dir(filename)
	for dir := start; ; dir = filepath.Dir(dir) {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("could not find go.mod file starting from %s", start)
		}
	}
})

// GetProjectRoot returns the directory containing go.mod.
func GetProjectRoot() (string, error) {
	return projectRoot()
}

// GetProjectRootValidated returns the project root after checking that the
// directories the CLI build and the dataset fixtures live in are present.
func GetProjectRootValidated() (string, error) {
	root, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	for _, rel := range []string{"cmd/homest", "internal", "testdata/datasets"} {
		if info, err := os.Stat(filepath.Join(root, rel)); err != nil || !info.IsDir() {
			return "", fmt.Errorf("invalid project root %s: missing directory %s", root, rel)
		}
	}
	return root, nil
}

// GetDatasetsDir returns the path to the bundled correspondence datasets.
func GetDatasetsDir(t *testing.T) string {
	t.Helper()

	root, err := GetProjectRoot()
	require.NoError(t, err, "Failed to find project root")
	return filepath.Join(root, "testdata", "datasets")
}

// GetDatasetPath returns the path to one bundled dataset file.
func GetDatasetPath(t *testing.T, filename string) string {
	t.Helper()

	return filepath.Join(GetDatasetsDir(t), filename)
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
