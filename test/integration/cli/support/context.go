package support

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/homest/internal/server"
	"github.com/MeKo-Tech/homest/internal/testutil"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir  string
	TempDir     string
	DatasetsDir string
	EnvVars     []string

	// Server state
	HTTPServer *httptest.Server
	Server     *server.Server

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string

	// WebSocket state
	LastWSMessages []map[string]interface{}

	// Test artifacts
	CreatedFiles []string
}

// NewTestContext creates a new test context rooted at the project directory.
func NewTestContext() (*TestContext, error) {
	workingDir, err := testutil.GetProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "homest-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		WorkingDir:   workingDir,
		TempDir:      tempDir,
		DatasetsDir:  filepath.Join(workingDir, "testdata", "datasets"),
		EnvVars:      []string{},
		CreatedFiles: []string{},
	}, nil
}

// Cleanup stops the test server and removes all temporary files.
func (testCtx *TestContext) Cleanup() error {
	var errors []error

	testCtx.StopServer()

	for _, file := range testCtx.CreatedFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			errors = append(errors, fmt.Errorf("failed to remove file %s: %w", file, err))
		}
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errors = append(errors, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("cleanup errors: %v", errors)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// TrackFile adds a file to be cleaned up after tests.
func (testCtx *TestContext) TrackFile(filename string) {
	testCtx.CreatedFiles = append(testCtx.CreatedFiles, testCtx.resolvePath(filename))
}

// TempPath returns the path of name inside the scenario's temp directory.
func (testCtx *TestContext) TempPath(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}

// substituteVariables expands {tmp} and {datasets} placeholders.
func (testCtx *TestContext) substituteVariables(s string) string {
	s = strings.ReplaceAll(s, "{tmp}", testCtx.TempDir)
	return strings.ReplaceAll(s, "{datasets}", testCtx.DatasetsDir)
}

// resolvePath expands placeholders and makes relative paths absolute.
func (testCtx *TestContext) resolvePath(path string) string {
	path = testCtx.substituteVariables(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(testCtx.WorkingDir, path)
	}
	return path
}
