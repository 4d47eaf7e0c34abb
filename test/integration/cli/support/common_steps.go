package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/golang/geo/r2"
)

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src) //nolint:gosec // G304: Test file copy with controlled paths
	if err != nil {
		return err
	}
	defer func() { _ = sourceFile.Close() }()

	destFile, err := os.Create(dst) //nolint:gosec // G304: Test file copy with controlled paths
	if err != nil {
		return err
	}
	defer func() { _ = destFile.Close() }()

	_, err = io.Copy(destFile, sourceFile)
	return err
}

// theHomestBinaryIsAvailable checks that TestMain built the CLI.
func (testCtx *TestContext) theHomestBinaryIsAvailable() error {
	path, err := exec.LookPath("homest")
	if err != nil {
		return fmt.Errorf("homest binary not found in PATH: %w", err)
	}
	if !testutil.FileExists(path) {
		return fmt.Errorf("homest binary missing at %s", path)
	}
	return nil
}

// iRunCommand executes a command and stores the result.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	// Capture both stdout and stderr
	output, err := cmd.CombinedOutput()
	testCtx.LastOutput = string(output)
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}

	return nil
}

// iRunCommandCapturingStdout executes a command and stores only its stdout,
// so that structured output can be parsed without log lines mixed in.
func (testCtx *TestContext) iRunCommandCapturingStdout(command string) error {
	command = testCtx.substituteVariables(command)
	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	output, err := cmd.Output()
	testCtx.LastOutput = string(output)
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)
	testCtx.LastExitCode = 0
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
			testCtx.LastOutput += string(exitError.Stderr)
		} else {
			testCtx.LastExitCode = -1
		}
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldNotContain verifies the output lacks specific text.
func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// lastJSON parses the output starting at its first '{' or '['.
func (testCtx *TestContext) lastJSON() (interface{}, error) {
	output := strings.TrimSpace(testCtx.LastOutput)
	jsonStart := strings.IndexAny(output, "{[")
	if jsonStart == -1 {
		return nil, fmt.Errorf("no JSON found in output: %s", testCtx.LastOutput)
	}

	var data interface{}
	if err := json.Unmarshal([]byte(output[jsonStart:]), &data); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nJSON part: %s", err, output[jsonStart:])
	}
	return data, nil
}

// theOutputShouldBeValidJSON verifies the output is valid JSON.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.lastJSON()
	return err
}

// theJSONShouldContain verifies JSON contains a specific field.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	_, err = lookupField(data, field)
	return err
}

// theJSONFieldShouldBeApproximately compares a numeric JSON field.
func (testCtx *TestContext) theJSONFieldShouldBeApproximately(field, expected string) error {
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	return checkApproximately(data, field, expected)
}

// theJSONFieldShouldBe compares a JSON field with its printed form.
func (testCtx *TestContext) theJSONFieldShouldBe(field, expected string) error {
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	val, err := lookupField(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(val); got != expected {
		return fmt.Errorf("field '%s' is %q, want %q", field, got, expected)
	}
	return nil
}

// lookupField resolves a dotted path such as "validation.rms" or "h.2.2".
// Numeric parts index into arrays.
func lookupField(data interface{}, field string) (interface{}, error) {
	current := data
	parts := strings.Split(field, ".")
	for i, part := range parts {
		switch node := current.(type) {
		case map[string]interface{}:
			val, exists := node[part]
			if !exists {
				return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
			}
			current = val
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid array index '%s' in '%s'", part, field)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot navigate deeper into non-object field '%s'", strings.Join(parts[:i], "."))
		}
	}
	return current, nil
}

func checkApproximately(data interface{}, field, expected string) error {
	want, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return fmt.Errorf("invalid expected value %q: %w", expected, err)
	}
	val, err := lookupField(data, field)
	if err != nil {
		return err
	}
	got, ok := val.(float64)
	if !ok {
		return fmt.Errorf("field '%s' is not a number: %v", field, val)
	}
	if math.Abs(got-want) > 1e-6*(1+math.Abs(want)) {
		return fmt.Errorf("field '%s' is %v, want approximately %v", field, got, want)
	}
	return nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	fullErrorText := testCtx.LastOutput
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}

	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}
	return nil
}

// theFileShouldExist verifies a file was written.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.resolvePath(filename)
	if !testutil.FileExists(path) {
		return fmt.Errorf("file %s does not exist", path)
	}
	return nil
}

// theFileShouldContain verifies a file's content.
func (testCtx *TestContext) theFileShouldContain(filename, content string) error {
	path := testCtx.resolvePath(filename)
	data, err := os.ReadFile(path) //nolint:gosec // G304: Test file read with controlled paths
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), content) {
		return fmt.Errorf("file %s does not contain '%s'\nContent: %s", path, content, string(data))
	}
	return nil
}

// aDatasetFileCopiedFrom copies a bundled dataset into the temp directory.
func (testCtx *TestContext) aDatasetFileCopiedFrom(name, fixture string) error {
	src := filepath.Join(testCtx.DatasetsDir, fixture)
	dst := testCtx.TempPath(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy fixture %s: %w", fixture, err)
	}
	return nil
}

// aSyntheticDataset writes a noisy perspective dataset into the temp directory.
func (testCtx *TestContext) aSyntheticDataset(name string, count, train int, sigma float64) error {
	opts := correspondence.DefaultSyntheticOptions()
	opts.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	opts.Count = count
	opts.Train = train
	opts.NoiseSigma = sigma
	ds, err := correspondence.Synthesize(testutil.PerspectiveH, opts)
	if err != nil {
		return err
	}
	return testCtx.saveDataset(name, ds)
}

// aCollinearDataset writes a dataset whose source points lie on one line.
func (testCtx *TestContext) aCollinearDataset(name string) error {
	return testCtx.saveDataset(name, testutil.CollinearDataset())
}

// aScaledDataset writes pairs related by a uniform scale.
func (testCtx *TestContext) aScaledDataset(name string, factor float64) error {
	ds := &correspondence.Dataset{Name: "scaled", Train: 4}
	for _, p := range []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 2, Y: 3}, {X: -1, Y: 2}} {
		ds.Source = append(ds.Source, p)
		ds.Destination = append(ds.Destination, p.Mul(factor))
	}
	return testCtx.saveDataset(name, ds)
}

func (testCtx *TestContext) saveDataset(name string, ds *correspondence.Dataset) error {
	path := testCtx.TempPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return correspondence.Save(path, ds)
}

// theEnvironmentVariableIsSetTo sets an environment variable for subsequent commands.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, testCtx.substituteVariables(value))
	return nil
}

// aConfigFileWithContent writes a config file into the temp directory.
func (testCtx *TestContext) aConfigFileWithContent(name string, content *godog.DocString) error {
	return os.WriteFile(testCtx.TempPath(name), []byte(content.Content), 0o600)
}

// theOutputShouldContainUsageInformation verifies help output.
func (testCtx *TestContext) theOutputShouldContainUsageInformation() error {
	for _, want := range []string{"Usage:", "Flags:"} {
		if err := testCtx.theOutputShouldContain(want); err != nil {
			return err
		}
	}
	return nil
}

// theValidationRMSShouldBeBelow checks the validation RMS of a JSON report.
func (testCtx *TestContext) theValidationRMSShouldBeBelow(limit float64) error {
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	val, err := lookupField(data, "validation.rms")
	if err != nil {
		return err
	}
	if rms, ok := val.(float64); !ok || rms >= limit {
		return fmt.Errorf("validation RMS %v is not below %v", val, limit)
	}
	return nil
}

// theHMatrixShouldBe compares the "h" field of a JSON report with 9 row-major values.
func (testCtx *TestContext) theHMatrixShouldBe(values string) error {
	want, err := parseMatrix(values)
	if err != nil {
		return err
	}
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	for i := range 3 {
		for j := range 3 {
			if err := checkApproximately(data, fmt.Sprintf("h.%d.%d", i, j), strconv.FormatFloat(want[i][j], 'g', -1, 64)); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseMatrix(values string) (homography.Matrix, error) {
	fields := strings.Split(values, ",")
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return homography.Matrix{}, err
		}
		vals = append(vals, v)
	}
	return homography.FromSlice(vals)
}

// registerCommandSteps registers command execution steps.
func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the homest binary is available$`, testCtx.theHomestBinaryIsAvailable)
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^I run "([^"]*)" capturing stdout$`, testCtx.iRunCommandCapturingStdout)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}

// registerOutputSteps registers output verification steps.
func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be approximately ([-+0-9.eE]+)$`, testCtx.theJSONFieldShouldBeApproximately)
	sc.Step(`^the validation RMS should be below ([0-9.eE-]+)$`, testCtx.theValidationRMSShouldBeBelow)
	sc.Step(`^H should be approximately "([^"]*)"$`, testCtx.theHMatrixShouldBe)
	sc.Step(`^the output should contain usage information$`, testCtx.theOutputShouldContainUsageInformation)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
}

// registerFileSteps registers dataset and file steps.
func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a dataset file "([^"]*)" copied from "([^"]*)"$`, testCtx.aDatasetFileCopiedFrom)
	sc.Step(`^a synthetic dataset "([^"]*)" with (\d+) pairs, (\d+) for training and noise ([0-9.]+)$`,
		testCtx.aSyntheticDataset)
	sc.Step(`^a collinear dataset "([^"]*)"$`, testCtx.aCollinearDataset)
	sc.Step(`^a dataset "([^"]*)" scaled by ([0-9.]+)$`, testCtx.aScaledDataset)
	sc.Step(`^a config file "([^"]*)" with:$`, testCtx.aConfigFileWithContent)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

// RegisterCommonSteps registers all common step definitions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerFileSteps(sc)
}
