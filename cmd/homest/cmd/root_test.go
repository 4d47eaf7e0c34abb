package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/homest/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "homest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"--help"})
	require.NoError(t, err)

	assert.Contains(t, output, "normalized Direct Linear Transform")
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"--version"})
	require.NoError(t, err)

	assert.Contains(t, output, "homest version")
	assert.Contains(t, output, "commit:")
}

func TestRootCommandSubcommands(t *testing.T) {
	subcommands := rootCmd.Commands()
	commandNames := make([]string, len(subcommands))
	for i, subcmd := range subcommands {
		commandNames[i] = subcmd.Name()
	}

	expectedCommands := []string{"estimate", "apply", "batch", "serve", "demo", "config"}
	for _, expected := range expectedCommands {
		assert.Contains(t, commandNames, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"--invalid-flag"})
	require.Error(t, err)
	assert.Contains(t, output, "unknown flag")
}

func TestRootCommandNoArgs(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{})
	require.NoError(t, err)
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandConfiguration(t *testing.T) {
	assert.True(t, rootCmd.HasSubCommands())
	for _, name := range []string{"config", "verbose", "log-level", "version"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing persistent flag %s", name)
	}
}

func TestRootCommandInvalidConfigFile(t *testing.T) {
	_, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"demo", "--config", "/nonexistent/homest.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

// executeCommandAndCaptureOutput runs cmd with args and returns everything
// written to stdout and stderr. Flags are reset afterwards because cobra
// keeps their values between executions.
func executeCommandAndCaptureOutput(t *testing.T, cmd *cobra.Command, args []string) (string, error) {
	t.Helper()
	t.Cleanup(func() { resetFlags(rootCmd) })

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return strings.TrimSpace(buf.String()), err
}

// executeCommandSplitOutput is like executeCommandAndCaptureOutput but keeps
// stdout separate from stderr.
func executeCommandSplitOutput(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() { resetFlags(rootCmd) })

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			defaults := strings.Trim(f.DefValue, "[]")
			if defaults == "" {
				_ = sv.Replace(nil)
			} else {
				_ = sv.Replace(strings.Split(defaults, ","))
			}
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeConfigFile writes a config file for --config. Values read from it stay
// in the global viper, so they are cleared again when the test ends.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "homest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	t.Cleanup(func() {
		_, _ = config.NewLoader().LoadWithFileWithoutValidation(empty)
	})
	return path
}
