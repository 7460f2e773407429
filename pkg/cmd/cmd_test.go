package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRootCmdStructure(t *testing.T) {
	cmd := NewRootCmd()

	require.Equal(t, "hud", cmd.Use)
	require.NotEmpty(t, cmd.Short)
	require.True(t, cmd.DisableAutoGenTag)

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}

	for _, name := range []string{"run", "replay", "status", "stop", "wait"} {
		require.True(t, subcommands[name], "expected subcommand %q", name)
	}
}

func TestNewRootCmdLogLevelFlag(t *testing.T) {
	cmd := NewRootCmd()

	flag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	require.Equal(t, "info", flag.DefValue)
}

func TestNewRootCmdHelp(t *testing.T) {
	cmd := NewRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "Available Commands:")
	require.Contains(t, out.String(), "run")
}

func TestNewRootCmdInvalidFlag(t *testing.T) {
	cmd := NewRootCmd()

	var errOut bytes.Buffer
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--does-not-exist"})

	require.Error(t, cmd.Execute())
}

func TestNewRootCmdRequiresSubcommandArgs(t *testing.T) {
	cmd := NewRootCmd()

	var errOut bytes.Buffer
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"run"})

	// run requires either --target or --pid; invoking it bare should fail
	// fast rather than attempt an attach.
	require.Error(t, cmd.Execute())
}
