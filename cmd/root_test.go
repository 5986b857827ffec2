package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(cmds []*cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd.Commands())
	for _, name := range []string{"discover", "candidates", "presets", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "screenfree", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDiscoverCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(discoverCmd.Commands())
	for _, name := range []string{"run", "scrape", "status"} {
		assert.True(t, names[name], "expected discover subcommand %q not found", name)
	}
}

func TestCandidatesCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(candidatesCmd.Commands())
	for _, name := range []string{"list", "accept", "reject", "maybe", "outreach"} {
		assert.True(t, names[name], "expected candidates subcommand %q not found", name)
	}
}

func TestDiscoverRunCommand_Flags(t *testing.T) {
	flag := discoverRunCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)

	for _, name := range []string{"preset", "country", "dry-run"} {
		assert.NotNil(t, discoverRunCmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCandidatesReject_ReasonFlag(t *testing.T) {
	assert.NotNil(t, candidatesRejectCmd.Flags().Lookup("reason"))
	assert.Error(t, candidatesRejectCmd.Args(candidatesRejectCmd, nil))
}
