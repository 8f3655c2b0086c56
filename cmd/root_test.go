package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "analyze", "runs", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "spendshield", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"department", "fiscal-year", "json"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s", name)
	}
	assert.Error(t, analyzeCmd.Args(analyzeCmd, nil))
	assert.NoError(t, analyzeCmd.Args(analyzeCmd, []string{"invoice.pdf"}))
}

func TestRunsCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}

func TestMigrateCommand_Flags(t *testing.T) {
	flag := migrateCmd.Flags().Lookup("reseed")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
