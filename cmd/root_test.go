package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"run", "serve", "runs", "mappings"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestRunCommandFlags(t *testing.T) {
	for _, name := range []string{"input", "mappings", "sheet", "limit", "concurrency", "output", "no-store"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}

func TestRunsSubcommands(t *testing.T) {
	subs := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		subs[c.Name()] = true
	}
	assert.True(t, subs["list"])
	assert.True(t, subs["show"])

	require.NotNil(t, runsListCmd.Flags().Lookup("status"))
	require.NotNil(t, runsListCmd.Flags().Lookup("limit"))
}
