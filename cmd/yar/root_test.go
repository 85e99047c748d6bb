package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/yar/internal/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cmd *cobra.Command) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestAdminCommands(t *testing.T) {
	dbPathFlag = filepath.Join(t.TempDir(), "yar.db")
	t.Cleanup(func() { dbPathFlag = "" })

	out := run(t, newMigrateCmd())
	assert.True(t, strings.HasPrefix(out, fmt.Sprintf("schema version %d", store.LatestSchemaVersion())), out)

	out = run(t, newChannelsCmd())
	assert.Equal(t, "[]\n", out)

	out = run(t, newGCCmd())
	assert.Equal(t, "expired sessions: 0\nexpired messages: 0\n", out)
}
