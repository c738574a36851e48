package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/mindstream/internal/app"
	"github.com/ent0n29/mindstream/internal/config"
	"github.com/ent0n29/mindstream/internal/persona"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	t.Setenv("MEMORY_STORE_PATH", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("INFERENCE_MODE", "mock")
	t.Setenv("MEMORY_EMBEDDER", "hash")
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func seedHistory(t *testing.T, pairs ...[2]string) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	history, err := app.OpenLongTerm(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer history.Close()
	for _, p := range pairs {
		_, err := history.AddInteraction(context.Background(), p[0], p[1], nil)
		require.NoError(t, err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range NewRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "history", "profile"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestHistoryListAndSearch(t *testing.T) {
	setupEnv(t)
	seedHistory(t,
		[2]string{"what is the capital of france", "Paris."},
		[2]string{"recommend a jazz album", "Kind of Blue."},
	)

	out, err := run(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2 interactions in total")
	assert.Contains(t, out, "User: recommend a jazz album")
	assert.Contains(t, out, "Assistant: Paris.")

	out, err = run(t, "history", "search", "-n", "1", "jazz", "album")
	require.NoError(t, err)
	assert.Contains(t, out, "Kind of Blue.")
	assert.NotContains(t, out, "Paris.")
}

func TestHistoryClearRequiresConfirmation(t *testing.T) {
	setupEnv(t)
	seedHistory(t, [2]string{"hello", "hi there"}, [2]string{"bye", "see you"})

	_, err := run(t, "history", "clear")
	require.Error(t, err)

	out, err := run(t, "history", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 interactions")

	out, err = run(t, "history", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 0`)
}

func TestProfileRender(t *testing.T) {
	setupEnv(t)
	root := persona.DefaultTemplate()
	require.NoError(t, persona.Set(root, "user_profile.basic_info.name", "Mira"))
	path := filepath.Join(t.TempDir(), "persona.json")
	require.NoError(t, persona.WriteFile(path, root))

	out, err := run(t, "profile", "render", path)
	require.NoError(t, err)
	assert.Contains(t, out, "You call yourself Mira.")
}

func TestProfileGenerateRequiresChats(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "profile", "generate")
	require.Error(t, err)

	_, err = run(t, "profile", "generate", "--chats", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
