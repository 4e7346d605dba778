package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, definition string) string {
	t.Helper()

	dir := t.TempDir()
	resources := filepath.Join(dir, "resources")
	require.NoError(t, os.Mkdir(resources, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resources, "posts.yaml"), []byte(definition), 0o644))

	cfg := "storage:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "pocket.db") + "\n" +
		"session:\n  secret: cli-test\n" +
		"hasher:\n  bcrypt_cost: 4\n" +
		"resources:\n  dir: " + resources + "\n"
	path := filepath.Join(dir, "pocket.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	userGroups = nil
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

const postsYAML = `
resource: posts
fields:
  title: { type: string, required: true }
permissions:
  "*": [read]
`

func TestValidate(t *testing.T) {
	path := writeProject(t, postsYAML)

	out, err := run(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "posts: 1 fields")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestValidateBadDefinition(t *testing.T) {
	path := writeProject(t, "resource: posts\nfields:\n  title: { type: uuid }\n")

	_, err := run(t, "validate", "--config", path)
	assert.Error(t, err)
}

func TestUsersCreateTokenList(t *testing.T) {
	path := writeProject(t, postsYAML)

	out, err := run(t, "users", "create", "--config", path, "--username", "root", "--password", "pw", "--groups", "admins,users")
	require.NoError(t, err)
	assert.Contains(t, out, "Username: root")
	assert.Contains(t, out, "Groups:   admins,users")

	_, err = run(t, "users", "create", "--config", path, "--username", "root", "--password", "pw")
	assert.Error(t, err, "usernames are unique across runs")

	out, err = run(t, "users", "token", "--config", path, "--username", "root", "--password", "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."), "token should be a JWT")

	_, err = run(t, "users", "token", "--config", path, "--username", "root", "--password", "nope")
	assert.Error(t, err)

	out, err = run(t, "users", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "root")
	assert.Contains(t, out, "admins,users")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pocket dev"))
}
