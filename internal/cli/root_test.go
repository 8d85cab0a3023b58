package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"migrate"},
		{"user", "register"},
		{"user", "add-funds"},
		{"store", "create"},
		{"book", "add"},
		{"book", "add-stock"},
		{"book", "set-price"},
		{"orders"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// run executes one command line against the sqlite file at path.
func run(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BCRYPT_COST", "4")
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--driver", "sqlite", "--sqlite-path", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.db")

	out, err := run(t, path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema applied")

	_, err = run(t, path, "user", "register", "seller", "--password", "pw")
	require.NoError(t, err)
	_, err = run(t, path, "store", "create", "s1", "--owner", "seller")
	require.NoError(t, err)
	_, err = run(t, path, "book", "add", "b1", "--owner", "seller", "--store", "s1",
		"--price", "12", "--stock", "4", "--info", `{"title":"Dune"}`)
	require.NoError(t, err)

	out, err = run(t, path, "book", "add-stock", "b1", "--owner", "seller", "--store", "s1", "--delta", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "b1 stock 3")

	out, err = run(t, path, "--format", "json", "book", "set-price", "b1", "--owner", "seller", "--store", "s1", "--price", "15")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 15, got["price"])

	out, err = run(t, path, "user", "add-funds", "seller", "--password", "pw", "--amount", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "seller balance 40")
}

func TestCommandErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.db")

	_, err := run(t, path, "store", "create", "s1", "--owner", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UserNotFound")

	_, err = run(t, path, "user", "register", "u1", "--password", "pw")
	require.NoError(t, err)
	_, err = run(t, path, "orders", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UserHasNoOrders")

	_, err = run(t, path, "orders", "--store", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreNotFound")
}
