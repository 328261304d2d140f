package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(func(string) error { return nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRunsServeWithConfigPath(t *testing.T) {
	var got string
	cmd := NewRootCommand(func(path string) error {
		got = path
		return nil
	})
	cmd.SetArgs([]string{"--config", "/etc/approvalbot.yaml"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/etc/approvalbot.yaml", got)
}

func TestCatalogListsTemplates(t *testing.T) {
	out, err := execute(t, "", "catalog")
	require.NoError(t, err)
	lines := strings.Fields(out)
	assert.Len(t, lines, 16)
	assert.Contains(t, lines, "approvalBase")
	assert.Contains(t, lines, "welcome")
}

func TestRenderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"productName":"Disco"}`), 0o600))

	out, err := execute(t, "", "render", "--card", "notInstalled", "--data", path)
	require.NoError(t, err)
	assert.Equal(t, "Looks like you haven't used Disco in this team/chat", gjson.Get(out, "body.0.text").String())
}

func TestRenderFromStdin(t *testing.T) {
	out, err := execute(t, `{"name":"Part 1","description":"d","id":"1"}`, "render", "--card", "botSearchResult", "--data", "-")
	require.NoError(t, err)
	assert.Equal(t, "1", gjson.Get(out, "actions.0.data.id").String())
}

func TestRenderErrors(t *testing.T) {
	_, err := execute(t, "", "render", "--card", "bogus")
	require.EqualError(t, err, "Unknown card bogus")

	_, err = execute(t, "{}", "render", "--card", "notInstalled", "--data", "-")
	require.Error(t, err)

	_, err = execute(t, "", "render")
	require.Error(t, err)
}
