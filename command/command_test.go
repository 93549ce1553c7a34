package command

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocText = "Tools\n" +
	"-----\n" +
	"toolA https://example.com/a.zip\n" +
	"toolB By: Someone License: MIT Link: https://example.com/b\n" +
	"toolC.latest\n"

func lines(ll ...string) string {
	return strings.Join(ll, "\n") + "\n"
}

func writeTestFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "export.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := &cobra.Command{Use: "linksplit"}
	setupCommand(cmd)

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCommand(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, testDocText)

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, path)
		require.NoError(t, err)
		assert.Equal(t,
			"# Tools\n"+
				"- toolA https://example.com/a.zip\n"+
				"- toolB [By: Someone • License: MIT] https://example.com/b\n"+
				"- toolC.latest (hub)\n"+
				"\n1 sections, 3 items\n",
			out,
		)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "--format", "json", "--source-label", "mine", path)
		require.NoError(t, err)

		var doc linklist.Document
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Equal(t, "mine", doc.SourceName)
		require.Len(t, doc.Sections, 1)
		assert.Equal(t, linklist.Item{
			Name:    "toolB",
			URL:     "https://example.com/b",
			Author:  "Someone",
			License: "MIT",
		}, doc.Sections[0].Items[1])
	})

	t.Run("html", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "-f", "html", path)
		require.NoError(t, err)
		assert.Contains(t, out, "<h2>Tools</h2>")
		assert.Contains(t, out, "<small>By: Someone • License: MIT</small>")
	})

	t.Run("rule options", func(t *testing.T) {
		t.Parallel()

		path := writeTestFile(t, "---\nTools\ntoolA https://example.com/a.zip\n")

		out, err := execute(t, path)
		require.NoError(t, err)
		assert.Equal(t, "\n0 sections, 0 items\n", out)

		out, err = execute(t, "--rule-above", "--rule-min-length", "3", path)
		require.NoError(t, err)
		assert.Contains(t, out, "# Tools\n- toolA https://example.com/a.zip\n")
	})

	t.Run("parser options", func(t *testing.T) {
		t.Parallel()

		path := writeTestFile(t, lines(
			"loose.zip",
			"Scenes Link: on the hub",
			"-----",
			"scene.pak",
			"other.zip",
		))

		out, err := execute(t, path)
		require.NoError(t, err)
		assert.Equal(t, "\n0 sections, 0 items\n", out)

		out, err = execute(t, "--untitled-section", "Misc", path)
		require.NoError(t, err)
		assert.Equal(t,
			"# Misc\n"+
				"- loose.zip (hub)\n"+
				"- Scenes (hub)\n"+
				"- other.zip (hub)\n"+
				"\n1 sections, 3 items\n",
			out,
		)

		out, err = execute(t,
			"--untitled-section", "Misc",
			"--allow-link-marker-titles",
			"--hub-suffixes", ".pak,.var",
			path,
		)
		require.NoError(t, err)
		assert.Equal(t,
			"# Misc\n"+
				"- Scenes (hub)\n"+
				"\n"+
				"# Scenes Link: on the hub\n"+
				"- scene.pak (hub)\n"+
				"\n2 sections, 2 items\n",
			out,
		)

		out, err = execute(t,
			"--untitled-section", "Misc",
			"--latest-markers", "scene",
			"--hub-suffixes", ".none",
			path,
		)
		require.NoError(t, err)
		assert.Equal(t,
			"# Misc\n"+
				"- Scenes (hub)\n"+
				"- scene.pak (hub)\n"+
				"\n1 sections, 2 items\n",
			out,
		)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t)
		assert.Error(t, err)

		_, err = execute(t, "--format", "xml", path)
		assert.Error(t, err)

		_, err = execute(t, "--rule-min-length", "-1", path)
		assert.Error(t, err)

		_, err = execute(t, filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})
}
