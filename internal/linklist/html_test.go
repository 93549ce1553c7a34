package linklist

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDoc = Document{
	SourceName: "export.txt",
	Sections: []Section{
		{
			Title: "Cats & Dogs",
			Items: []Item{
				{
					Name:    "toolA",
					URL:     "https://example.com/a?x=1&y=2",
					Author:  "Alice",
					License: "MIT",
				},
				{Name: "toolC.latest", URL: NoURL},
			},
		},
		{
			Title: "Scenes",
			Items: []Item{{Name: "<b>", URL: "https://example.com/b"}},
		},
	},
}

func TestHTMLTranslator(t *testing.T) {
	t.Parallel()

	t.Run("default", func(t *testing.T) {
		t.Parallel()

		got, err := HTMLTranslator{}.Translate(testDoc)
		require.NoError(t, err)
		assert.Equal(t, "export.txt", got.Title)
		assert.Equal(t,
			"<h2>Cats &amp; Dogs</h2>\n"+
				"<ul>\n"+
				"<li><span>toolA</span> <small>By: Alice • License: MIT</small>"+
				" <a href=\"https://example.com/a?x=1&amp;y=2\" target=\"_blank\" rel=\"noopener noreferrer\">Download</a></li>\n"+
				"<li><span>toolC.latest</span> <em>Available on Hub</em></li>\n"+
				"</ul>\n"+
				"<h2>Scenes</h2>\n"+
				"<ul>\n"+
				"<li><span>&lt;b&gt;</span>"+
				" <a href=\"https://example.com/b\" target=\"_blank\" rel=\"noopener noreferrer\">Download</a></li>\n"+
				"</ul>\n",
			got.Body,
		)
	})

	t.Run("labels", func(t *testing.T) {
		t.Parallel()

		got, err := HTMLTranslator{
			LinkLabel: "Get",
			HubLabel:  "Hub",
		}.Translate(testDoc)
		require.NoError(t, err)
		assert.Contains(t, got.Body, ">Get</a>")
		assert.Contains(t, got.Body, "<em>Hub</em>")
	})

	t.Run("render callbacks", func(t *testing.T) {
		t.Parallel()

		got, err := HTMLTranslator{
			RenderSection: func(w io.Writer, s Section) error {
				_, err := fmt.Fprintf(w, "[%s]\n", s.Title)
				return err
			},
			RenderItem: func(w io.Writer, s Section, i Item) error {
				_, err := fmt.Fprintf(w, "%s/%s\n", s.Title, i.Name)
				return err
			},
		}.Translate(testDoc)
		require.NoError(t, err)
		assert.Equal(t,
			"[Cats & Dogs]\n<ul>\nCats & Dogs/toolA\nCats & Dogs/toolC.latest\n</ul>\n"+
				"[Scenes]\n<ul>\nScenes/<b>\n</ul>\n",
			got.Body,
		)
	})

	t.Run("render error", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		_, err := HTMLTranslator{
			RenderItem: func(io.Writer, Section, Item) error { return errBoom },
		}.Translate(testDoc)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		got, err := HTMLTranslator{}.Translate(Parse("", "empty.txt"))
		require.NoError(t, err)
		assert.Equal(t, HTML{Title: "empty.txt"}, got)
	})
}
