package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/global"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testLinkListBody = "Tools\n-----\ntoolA https://example.com/a.zip\ntoolC.latest\n"

func newTestRequest() *http.Request {
	r := httptest.NewRequest("GET", "https://links.example.com/export.txt", nil)
	ctx := context.WithValue(r.Context(), caddy.ReplacerCtxKey, caddy.NewReplacer())
	return r.WithContext(ctx)
}

func serveBody(contentType, body string) caddyhttp.Handler {
	return caddyhttp.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) error {
		rw.Header().Set("Content-Type", contentType)
		_, err := rw.Write([]byte(body))
		return err
	})
}

func TestLinkList_parseCaddyfile(t *testing.T) {
	t.Parallel()

	h := httpcaddyfile.Helper{Dispenser: caddyfile.NewTestDispenser(`
		linklist {
			template page.html
			item_template item.html
			root /srv
			between [[ ]]
			content_types text/plain text/x-links
			source_label {http.request.uri.path}
			cache_ttl 1m
			parser {
				rule_placement above
			}
			metric linksplit_items {
				label host {http.request.host}
			}
		}`)}

	mh, err := linkListParseCaddyfile(h)
	require.NoError(t, err)
	assert.Equal(t, &LinkList{
		TemplatePath:     "page.html",
		ItemTemplatePath: "item.html",
		FileRoot:         "/srv",
		Delimiters:       []string{"[[", "]]"},
		ContentTypes:     []string{"text/plain", "text/x-links"},
		SourceLabel:      "{http.request.uri.path}",
		CacheTTL:         caddy.Duration(time.Minute),
		Parser:           &global.ParserConfig{RulePlacement: global.RulePlacementAbove},
		Metric: &global.HistogramRef{
			Name:   "linksplit_items",
			Labels: map[string]string{"host": "{http.request.host}"},
		},
	}, mh)

	t.Run("unknown subdirective", func(t *testing.T) {
		h := httpcaddyfile.Helper{Dispenser: caddyfile.NewTestDispenser(`
			linklist {
				bogus
			}`)}
		_, err := linkListParseCaddyfile(h)
		assert.Error(t, err)
	})
}

func TestLinkList_setup(t *testing.T) {
	t.Parallel()

	l := &LinkList{TemplatePath: "page.html"}
	require.NoError(t, l.setup(&global.App{}))
	t.Cleanup(func() { l.Cleanup() })

	assert.NoError(t, l.Validate())
	assert.Equal(t, "{http.vars.root}", l.FileRoot)
	assert.Equal(t, []string{"{{", "}}"}, l.Delimiters)
	assert.Equal(t, defaultSourceLabel, l.SourceLabel)
	assert.Equal(t, caddy.Duration(defaultCacheTTL), l.CacheTTL)

	assert.True(t, l.matchesContentType("text/plain; charset=utf-8"))
	assert.False(t, l.matchesContentType("text/html"))

	t.Run("missing metric", func(t *testing.T) {
		l := &LinkList{
			TemplatePath: "page.html",
			Metric:       &global.HistogramRef{Name: "nope"},
		}
		assert.Error(t, l.setup(&global.App{}))
	})

	t.Run("invalid", func(t *testing.T) {
		assert.Error(t, (&LinkList{}).Validate())
		assert.Error(t, (&LinkList{
			TemplatePath: "page.html",
			Delimiters:   []string{"{{"},
		}).Validate())
		assert.Error(t, (&LinkList{
			TemplatePath: "page.html",
			Parser:       &global.ParserConfig{RulePlacement: "sideways"},
		}).Validate())
	})
}

func TestLinkList_ServeHTTP(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "page.html"),
		[]byte("<title>{{ .Title }}</title>{{ .Body }}{{ len .Document.Sections }}"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "item.html"),
		[]byte("<p>{{ .Section.Title }}: {{ .Item.Name }}</p>"),
		0o644,
	))

	newLinkList := func(t *testing.T, itemTemplate string) *LinkList {
		l := &LinkList{
			TemplatePath:     "page.html",
			ItemTemplatePath: itemTemplate,
			FileRoot:         root,
			SourceLabel:      "export.txt",
			logger:           zap.NewNop(),
		}
		require.NoError(t, l.setup(&global.App{}))
		t.Cleanup(func() { l.Cleanup() })
		return l
	}

	t.Run("rendered", func(t *testing.T) {
		t.Parallel()

		var (
			l  = newLinkList(t, "")
			rw = httptest.NewRecorder()
		)

		require.NoError(t, l.ServeHTTP(
			rw, newTestRequest(), serveBody("text/plain", testLinkListBody),
		))

		body := rw.Body.String()
		assert.Contains(t, body, "<title>export.txt</title>")
		assert.Contains(t, body, "<h2>Tools</h2>")
		assert.Contains(t, body, `<a href="https://example.com/a.zip"`)
		assert.Contains(t, body, "<span>toolC.latest</span> <em>Available on Hub</em>")
		assert.Contains(t, body, "</ul>\n1")
	})

	t.Run("item template", func(t *testing.T) {
		t.Parallel()

		var (
			l  = newLinkList(t, "item.html")
			rw = httptest.NewRecorder()
		)

		require.NoError(t, l.ServeHTTP(
			rw, newTestRequest(), serveBody("text/plain", testLinkListBody),
		))

		body := rw.Body.String()
		assert.Contains(t, body, "<p>Tools: toolA</p>")
		assert.Contains(t, body, "<p>Tools: toolC.latest</p>")
	})

	t.Run("delimiters", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, os.WriteFile(
			filepath.Join(root, "delims.html"),
			[]byte("[[ .Title ]] {{ raw }}"),
			0o644,
		))

		var (
			l = &LinkList{
				TemplatePath: "delims.html",
				FileRoot:     root,
				Delimiters:   []string{"[[", "]]"},
				SourceLabel:  "export.txt",
				logger:       zap.NewNop(),
			}
			rw = httptest.NewRecorder()
		)

		require.NoError(t, l.setup(&global.App{}))
		t.Cleanup(func() { l.Cleanup() })

		require.NoError(t, l.ServeHTTP(
			rw, newTestRequest(), serveBody("text/plain", testLinkListBody),
		))
		assert.Equal(t, "export.txt {{ raw }}", rw.Body.String())
	})

	t.Run("passthrough", func(t *testing.T) {
		t.Parallel()

		var (
			l  = newLinkList(t, "")
			rw = httptest.NewRecorder()
		)

		require.NoError(t, l.ServeHTTP(
			rw, newTestRequest(), serveBody("application/json", `{"a":1}`),
		))
		assert.Equal(t, `{"a":1}`, rw.Body.String())
	})
}

func TestLinkListToFeed(t *testing.T) {
	t.Parallel()

	t.Run("parseCaddyfile", func(t *testing.T) {
		t.Parallel()

		h := httpcaddyfile.Helper{Dispenser: caddyfile.NewTestDispenser(`
			linklist_to_feed {
				format RSS
				author_name Curator
				author_email curator@example.com
				base_url https://links.example.com/
				hub_url https://hub.example.com/p/
				source_label export.txt
				cache_ttl 2m
			}`)}

		mh, err := linkListToFeedParseCaddyfile(h)
		require.NoError(t, err)
		assert.Equal(t, &LinkListToFeed{
			Format:      "RSS",
			AuthorName:  "Curator",
			AuthorEmail: "curator@example.com",
			BaseURL:     "https://links.example.com/",
			HubURL:      "https://hub.example.com/p/",
			SourceLabel: "export.txt",
			CacheTTL:    caddy.Duration(2 * time.Minute),
		}, mh)

		f := mh.(*LinkListToFeed)
		require.NoError(t, f.Validate())
		require.NoError(t, f.setup(&global.App{}))
		t.Cleanup(func() { f.Cleanup() })
		assert.Equal(t, feedFormatRSS, f.Format)
		assert.Equal(t, 2*time.Minute, f.parser.TTL)
		assert.Equal(t, "links.example.com", f.baseURL.Host)
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, (&LinkListToFeed{Format: "xml"}).Validate())
	})

	t.Run("ServeHTTP", func(t *testing.T) {
		t.Parallel()

		var (
			f = &LinkListToFeed{
				Format:      feedFormatJSON,
				BaseURL:     "https://links.example.com/export.txt",
				SourceLabel: "export.txt",
				logger:      zap.NewNop(),
			}
			rw = httptest.NewRecorder()
		)

		require.NoError(t, f.setup(&global.App{}))
		t.Cleanup(func() { f.Cleanup() })
		assert.Equal(t, defaultCacheTTL, f.parser.TTL)

		require.NoError(t, f.ServeHTTP(
			rw, newTestRequest(), serveBody("text/plain", testLinkListBody),
		))

		assert.Equal(t, "application/feed+json", rw.Header().Get("Content-Type"))
		assert.Contains(t, rw.Body.String(), "https://example.com/a.zip")
		assert.NotContains(t, rw.Body.String(), "toolC.latest")

		t.Log("Checking that the parsed document was cached")
		doc, ok := f.parser.Cache.Get(linklist.CacheKey(testLinkListBody, "export.txt"))
		require.True(t, ok)
		assert.Equal(t, 2, doc.ItemCount())

		_, cached := f.parser.Parse(testLinkListBody, "export.txt")
		assert.True(t, cached)
	})
}
