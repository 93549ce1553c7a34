package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/global"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/toolkit"
	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"
)

const (
	feedFormatRSS  = "rss"
	feedFormatAtom = "atom"
	feedFormatJSON = "json"
)

func init() {
	caddy.RegisterModule(LinkListToFeed{})
	httpcaddyfile.RegisterHandlerDirective("linklist_to_feed", linkListToFeedParseCaddyfile)
	httpcaddyfile.RegisterDirectiveOrder(
		"linklist_to_feed", httpcaddyfile.Before, "templates",
	)
}

// LinkListToFeed is an HTTP middleware module which will convert a link list
// response document into an RSS, Atom, or JSON feed, having one feed entry per
// item in the document.
type LinkListToFeed struct {

	// Format to output the feed as, either `rss`, `atom`, or `json`. Defaults
	// to `atom`.
	Format string `json:"format"`

	// Optional name to provide in the output feed under author metadata.
	AuthorName string `json:"author_name"`

	// Optional email to provide in the output feed under author metadata.
	AuthorEmail string `json:"author_email"`

	// Optional URL in format `[scheme://host[:port]]/path` to use as the link
	// of the feed. If not given then it will be inferred from the request.
	BaseURL string `json:"base_url"`
	baseURL *url.URL

	// Optional URL which hub-only items will be linked to, with the item's
	// name appended. If not given then hub-only items are left out of the
	// feed.
	HubURL string `json:"hub_url,omitempty"`

	// Label given to each parsed document, used as the feed title. May contain
	// placeholders. Default: `{http.request.uri.path.file}`
	SourceLabel string `json:"source_label,omitempty"`

	// How long parsed documents are cached for. Default: 5m
	CacheTTL caddy.Duration `json:"cache_ttl,omitempty"`

	// Parser options. If not given then the options configured in the global
	// `linksplit` option are used.
	Parser *global.ParserConfig `json:"parser,omitempty"`

	parser linklist.CachedParser
	logger *zap.Logger
}

var _ caddyhttp.MiddlewareHandler = (*LinkListToFeed)(nil)

func (LinkListToFeed) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.linklist_to_feed",
		New: func() caddy.Module { return new(LinkListToFeed) },
	}
}

func (f *LinkListToFeed) setup(app *global.App) error {
	f.Format = strings.ToLower(f.Format)
	if f.Format == "" {
		f.Format = feedFormatAtom
	}

	if f.SourceLabel == "" {
		f.SourceLabel = defaultSourceLabel
	}

	if f.CacheTTL == 0 {
		f.CacheTTL = caddy.Duration(defaultCacheTTL)
	}

	if f.BaseURL != "" {
		var err error
		if f.baseURL, err = url.Parse(f.BaseURL); err != nil {
			return fmt.Errorf("parsing BaseURL: %w", err)
		}
	}

	parserCfg := app.Parser
	if f.Parser != nil {
		parserCfg = *f.Parser
	}
	f.parser = linklist.CachedParser{
		Parser: linklist.NewParser(parserCfg.Opts()),
		Cache:  linklist.NewMemoryCache(nil),
		TTL:    time.Duration(f.CacheTTL),
	}

	return nil
}

func (f *LinkListToFeed) Provision(ctx caddy.Context) error {
	f.logger = ctx.Logger()

	app, err := global.Get(ctx)
	if err != nil {
		return err
	}

	return f.setup(app)
}

func (f *LinkListToFeed) Validate() error {
	switch strings.ToLower(f.Format) {
	case feedFormatRSS, feedFormatAtom, feedFormatJSON, "":
	default:
		return fmt.Errorf("invalid feed format %q", f.Format)
	}

	if f.Parser != nil {
		if err := f.Parser.Validate(); err != nil {
			return fmt.Errorf("validating parser: %w", err)
		}
	}

	return nil
}

func (f *LinkListToFeed) Cleanup() error {
	if f.parser.Cache == nil {
		return nil
	}

	if err := f.parser.Cache.Close(); err != nil {
		return fmt.Errorf("closing the cache: %w", err)
	}
	return nil
}

func (f *LinkListToFeed) ServeHTTP(
	rw http.ResponseWriter, r *http.Request, next caddyhttp.Handler,
) error {
	buf, bufDone := toolkit.GetBuffer()
	defer bufDone()

	shouldBuf := func(int, http.Header) bool { return true }

	rec := caddyhttp.NewResponseRecorder(rw, buf, shouldBuf)
	if err := next.ServeHTTP(rec, r); err != nil || !rec.Buffered() {
		return err
	}

	// the response recorder still writes the headers, some of which will
	// conflict.
	rec.Header().Del("Content-Length")
	rec.Header().Del("Accept-Ranges")
	rec.Header().Del("Etag")

	buf = rec.Buffer() // probably redundant, but just in case

	var (
		repl    = r.Context().Value(caddy.ReplacerCtxKey).(*caddy.Replacer)
		source  = repl.ReplaceAll(f.SourceLabel, "")
		baseURL = f.baseURL
		err     error
	)

	if baseURL == nil {
		reqURIStr, ok := repl.GetString("http.request.orig_uri")
		if !ok {
			return errors.New("Placeholder http.request.orig_uri not found in context")
		}

		if baseURL, err = url.Parse(reqURIStr); err != nil {
			return fmt.Errorf("parsing req url %q: %w", reqURIStr, err)
		}

		if baseURL.Host == "" {
			baseURL.Host = r.Host
		}

		if baseURL.Scheme == "" {
			baseURL.Scheme, _ = repl.GetString("http.request.scheme")
		}
	}

	doc, cached := f.parser.Parse(toolkit.DecodeText(buf.Bytes()), source)

	f.logger.Debug(
		"Translating link list to feed",
		zap.String("source", source),
		zap.String("format", f.Format),
		zap.Int("items", doc.ItemCount()),
		zap.Bool("cached", cached),
	)

	translator := linklist.FeedTranslator{
		BaseURL:     baseURL,
		HubURL:      f.HubURL,
		AuthorName:  f.AuthorName,
		AuthorEmail: f.AuthorEmail,
	}

	switch f.Format {
	case feedFormatRSS:
		rw.Header().Set("Content-Type", "application/rss+xml")
		return translator.ToRSS(rw, doc)

	case feedFormatAtom:
		rw.Header().Set("Content-Type", "application/atom+xml")
		return translator.ToAtom(rw, doc)

	case feedFormatJSON:
		rw.Header().Set("Content-Type", "application/feed+json")
		return translator.ToJSON(rw, doc)

	default:
		return fmt.Errorf("invalid feed format %q", f.Format)
	}
}

// linkListToFeedParseCaddyfile sets up the handler from Caddyfile tokens.
// Syntax:
//
//	linklist_to_feed [<matcher>] {
//		format <format>
//		author_name <author name>
//		author_email <author email>
//		base_url <url>
//		hub_url <url>
//		source_label <label>
//		cache_ttl <duration>
//		parser {
//			// see the linksplit global option
//		}
//	}
func linkListToFeedParseCaddyfile(
	h httpcaddyfile.Helper,
) (
	caddyhttp.MiddlewareHandler, error,
) {
	h.Next() // consume directive name
	f := new(LinkListToFeed)
	for h.NextBlock(0) {
		switch h.Val() {
		case "format":
			if !h.Args(&f.Format) {
				return nil, h.ArgErr()
			}
		case "author_name":
			if !h.Args(&f.AuthorName) {
				return nil, h.ArgErr()
			}
		case "author_email":
			if !h.Args(&f.AuthorEmail) {
				return nil, h.ArgErr()
			}
		case "base_url":
			if !h.Args(&f.BaseURL) {
				return nil, h.ArgErr()
			}
		case "hub_url":
			if !h.Args(&f.HubURL) {
				return nil, h.ArgErr()
			}
		case "source_label":
			if !h.Args(&f.SourceLabel) {
				return nil, h.ArgErr()
			}
		case "cache_ttl":
			if !h.NextArg() {
				return nil, h.ArgErr()
			}

			ttl, err := caddy.ParseDuration(h.Val())
			if err != nil {
				return nil, fmt.Errorf("parsing %q as cache_ttl: %w", h.Val(), err)
			}
			f.CacheTTL = caddy.Duration(ttl)
		case "parser":
			f.Parser = new(global.ParserConfig)
			if err := f.Parser.UnmarshalCaddyfile(h.Dispenser); err != nil {
				return nil, fmt.Errorf("unmarshaling parser: %w", err)
			}
		default:
			return nil, h.Errf("unknown subdirective %q", h.Val())
		}
	}
	return f, nil
}
