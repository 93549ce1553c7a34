package handlers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/global"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/toolkit"
	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp/templates"
	"go.uber.org/zap"
)

// The implementation here is heavily based on the implementation of the
// `templates` module:
// https://github.com/caddyserver/caddy/blob/350ad38f63f7a49ceb3821c58d689b85a27ec4e5/modules/caddyhttp/templates/templates.go

const (
	defaultSourceLabel = "{http.request.uri.path.file}"
	defaultCacheTTL    = 5 * time.Minute
)

var defaultLinkListContentTypes = []string{"text/plain"}

func init() {
	caddy.RegisterModule(LinkList{})
	httpcaddyfile.RegisterHandlerDirective("linklist", linkListParseCaddyfile)
	httpcaddyfile.RegisterDirectiveOrder(
		"linklist", httpcaddyfile.Before, "templates",
	)
}

// LinkList is an HTTP middleware module which will render link list text
// documents, as exported by catalog tools, as HTML documents, using
// user-provided templates to do so.
//
// Only responses with a matching Content-Type will be modified by this module.
type LinkList struct {

	// Path to the template which will be used to render the HTML page, relative
	// to the `file_root`.
	//
	// The template will be rendered with these extra data fields:
	//
	// ##### `.Title`
	//
	// The source label of the document, by default the file name.
	//
	// ##### `.Body`
	//
	// A string containing all rendered HTML DOM elements.
	//
	// ##### `.Document`
	//
	// The parsed document itself, with `.Sections`, each having a `.Title`
	// and `.Items`.
	//
	TemplatePath string `json:"template"`

	// Path to a template which will be used for rendering each item. If not
	// given then items will be rendered as list elements containing the
	// item's name, author and license, and a link.
	//
	// The template will be rendered with these extra data fields:
	//
	// ##### `.Section`
	//
	// The section the item belongs to.
	//
	// ##### `.Item`
	//
	// The item itself, having `.Name`, `.URL`, `.Author`, and `.License`
	// fields. `.URL` is empty for items which are only available on a hub.
	ItemTemplatePath string `json:"item_template,omitempty"`

	// The root path from which to load files. Default is `{http.vars.root}` if
	// set, or current working directory otherwise.
	FileRoot string `json:"file_root,omitempty"`

	// The template action delimiters. If set, must be precisely two elements:
	// the opening and closing delimiters. Default: `["{{", "}}"]`
	Delimiters []string `json:"delimiters,omitempty"`

	// Content-Type prefixes of responses which will be rendered. Default:
	// `["text/plain"]`
	ContentTypes []string `json:"content_types,omitempty"`

	// Label given to each parsed document, may contain placeholders. Default:
	// `{http.request.uri.path.file}`
	SourceLabel string `json:"source_label,omitempty"`

	// How long parsed documents are cached for. Default: 5m
	CacheTTL caddy.Duration `json:"cache_ttl,omitempty"`

	// Parser options. If not given then the options configured in the global
	// `linksplit` option are used.
	Parser *global.ParserConfig `json:"parser,omitempty"`

	// If given then the number of items found in each rendered document will
	// be observed into this global histogram.
	Metric *global.HistogramRef `json:"metric,omitempty"`

	parser linklist.CachedParser
	logger *zap.Logger
}

var _ caddyhttp.MiddlewareHandler = (*LinkList)(nil)

func (LinkList) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.linklist",
		New: func() caddy.Module { return new(LinkList) },
	}
}

// setup fills in defaults and initializes the parser, using the given App for
// anything not configured on the LinkList itself.
func (l *LinkList) setup(app *global.App) error {
	if l.FileRoot == "" {
		l.FileRoot = "{http.vars.root}"
	}

	if len(l.Delimiters) == 0 {
		l.Delimiters = []string{"{{", "}}"}
	}

	if len(l.ContentTypes) == 0 {
		l.ContentTypes = defaultLinkListContentTypes
	}

	if l.SourceLabel == "" {
		l.SourceLabel = defaultSourceLabel
	}

	if l.CacheTTL == 0 {
		l.CacheTTL = caddy.Duration(defaultCacheTTL)
	}

	parserCfg := app.Parser
	if l.Parser != nil {
		parserCfg = *l.Parser
	}

	if l.Metric != nil {
		if err := l.Metric.Provision(app.Metrics); err != nil {
			return fmt.Errorf("provisioning metric: %w", err)
		}
	}

	l.parser = linklist.CachedParser{
		Parser: linklist.NewParser(parserCfg.Opts()),
		Cache:  linklist.NewMemoryCache(nil),
		TTL:    time.Duration(l.CacheTTL),
	}

	return nil
}

func (l *LinkList) Provision(ctx caddy.Context) error {
	l.logger = ctx.Logger()

	app, err := global.Get(ctx)
	if err != nil {
		return err
	}

	return l.setup(app)
}

// Validate ensures l has a valid configuration.
func (l *LinkList) Validate() error {
	if l.TemplatePath == "" {
		return errors.New("TemplatePath is required")
	}

	if len(l.Delimiters) != 0 && len(l.Delimiters) != 2 {
		return fmt.Errorf("delimiters must consist of exactly two elements: opening and closing")
	}

	if l.Parser != nil {
		if err := l.Parser.Validate(); err != nil {
			return fmt.Errorf("validating parser: %w", err)
		}
	}

	return nil
}

func (l *LinkList) Cleanup() error {
	if l.parser.Cache == nil {
		return nil
	}

	if err := l.parser.Cache.Close(); err != nil {
		return fmt.Errorf("closing the cache: %w", err)
	}
	return nil
}

func (l *LinkList) matchesContentType(ct string) bool {
	for _, prefix := range l.ContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (l *LinkList) render(
	into io.Writer,
	ctx *templates.TemplateContext,
	osFS fs.FS,
	tplPath string,
	payload any,
) error {
	tplStr, err := fs.ReadFile(osFS, tplPath)
	if err != nil {
		return fmt.Errorf("loading template: %w", err)
	}

	tpl := ctx.NewTemplate(tplPath).Delims(l.Delimiters[0], l.Delimiters[1])
	if _, err := tpl.Parse(string(tplStr)); err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	if err := tpl.Execute(into, payload); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}

	return nil
}

func (l *LinkList) ServeHTTP(
	rw http.ResponseWriter, r *http.Request, next caddyhttp.Handler,
) error {
	buf, bufDone := toolkit.GetBuffer()
	defer bufDone()

	// We only want to buffer and work on responses which are link lists.
	shouldBuf := func(status int, header http.Header) bool {
		return l.matchesContentType(header.Get("Content-Type"))
	}

	rec := caddyhttp.NewResponseRecorder(rw, buf, shouldBuf)
	if err := next.ServeHTTP(rec, r); err != nil || !rec.Buffered() {
		return err
	}

	buf = rec.Buffer() // probably redundant, but just in case

	var (
		repl    = r.Context().Value(caddy.ReplacerCtxKey).(*caddy.Replacer)
		rootDir = repl.ReplaceAll(l.FileRoot, ".")
		source  = repl.ReplaceAll(l.SourceLabel, "")
		osFS    = os.DirFS(rootDir)
		httpFS  = http.Dir(rootDir)
		ctx     = &templates.TemplateContext{
			Root:       httpFS,
			Req:        r,
			RespHeader: templates.WrappedHeader{Header: rec.Header()},
		}
	)

	doc, cached := l.parser.Parse(toolkit.DecodeText(buf.Bytes()), source)

	l.logger.Debug(
		"Parsed link list",
		zap.String("source", source),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("items", doc.ItemCount()),
		zap.Bool("cached", cached),
	)

	if l.Metric != nil {
		l.Metric.Observe(r.Context(), float64(doc.ItemCount()))
	}

	translator := linklist.HTMLTranslator{}

	if l.ItemTemplatePath != "" {
		translator.RenderItem = func(
			w io.Writer, section linklist.Section, item linklist.Item,
		) error {
			payload := struct {
				*templates.TemplateContext
				Section linklist.Section
				Item    linklist.Item
			}{
				ctx, section, item,
			}

			return l.render(w, ctx, osFS, l.ItemTemplatePath, payload)
		}
	}

	translated, err := translator.Translate(doc)
	if err != nil {
		return fmt.Errorf("translating link list: %w", err)
	}

	payload := struct {
		*templates.TemplateContext
		linklist.HTML
		Document linklist.Document
	}{
		ctx, translated, doc,
	}

	buf.Reset()
	if err := l.render(
		buf, ctx, osFS, l.TemplatePath, payload,
	); err != nil {
		// templates may return a custom HTTP error to be propagated to the
		// client, otherwise for any other error we assume the template is
		// broken
		var handlerErr caddyhttp.HandlerError
		if errors.As(err, &handlerErr) {
			return handlerErr
		}

		l.logger.Warn(
			"Rendering link list template failed",
			zap.String("source", source),
			zap.String("template", l.TemplatePath),
			zap.Error(err),
		)
		return caddyhttp.Error(http.StatusInternalServerError, err)
	}

	rec.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	rec.Header().Del("Accept-Ranges") // we don't know ranges for dynamically-created content
	rec.Header().Del("Last-Modified") // useless for dynamic content since it's always changing

	// we don't know a way to quickly generate etag for dynamic content,
	// and weak etags still cause browsers to rely on it even after a
	// refresh, so disable them until we find a better way to do this
	rec.Header().Del("Etag")

	// The Content-Type was originally text/plain, but now it will be
	// text/html. Deleting here will cause Caddy to do an auto-detect of the
	// Content-Type, so it will even get the charset properly set.
	rec.Header().Del("Content-Type")

	return rec.WriteResponse()
}

// linkListParseCaddyfile sets up the handler from Caddyfile tokens. Syntax:
//
//	linklist [<matcher>] {
//	    template <path>
//	    item_template <path>
//	    between <open_delim> <close_delim>
//	    root <path>
//	    content_types <prefix> [<prefix>...]
//	    source_label <label>
//	    cache_ttl <duration>
//	    parser {
//	        // see the linksplit global option
//	    }
//	    metric <histogram name> {
//	        label <name> <value>
//	    }
//	}
func linkListParseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	h.Next() // consume directive name
	l := new(LinkList)
	for h.NextBlock(0) {
		switch h.Val() {
		case "template":
			if !h.Args(&l.TemplatePath) {
				return nil, h.ArgErr()
			}
		case "item_template":
			if !h.Args(&l.ItemTemplatePath) {
				return nil, h.ArgErr()
			}
		case "root":
			if !h.Args(&l.FileRoot) {
				return nil, h.ArgErr()
			}
		case "between":
			l.Delimiters = h.RemainingArgs()
			if len(l.Delimiters) != 2 {
				return nil, h.ArgErr()
			}
		case "content_types":
			l.ContentTypes = h.RemainingArgs()
			if len(l.ContentTypes) == 0 {
				return nil, h.ArgErr()
			}
		case "source_label":
			if !h.Args(&l.SourceLabel) {
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
			l.CacheTTL = caddy.Duration(ttl)
		case "parser":
			l.Parser = new(global.ParserConfig)
			if err := l.Parser.UnmarshalCaddyfile(h.Dispenser); err != nil {
				return nil, fmt.Errorf("unmarshaling parser: %w", err)
			}
		case "metric":
			l.Metric = new(global.HistogramRef)
			if err := l.Metric.UnmarshalCaddyfile(h.Dispenser); err != nil {
				return nil, fmt.Errorf("unmarshaling metric: %w", err)
			}
		default:
			return nil, h.Errf("unknown subdirective %q", h.Val())
		}
	}
	return l, nil
}
