// Package functions holds template function modules which can be used within
// Caddy's templates handler.
package functions

import (
	"fmt"
	"text/template"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/global"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/toolkit"
	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp/templates"
)

func init() {
	caddy.RegisterModule(LinkList{})
	httpcaddyfile.RegisterDirective(
		"linklist_func",
		func(h httpcaddyfile.Helper) ([]httpcaddyfile.ConfigValue, error) {
			var f LinkList
			err := f.UnmarshalCaddyfile(h.Dispenser)
			return []httpcaddyfile.ConfigValue{{
				Class: "template_function", Value: f,
			}}, err
		},
	)
}

// LinkList provides the `linklist` template function, which parses a link
// list text document into its sections and items:
//
//	{{ $doc := linklist (include "export.txt") "export.txt" }}
//	{{ range $doc.Sections }}<h2>{{ .Title }}</h2>{{ end }}
//
// The second argument, the document's source name, is optional.
type LinkList struct {

	// Parser options. If not given then the options configured in the global
	// `linksplit` option are used.
	Parser *global.ParserConfig `json:"parser,omitempty"`

	parser *linklist.Parser
}

var _ templates.CustomFunctions = (*LinkList)(nil)

func (LinkList) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.templates.functions.linklist",
		New: func() caddy.Module { return new(LinkList) },
	}
}

func (f *LinkList) setup(app *global.App) {
	parserCfg := app.Parser
	if f.Parser != nil {
		parserCfg = *f.Parser
	}
	f.parser = linklist.NewParser(parserCfg.Opts())
}

func (f *LinkList) Provision(ctx caddy.Context) error {
	app, err := global.Get(ctx)
	if err != nil {
		return err
	}

	f.setup(app)
	return nil
}

func (f *LinkList) Validate() error {
	if f.Parser != nil {
		if err := f.Parser.Validate(); err != nil {
			return fmt.Errorf("validating parser: %w", err)
		}
	}
	return nil
}

func (f *LinkList) CustomTemplateFunctions() template.FuncMap {
	return template.FuncMap{
		"linklist": f.funcLinkList,
	}
}

func (f *LinkList) funcLinkList(
	input any, sourceName ...string,
) (
	linklist.Document, error,
) {
	if len(sourceName) > 1 {
		return linklist.Document{}, fmt.Errorf(
			"expected at most one source name, got %d", len(sourceName),
		)
	}

	var source string
	if len(sourceName) == 1 {
		source = sourceName[0]
	}

	var text string
	switch input := input.(type) {
	case []byte:
		text = toolkit.DecodeText(input)
	default:
		text = caddy.ToString(input)
	}

	return f.parser.Parse(text, source), nil
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler. Syntax:
//
//	linklist_func {
//		parser {
//			// see the linksplit global option
//		}
//	}
func (f *LinkList) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name

	for nesting := d.Nesting(); d.NextBlock(nesting); {
		v := d.Val()
		switch v {
		case "parser":
			f.Parser = new(global.ParserConfig)
			if err := f.Parser.UnmarshalCaddyfile(d); err != nil {
				return fmt.Errorf("unmarshaling parser: %w", err)
			}

		default:
			return fmt.Errorf("unknown directive %q", v)
		}
	}

	return nil
}
