// Package global is used to set up a global linksplit App, which holds the
// options shared by all linksplit modules.
package global

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
)

// AppID is the ID of the App, as well as the name of its global option.
const AppID = "linksplit"

func init() {
	caddy.RegisterModule(App{})
	httpcaddyfile.RegisterGlobalOption(AppID, parseApp)
}

// App describes all global configuration options of the top-level [caddy.App]
// provided by this module.
type App struct {
	// Parser holds the default parser options used by all modules which don't
	// configure their own.
	Parser ParserConfig `json:"parser"`

	Metrics Metrics `json:"metrics"`
}

func (App) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  AppID,
		New: func() caddy.Module { return new(App) },
	}
}

func (a *App) Start() error { return nil }
func (a *App) Stop() error  { return nil }

func (a *App) Provision(ctx caddy.Context) error {
	if err := a.Metrics.provision(ctx); err != nil {
		return fmt.Errorf("provisioning metrics: %w", err)
	}
	return nil
}

// Validate ensures a has a valid configuration.
func (a *App) Validate() error {
	if err := a.Parser.Validate(); err != nil {
		return fmt.Errorf("validating parser: %w", err)
	}
	return nil
}

// Get returns the App loaded into the given Context. If the App was not
// configured then a zero App is provisioned and returned.
func Get(ctx caddy.Context) (*App, error) {
	appI, err := ctx.App(AppID)
	if err != nil {
		return nil, fmt.Errorf("loading %s app: %w", AppID, err)
	}
	return appI.(*App), nil
}

func (a *App) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name
	for d.NextBlock(0) {
		switch d.Val() {
		case "parser":
			if err := a.Parser.UnmarshalCaddyfile(d); err != nil {
				return fmt.Errorf("unmarshaling parser: %w", err)
			}
		case "metrics":
			if err := a.Metrics.UnmarshalCaddyfile(d); err != nil {
				return fmt.Errorf("unmarshaling metrics: %w", err)
			}
		default:
			return d.ArgErr()
		}
	}
	return nil
}

// parseApp is used to parse an App from a Caddyfile in the context of a global
// option. Syntax:
//
//	linksplit {
//		parser {
//			// all fields are optional, see ParserConfig
//			rule_min_length 4
//			rule_placement below
//		}
//
//		metrics {
//			histogram <name> { // all fields inside the block are optional
//				help <help/description of the metric>
//				buckets <float> [<float>...]
//				labels <labelName> [<labelName>...]
//			}
//
//			// multiple histograms may be specified, but they must have
//			// different names.
//			histogram <name>
//		}
//	}
func parseApp(d *caddyfile.Dispenser, existingVal any) (any, error) {
	if existingVal != nil {
		return nil, errors.New("linksplit previously defined")
	}

	a := new(App)
	if err := a.UnmarshalCaddyfile(d); err != nil {
		return nil, err
	}

	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("json marshaling App %+v: %w", a, err)
	}

	return httpcaddyfile.App{
		Name:  AppID,
		Value: json.RawMessage(b),
	}, nil
}
