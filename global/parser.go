package global

import (
	"fmt"
	"strconv"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
)

// Possible values of ParserConfig.RulePlacement.
const (
	RulePlacementBelow = "below"
	RulePlacementAbove = "above"
)

// ParserConfig describes how link list text documents are parsed. All fields
// are optional.
type ParserConfig struct {

	// Minimum number of consecutive dashes a line must consist of to be
	// considered a header rule. Defaults to 4.
	RuleMinLength int `json:"rule_min_length,omitempty"`

	// Either `below` if header rules are placed below section titles, or
	// `above` if they are placed above them. Defaults to `below`.
	RulePlacement string `json:"rule_placement,omitempty"`

	// Filename suffixes which identify a bare line as a hub-only item.
	// Defaults to `.var .zip .rar .7z`.
	HubSuffixes []string `json:"hub_suffixes,omitempty"`

	// Substrings which identify a bare line as a hub-only item. Defaults to
	// `.latest`.
	LatestMarkers []string `json:"latest_markers,omitempty"`

	// If true then lines with a `Link:` marker but no URL may be used as
	// section titles.
	AllowLinkMarkerTitles bool `json:"allow_link_marker_titles,omitempty"`

	// If given, items found before the first section title are grouped under
	// a section with this title, rather than being discarded.
	UntitledSection string `json:"untitled_section,omitempty"`
}

// Validate ensures c has a valid configuration.
func (c ParserConfig) Validate() error {
	switch c.RulePlacement {
	case "", RulePlacementBelow, RulePlacementAbove:
	default:
		return fmt.Errorf("invalid rule_placement %q", c.RulePlacement)
	}

	if c.RuleMinLength < 0 {
		return fmt.Errorf("invalid rule_min_length %d", c.RuleMinLength)
	}

	return nil
}

// Opts returns the linklist.ParserOpts described by the ParserConfig.
func (c ParserConfig) Opts() *linklist.ParserOpts {
	opts := &linklist.ParserOpts{
		RuleMinLength:         c.RuleMinLength,
		HubSuffixes:           c.HubSuffixes,
		LatestMarkers:         c.LatestMarkers,
		AllowLinkMarkerTitles: c.AllowLinkMarkerTitles,
		UntitledSection:       c.UntitledSection,
	}

	if c.RulePlacement == RulePlacementAbove {
		opts.RulePlacement = linklist.RuleAboveTitle
	}

	return opts
}

// UnmarshalCaddyfile sets up the ParserConfig from Caddyfile tokens. Syntax:
//
//	parser {
//		rule_min_length <n>
//		rule_placement below|above
//		hub_suffixes <suffix> [<suffix>...]
//		latest_markers <marker> [<marker>...]
//		allow_link_marker_titles
//		untitled_section <title>
//	}
func (c *ParserConfig) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for nesting := d.Nesting(); d.NextBlock(nesting); {
		switch d.Val() {
		case "rule_min_length":
			if !d.NextArg() {
				return d.ArgErr()
			}

			n, err := strconv.Atoi(d.Val())
			if err != nil {
				return fmt.Errorf("parsing rule_min_length %q: %w", d.Val(), err)
			}
			c.RuleMinLength = n

		case "rule_placement":
			if !d.Args(&c.RulePlacement) {
				return d.ArgErr()
			}

		case "hub_suffixes":
			if c.HubSuffixes = d.RemainingArgs(); len(c.HubSuffixes) == 0 {
				return d.ArgErr()
			}

		case "latest_markers":
			if c.LatestMarkers = d.RemainingArgs(); len(c.LatestMarkers) == 0 {
				return d.ArgErr()
			}

		case "allow_link_marker_titles":
			if d.NextArg() {
				return d.ArgErr()
			}
			c.AllowLinkMarkerTitles = true

		case "untitled_section":
			if !d.Args(&c.UntitledSection) {
				return d.ArgErr()
			}

		default:
			return fmt.Errorf("unknown parser field: %q", d.Val())
		}
	}

	return c.Validate()
}
