// Package command registers the `caddy linksplit` subcommand, which parses a
// link list file and prints the resulting document.
package command

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/linklist"
	"dev.mediocregopher.com/linksplit-caddy-plugins.git/internal/toolkit"
	"github.com/caddyserver/caddy/v2"
	caddycmd "github.com/caddyserver/caddy/v2/cmd"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Output formats supported by the command.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatHTML = "html"
)

func init() {
	caddycmd.RegisterCommand(caddycmd.Command{
		Name:      "linksplit",
		Usage:     "[--format text|json|html] [--rule-above] [--rule-min-length <n>] [--hub-suffixes <suffix>,...] [--latest-markers <marker>,...] [--allow-link-marker-titles] [--untitled-section <title>] [--source-label <label>] <file>",
		Short:     "Parses a link list file and prints its sections and items",
		Long:      longHelp,
		CobraFunc: setupCommand,
	})
}

const longHelp = `
Parses a link list text file, as exported by a catalog tool, into sections of
items and prints the result.

Sections are introduced by a title line together with a header rule made of
dashes. Items are either direct links (a name and an http(s) URL), composite
lines with By:, License: and Link: markers, or bare package names which are
only available on the hub.

The --format flag selects the output: a plain text summary (the default), the
document as JSON, or the HTML produced by the linklist handler.`

type options struct {
	format      string
	sourceLabel string
	parser      linklist.ParserOpts
}

func setupCommand(cmd *cobra.Command) {
	cmd.Args = cobra.ExactArgs(1)

	cmd.Flags().StringP("format", "f", FormatText, "Output format: text, json, or html")
	cmd.Flags().Bool("rule-above", false, "Header rules are placed above section titles rather than below")
	cmd.Flags().Int("rule-min-length", 0, "Minimum number of dashes in a header rule (default 4)")
	cmd.Flags().StringSlice("hub-suffixes", nil, "Filename suffixes of hub-only items (default .var,.zip,.rar,.7z)")
	cmd.Flags().StringSlice("latest-markers", nil, "Substrings of hub-only items (default .latest)")
	cmd.Flags().Bool("allow-link-marker-titles", false, "Allow lines with a Link: marker but no URL to be section titles")
	cmd.Flags().String("untitled-section", "", "Title of the section holding items found before the first title, which are otherwise discarded")
	cmd.Flags().String("source-label", "", "Label given to the document (default is the file name)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		ruleAbove, _ := cmd.Flags().GetBool("rule-above")
		ruleMinLen, _ := cmd.Flags().GetInt("rule-min-length")
		hubSuffixes, _ := cmd.Flags().GetStringSlice("hub-suffixes")
		latestMarkers, _ := cmd.Flags().GetStringSlice("latest-markers")
		allowLinkMarkerTitles, _ := cmd.Flags().GetBool("allow-link-marker-titles")
		untitledSection, _ := cmd.Flags().GetString("untitled-section")
		sourceLabel, _ := cmd.Flags().GetString("source-label")

		opts := options{
			format:      format,
			sourceLabel: sourceLabel,
			parser: linklist.ParserOpts{
				RuleMinLength:         ruleMinLen,
				AllowLinkMarkerTitles: allowLinkMarkerTitles,
				UntitledSection:       untitledSection,
			},
		}

		if ruleAbove {
			opts.parser.RulePlacement = linklist.RuleAboveTitle
		}

		// unset slices must stay nil so the parser's defaults apply
		if len(hubSuffixes) > 0 {
			opts.parser.HubSuffixes = hubSuffixes
		}

		if len(latestMarkers) > 0 {
			opts.parser.LatestMarkers = latestMarkers
		}

		return run(cmd.OutOrStdout(), args[0], opts)
	}
}

func run(out io.Writer, path string, opts options) error {
	switch opts.format {
	case FormatText, FormatJSON, FormatHTML:
	default:
		return fmt.Errorf("invalid format %q", opts.format)
	}

	if opts.parser.RuleMinLength < 0 {
		return fmt.Errorf("invalid rule-min-length %d", opts.parser.RuleMinLength)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}

	if opts.sourceLabel == "" {
		opts.sourceLabel = filepath.Base(path)
	}

	doc := linklist.NewParser(&opts.parser).Parse(
		toolkit.DecodeText(b), opts.sourceLabel,
	)

	caddy.Log().Named("linksplit").Debug(
		"Parsed link list",
		zap.String("path", path),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("items", doc.ItemCount()),
	)

	switch opts.format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)

	case FormatHTML:
		translated, err := linklist.HTMLTranslator{}.Translate(doc)
		if err != nil {
			return fmt.Errorf("translating to html: %w", err)
		}
		_, err = io.WriteString(out, translated.Body)
		return err

	default:
		return writeText(out, doc)
	}
}

// writeText writes a plain summary of the document, one line per section
// title and one per item.
func writeText(out io.Writer, doc linklist.Document) error {
	for i, section := range doc.Sections {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintf(out, "# %s\n", section.Title); err != nil {
			return err
		}

		for _, item := range section.Items {
			line := "- " + item.Name
			if annotation := item.Annotation(); annotation != "" {
				line += " [" + annotation + "]"
			}

			if item.HasURL() {
				line += " " + item.URL
			} else {
				line += " (hub)"
			}

			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(
		out, "\n%d sections, %d items\n", len(doc.Sections), doc.ItemCount(),
	)
	return err
}
