package linklist

import "strings"

// RulePlacement describes where a header rule line sits relative to the
// title it marks.
type RulePlacement int

const (
	// RuleBelowTitle is used for exports which underline titles:
	//
	//	Category X
	//	----------
	RuleBelowTitle RulePlacement = iota

	// RuleAboveTitle is used for exports which place the rule above titles:
	//
	//	----------
	//	Category X
	RuleAboveTitle
)

// ParserOpts are optional parameters to NewParser. A nil value is equivalent
// to a zero value.
type ParserOpts struct {

	// RuleMinLength is the minimum number of consecutive dashes a line must
	// consist of to be considered a header rule.
	//
	// Defaults to 4.
	RuleMinLength int

	// RulePlacement indicates whether titles are found on the line before or
	// after a header rule.
	//
	// Defaults to RuleBelowTitle.
	RulePlacement RulePlacement

	// HubSuffixes are filename suffixes which identify a bare line as a
	// hub-only item. Matching is case-insensitive.
	//
	// Defaults to DefaultHubSuffixes.
	HubSuffixes []string

	// LatestMarkers are substrings which identify a bare line as a hub-only
	// item referencing the latest version of a package. Matching is
	// case-insensitive.
	//
	// Defaults to DefaultLatestMarkers.
	LatestMarkers []string

	// AllowLinkMarkerTitles allows a line containing a `Link:` marker, but no
	// http URL, to be used as a section title. By default such lines are
	// assumed to be items.
	AllowLinkMarkerTitles bool

	// UntitledSection, if given, is used as the title of the section holding
	// items found before the first title. By default those items are
	// discarded.
	UntitledSection string
}

// Default values used by ParserOpts.
var (
	DefaultHubSuffixes   = []string{".var", ".zip", ".rar", ".7z"}
	DefaultLatestMarkers = []string{".latest"}
)

func (o *ParserOpts) withDefaults() *ParserOpts {
	if o == nil {
		o = new(ParserOpts)
	}

	opts := *o

	if opts.RuleMinLength <= 0 {
		opts.RuleMinLength = 4
	}

	if opts.HubSuffixes == nil {
		opts.HubSuffixes = DefaultHubSuffixes
	}

	if opts.LatestMarkers == nil {
		opts.LatestMarkers = DefaultLatestMarkers
	}

	return &opts
}

// Parser converts text into a Document. A Parser holds no state between calls
// and is safe for concurrent use.
type Parser struct {
	opts *ParserOpts
}

// NewParser initializes and returns a Parser.
func NewParser(opts *ParserOpts) *Parser {
	return &Parser{opts: opts.withDefaults()}
}

var defaultParser = NewParser(nil)

// Parse parses the text using a Parser with default options.
func Parse(text, sourceName string) Document {
	return defaultParser.Parse(text, sourceName)
}

// foldState is threaded through each step of a parse.
type foldState struct {
	sections []Section
	current  Section

	// prev is the previous line, trimmed.
	prev string

	// titlePending is set by a header rule when rules are placed above
	// titles, and is cleared by the next non-blank line. prevTitled is true if
	// prev was used as a title, in which case a following rule only closes it.
	titlePending bool
	prevTitled   bool
}

// flush appends the current section to the output if it is both titled and
// non-empty.
func (s foldState) flush() foldState {
	if s.current.Title != "" && len(s.current.Items) > 0 {
		s.sections = append(s.sections, s.current)
	}
	s.current = Section{}
	return s
}

func (s foldState) startSection(title string) foldState {
	s = s.flush()
	s.current.Title = title
	return s
}

// Parse splits the text on newlines and returns all sections found within it.
// Lines which cannot be interpreted are skipped, Parse never fails.
func (p *Parser) Parse(text, sourceName string) Document {
	s := foldState{current: Section{Title: p.opts.UntitledSection}}
	for _, line := range strings.Split(text, "\n") {
		s = p.step(s, line)
	}

	s = s.flush()
	if s.sections == nil {
		s.sections = []Section{}
	}

	return Document{SourceName: sourceName, Sections: s.sections}
}

// isTitle returns whether the line may be used as a section title. Lines which
// look like items with a link never are.
func (p *Parser) isTitle(line string) bool {
	switch {
	case line == "", hasHTTP(line):
		return false
	case p.Classify(line).Kind == LineHeaderRule:
		return false
	case !p.opts.AllowLinkMarkerTitles && indexMarker(line, markerLink) >= 0:
		return false
	}
	return true
}

func (p *Parser) step(s foldState, line string) foldState {
	var (
		l      = p.Classify(line)
		titled bool
	)

	line = strings.TrimSpace(line)

	switch {
	case l.Kind == LineHeaderRule && p.opts.RulePlacement == RuleAboveTitle:
		s.titlePending = !s.prevTitled

	case l.Kind == LineHeaderRule:
		if !p.isTitle(s.prev) {
			break
		}

		// If prev was appended as an item it stays in the section being
		// closed, and also titles the next one.
		s = s.startSection(s.prev)

	case s.titlePending && p.isTitle(line):
		s.titlePending = false
		s = s.startSection(line)
		titled = true

	default:
		if line != "" {
			s.titlePending = false
		}

		if l.IsItem() {
			s.current.Items = append(s.current.Items, l.Item)
		}
	}

	s.prev, s.prevTitled = line, titled
	return s
}
