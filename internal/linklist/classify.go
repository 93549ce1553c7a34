package linklist

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LineKind describes what a single line of input text was classified as.
type LineKind int

// All possible LineKind values.
const (
	LineUnrecognized LineKind = iota
	LineHeaderRule
	LineDirectLink
	LineComposite
	LineHubOnly
)

func (k LineKind) String() string {
	switch k {
	case LineHeaderRule:
		return "header_rule"
	case LineDirectLink:
		return "direct_link"
	case LineComposite:
		return "composite"
	case LineHubOnly:
		return "hub_only"
	default:
		return "unrecognized"
	}
}

// Markers used by the composite metadata form, e.g.
//
//	toolB.var By: Alice License: MIT Link: https://example.com/b.var
const (
	markerBy      = "By:"
	markerLicense = "License:"
	markerLink    = "Link:"
)

var compositeMarkers = []string{markerBy, markerLicense, markerLink}

// fieldSeparators are characters which exports use to visually separate
// fields, and which are stripped from the edges of every extracted field.
const fieldSeparators = "-–—:|•,;"

// tokenWrappers are stripped from a token before checking if it's a URL.
const tokenWrappers = "()<>[]\"'"

// CompositeFields records which metadata markers were present on a composite
// line. A marker which is present but followed by nothing yields an empty
// field, which is distinct from the marker not being present at all.
type CompositeFields struct {
	HasAuthor, HasLicense, HasLink bool
}

// Line is the classification of a single line of input text.
type Line struct {
	Kind LineKind

	// Item is filled in for LineDirectLink, LineComposite, and LineHubOnly.
	// It may be incomplete, see IsItem.
	Item Item

	// Fields is only filled in for LineComposite.
	Fields CompositeFields
}

// IsItem returns true if the Line holds a complete Item. A direct link line
// requires both a name and a URL, the other item forms only require a name.
func (l Line) IsItem() bool {
	switch l.Kind {
	case LineDirectLink:
		return l.Item.Name != "" && l.Item.HasURL()
	case LineComposite, LineHubOnly:
		return l.Item.Name != ""
	default:
		return false
	}
}

// lineMatcher returns the classification of the line and true if it matches,
// or false if the next lineMatcher should be tried.
type lineMatcher func(p *Parser, line string) (Line, bool)

// lineMatchers are tried in order, the first to match wins. Composite must
// come before direct link, as composite lines usually contain a URL as well.
var lineMatchers = []lineMatcher{
	matchBlank,
	matchHeaderRule,
	matchComposite,
	matchDirectLink,
	matchHubOnly,
}

// Classify returns the classification of a single line of text. The line is
// trimmed before being classified.
func (p *Parser) Classify(line string) Line {
	line = strings.TrimSpace(line)
	for _, match := range lineMatchers {
		if l, ok := match(p, line); ok {
			return l
		}
	}
	return Line{Kind: LineUnrecognized}
}

func matchBlank(_ *Parser, line string) (Line, bool) {
	return Line{Kind: LineUnrecognized}, line == ""
}

func matchHeaderRule(p *Parser, line string) (Line, bool) {
	ok := len(line) >= p.opts.RuleMinLength && strings.Trim(line, "-") == ""
	return Line{Kind: LineHeaderRule}, ok
}

func matchComposite(_ *Parser, line string) (Line, bool) {
	type cut struct {
		pos    int
		marker string
	}

	var cuts []cut
	for _, marker := range compositeMarkers {
		if i := indexMarker(line, marker); i >= 0 {
			cuts = append(cuts, cut{i, marker})
		}
	}

	if len(cuts) == 0 {
		return Line{}, false
	}

	// Markers are assigned by position rather than by their expected order, so
	// that lines with re-ordered markers still have each value land in the
	// field of the marker which precedes it.
	slices.SortFunc(cuts, func(a, b cut) int { return cmp.Compare(a.pos, b.pos) })

	l := Line{
		Kind: LineComposite,
		Item: Item{Name: trimField(line[:cuts[0].pos])},
	}

	for i, c := range cuts {
		end := len(line)
		if i+1 < len(cuts) {
			end = cuts[i+1].pos
		}
		val := trimField(line[c.pos+len(c.marker) : end])

		switch c.marker {
		case markerBy:
			l.Fields.HasAuthor = true
			l.Item.Author = val
		case markerLicense:
			l.Fields.HasLicense = true
			l.Item.License = val
		case markerLink:
			l.Fields.HasLink = true
			l.Item.URL = firstURL(strings.Fields(val))
		}
	}

	return l, true
}

func matchDirectLink(_ *Parser, line string) (Line, bool) {
	if !hasHTTP(line) {
		return Line{}, false
	}

	fields := strings.Fields(line)
	return Line{
		Kind: LineDirectLink,
		Item: Item{
			Name: trimField(fields[0]),
			URL:  firstURL(fields[1:]),
		},
	}, true
}

func matchHubOnly(p *Parser, line string) (Line, bool) {
	lower := strings.ToLower(line)

	ok := slices.ContainsFunc(p.opts.HubSuffixes, func(suffix string) bool {
		return strings.HasSuffix(lower, strings.ToLower(suffix))
	}) || slices.ContainsFunc(p.opts.LatestMarkers, func(marker string) bool {
		return strings.Contains(lower, strings.ToLower(marker))
	})

	if !ok {
		return Line{}, false
	}

	return Line{
		Kind: LineHubOnly,
		Item: Item{Name: trimField(line), URL: NoURL},
	}, true
}

// indexMarker returns the index of the first occurrence of marker in line which
// is at the start of the line or follows whitespace or a separator, or -1.
// This keeps markers which happen to appear inside of URLs from counting.
func indexMarker(line, marker string) int {
	for offset := 0; offset < len(line); {
		i := strings.Index(line[offset:], marker)
		if i < 0 {
			return -1
		}
		i += offset

		if i == 0 {
			return i
		}

		r, _ := utf8.DecodeLastRuneInString(line[:i])
		if unicode.IsSpace(r) || strings.ContainsRune(fieldSeparators, r) {
			return i
		}
		offset = i + len(marker)
	}
	return -1
}

func isHTTPToken(tok string) bool {
	tok = strings.ToLower(tok)
	return strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://")
}

func hasHTTP(str string) bool {
	str = strings.ToLower(str)
	return strings.Contains(str, "http://") || strings.Contains(str, "https://")
}

// firstURL returns the first token which begins with an http scheme, or NoURL.
func firstURL(tokens []string) string {
	for _, tok := range tokens {
		if tok = strings.Trim(tok, tokenWrappers); isHTTPToken(tok) {
			return tok
		}
	}
	return NoURL
}

func trimField(str string) string {
	str = strings.TrimSpace(str)
	for {
		prev := str
		str = strings.Trim(str, fieldSeparators)
		str = strings.TrimSpace(str)
		if str == prev {
			return str
		}
	}
}
