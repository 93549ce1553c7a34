package linklist

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gorilla/feeds"
	"github.com/tilinna/clock"
)

// FeedTranslator is used to translate a Document into an RSS, Atom, or JSON
// feed, with one feed item per Item.
type FeedTranslator struct {

	// Required. The link of the feed itself.
	BaseURL *url.URL

	// Optional. If given then hub-only items will be linked to this URL with
	// the item's name appended to it. Otherwise hub-only items are left out
	// of the feed.
	HubURL string

	// Optional strings to use in the top-level 'author' field of the resulting
	// feed.
	AuthorName, AuthorEmail string

	// Clock is used to set the feed's updated time.
	//
	// Defaults to clock.Realtime().
	Clock clock.Clock
}

func (t FeedTranslator) itemLink(item Item) (string, bool) {
	switch {
	case item.HasURL():
		return item.URL, true
	case t.HubURL != "":
		return t.HubURL + url.PathEscape(item.Name), true
	default:
		return "", false
	}
}

func (t FeedTranslator) toFeed(doc Document) *feeds.Feed {
	clk := t.Clock
	if clk == nil {
		clk = clock.Realtime()
	}

	var (
		now        = clk.Now().UTC()
		baseURLStr = t.BaseURL.String()
		feed       = &feeds.Feed{
			Title:   doc.SourceName,
			Link:    &feeds.Link{Href: baseURLStr},
			Id:      baseURLStr,
			Updated: now,
		}
	)

	if t.AuthorName != "" || t.AuthorEmail != "" {
		feed.Author = &feeds.Author{
			Name:  t.AuthorName,
			Email: t.AuthorEmail,
		}
	}

	for _, section := range doc.Sections {
		for _, item := range section.Items {
			link, ok := t.itemLink(item)
			if !ok {
				continue
			}

			desc := []string{section.Title}
			if a := item.Annotation(); a != "" {
				desc = append(desc, a)
			}

			feedItem := &feeds.Item{
				Title:       item.Name,
				Link:        &feeds.Link{Href: link, Rel: "alternate"},
				Id:          link,
				Description: strings.Join(desc, " • "),
				Updated:     now,
			}

			if item.Author != "" {
				feedItem.Author = &feeds.Author{Name: item.Author}
			}

			feed.Items = append(feed.Items, feedItem)
		}
	}

	return feed
}

func (t FeedTranslator) translate(
	out io.Writer, doc Document, fn func(*feeds.Feed) (string, error),
) error {
	outStr, err := fn(t.toFeed(doc))
	if err != nil {
		return fmt.Errorf("rendering feed: %w", err)
	}

	if _, err := io.WriteString(out, outStr); err != nil {
		return fmt.Errorf("writing feed: %w", err)
	}

	return nil
}

// ToRSS translates the Document into an RSS feed.
func (t FeedTranslator) ToRSS(to io.Writer, doc Document) error {
	return t.translate(to, doc, (*feeds.Feed).ToRss)
}

// ToAtom translates the Document into an Atom feed.
func (t FeedTranslator) ToAtom(to io.Writer, doc Document) error {
	return t.translate(to, doc, (*feeds.Feed).ToAtom)
}

// ToJSON translates the Document into a JSON feed.
func (t FeedTranslator) ToJSON(to io.Writer, doc Document) error {
	return t.translate(to, doc, (*feeds.Feed).ToJSON)
}
