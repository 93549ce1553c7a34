package linklist

import (
	"bytes"
	"fmt"
	"html"
	"io"
)

// HTMLTranslator is used to translate a Document into equivalent HTML DOM
// elements.
type HTMLTranslator struct {
	// RenderSection, if given, can be used to override how the title of a
	// section is rendered. The items of the section are rendered separately.
	RenderSection func(w io.Writer, section Section) error

	// RenderItem, if given, can be used to override how each item is
	// rendered.
	RenderItem func(w io.Writer, section Section, item Item) error

	// LinkLabel is the text of the anchor rendered for items with a URL.
	// Defaults to "Download".
	LinkLabel string

	// HubLabel is the placeholder text rendered for items without a URL.
	// Defaults to "Available on Hub".
	HubLabel string
}

// HTML contains the result of a translation from a Document. Title is the
// Document's source name.
type HTML struct {
	Title string
	Body  string
}

// Translate renders the Document as HTML. An error is only returned if one of
// the Render callbacks returns one.
func (t HTMLTranslator) Translate(doc Document) (HTML, error) {
	var (
		w         = new(bytes.Buffer)
		linkLabel = t.LinkLabel
		hubLabel  = t.HubLabel
		writeErr  error
	)

	if linkLabel == "" {
		linkLabel = "Download"
	}

	if hubLabel == "" {
		hubLabel = "Available on Hub"
	}

	write := func(fmtStr string, args ...any) {
		if writeErr != nil {
			return
		}
		_, writeErr = fmt.Fprintf(w, fmtStr, args...)
	}

	for _, section := range doc.Sections {
		if t.RenderSection == nil {
			write("<h2>%s</h2>\n", html.EscapeString(section.Title))
		} else if writeErr == nil {
			writeErr = t.RenderSection(w, section)
		}

		write("<ul>\n")
		for _, item := range section.Items {
			if t.RenderItem != nil {
				if writeErr == nil {
					writeErr = t.RenderItem(w, section, item)
				}
				continue
			}

			write("<li><span>%s</span>", html.EscapeString(item.Name))

			if a := item.Annotation(); a != "" {
				write(" <small>%s</small>", html.EscapeString(a))
			}

			if item.HasURL() {
				write(
					" <a href=\"%s\" target=\"_blank\" rel=\"noopener noreferrer\">%s</a>",
					html.EscapeString(item.URL), html.EscapeString(linkLabel),
				)
			} else {
				write(" <em>%s</em>", html.EscapeString(hubLabel))
			}

			write("</li>\n")
		}
		write("</ul>\n")

		if writeErr != nil {
			return HTML{}, fmt.Errorf("writing section %q: %w", section.Title, writeErr)
		}
	}

	return HTML{
		Title: doc.SourceName,
		Body:  w.String(),
	}, nil
}
