// Package linklist extracts sections of download links from loosely formatted
// plain-text catalog exports.
package linklist

import "strings"

// NoURL is the URL of an Item which has no direct link, and which must instead
// be obtained via some external hub.
const NoURL = ""

// Item is a single entry within a Section.
type Item struct {
	Name string `json:"name"`

	// URL is either an absolute http(s) URL or NoURL.
	URL string `json:"url,omitempty"`

	// Author and License are empty when unknown.
	Author  string `json:"author,omitempty"`
	License string `json:"license,omitempty"`
}

// HasURL returns false for hub-only items.
func (i Item) HasURL() bool {
	return i.URL != NoURL
}

// Annotation returns a short human readable string describing the Item's
// author and license, e.g. "By: Alice • License: MIT". Either half is omitted
// if its field is empty, and an empty string is returned if both are.
func (i Item) Annotation() string {
	var parts []string
	if i.Author != "" {
		parts = append(parts, "By: "+i.Author)
	}
	if i.License != "" {
		parts = append(parts, "License: "+i.License)
	}
	return strings.Join(parts, " • ")
}

// Section is a titled group of Items. Sections produced by a Parser always
// have a non-empty Title and at least one Item.
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Document is the result of parsing a single text file.
type Document struct {
	// SourceName is the label given by the caller, usually the name of the
	// file the text came from. It is not interpreted.
	SourceName string    `json:"source_name"`
	Sections   []Section `json:"sections"`
}

// ItemCount returns the total number of items across all sections.
func (d Document) ItemCount() int {
	var n int
	for _, s := range d.Sections {
		n += len(s.Items)
	}
	return n
}
