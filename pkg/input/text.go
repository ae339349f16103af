// Package input resolves operator input into work items.
package input

import (
	"errors"
	"strings"

	"github.com/root4loot/thumbnailer"
)

var ErrNoURLs = errors.New("no URLs found in input")

// ExtractURLs splits text on whitespace and keeps the tokens starting with
// "http", in the order they appear.
func ExtractURLs(text string) []string {
	var urls []string
	for _, token := range strings.Fields(text) {
		if strings.HasPrefix(token, "http") {
			urls = append(urls, token)
		}
	}
	return urls
}

// FromText pairs the URLs found in text with filenames numbered from example.
func FromText(text, example string) ([]thumbnailer.WorkItem, error) {
	urls := ExtractURLs(text)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	names, err := Sequence(example, len(urls))
	if err != nil {
		return nil, err
	}

	items := make([]thumbnailer.WorkItem, len(urls))
	for i, u := range urls {
		items[i] = thumbnailer.WorkItem{Filename: names[i], URL: u}
	}
	return items, nil
}
