package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rahul/wayfarer/internal/browser"
)

// Article is the readability metadata of the current page.
type Article struct {
	Title    string `json:"title,omitempty"`
	Byline   string `json:"byline,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	SiteName string `json:"siteName,omitempty"`
	Length   int    `json:"length,omitempty"`
}

var strict = bluemonday.StrictPolicy()

// Sanitize strips any markup left in extracted text.
func Sanitize(s string) string {
	return strict.Sanitize(s)
}

// ParseArticle runs readability over a page's HTML.
func ParseArticle(html, pageURL string) (*Article, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	a, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}
	return &Article{
		Title:    Sanitize(a.Title),
		Byline:   Sanitize(a.Byline),
		Excerpt:  Sanitize(a.Excerpt),
		SiteName: Sanitize(a.SiteName),
		Length:   a.Length,
	}, nil
}

// Article fetches the page HTML from the driver and parses it.
func (e *Engine) Article(ctx context.Context, d browser.Driver) (*Article, error) {
	pageURL, err := d.URL(ctx)
	if err != nil {
		return nil, err
	}
	if pageURL == "" || pageURL == "about:blank" {
		return nil, nil
	}
	html, err := d.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseArticle(html, pageURL)
}
