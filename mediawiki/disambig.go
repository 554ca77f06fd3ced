package mediawiki

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// disambiguationTitles fetches the page's current revision and pulls the
// candidate target titles out of its listing.
func (c *Client) disambiguationTitles(ctx context.Context, ref PageRef, pageKey string) ([]string, error) {
	params := url.Values{}
	params.Set("prop", "revisions")
	params.Set("rvprop", "content")
	params.Set("rvlimit", "1")
	applyPageRef(params, ref)

	resp, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(resp, ref.String()); err != nil {
		return nil, err
	}

	page := getMap(getMap(getMap(resp["query"])["pages"])[pageKey])
	if page == nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("page %q missing from revision response", ref)}
	}
	revs := getSlice(page["revisions"])
	if len(revs) == 0 {
		return nil, &ProtocolError{Message: fmt.Sprintf("no revisions returned for page %q", ref)}
	}

	markup := getString(getMap(revs[0])["*"])
	return parseDisambiguation(markup)
}

// parseDisambiguation extracts candidate titles from disambiguation
// markup: the first linked title of every list item, skipping
// table-of-contents entries.
func parseDisambiguation(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse disambiguation markup: %w", err)
	}

	var titles []string
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if class, _ := li.Attr("class"); strings.Contains(class, "tocsection") {
			return
		}
		if title, ok := li.Find("a").First().Attr("title"); ok {
			titles = append(titles, title)
		}
	})
	return titles, nil
}
