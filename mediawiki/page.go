package mediawiki

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/Idran/MemoryTauAPI/metrics"
)

// maxRedirectDepth bounds redirect chains during resolution. Real chains
// are one or two hops; anything deeper is a cycle.
const maxRedirectDepth = 10

// Page is a resolved wiki page. Identity fields are populated during
// resolution; facet accessors fetch on first use and cache the value for
// the lifetime of the Page.
type Page struct {
	client *Client

	// Title is the canonical title reported by the wiki.
	Title string
	// OriginalTitle is the title as originally requested, before redirect
	// resolution.
	OriginalTitle string
	// PageID is the numeric page id.
	PageID int
	// URL is the canonical page URL.
	URL string
	// Properties holds the page's pageprops map, including the
	// disambiguation marker when present.
	Properties map[string]string
	// DisambiguationTitles lists candidate target titles when the page is
	// a disambiguation page; empty otherwise.
	DisambiguationTitles []string

	content    lazy[pageContent]
	summary    lazy[string]
	references lazy[[]string]
	links      lazy[[]string]
	backlinks  lazy[backlinkSet]
	categories lazy[[]string]
	sections   lazy[[]string]
	html       lazy[string]
	wikitext   lazy[string]
}

// pageContent bundles the facets that arrive on the single
// extracts+revisions call.
type pageContent struct {
	text       string
	revisionID int
	parentID   int
}

type backlinkSet struct {
	titles []string
	ids    []int
}

// lazy is a compute-at-most-once cell. The zero value is ready to use.
// Failed computations are not cached; the next access retries.
type lazy[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
}

func (l *lazy[T]) get(fn func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.val, nil
	}
	val, err := fn()
	if err != nil {
		var zero T
		return zero, err
	}
	l.val = val
	l.done = true
	return val, nil
}

// ref returns the page's identity parameter, preferring the title.
func (p *Page) ref() PageRef {
	if p.Title != "" {
		return PageRef{Title: p.Title}
	}
	return PageRef{PageID: p.PageID}
}

// Equal reports whether two pages share the same resolved identity.
func (p *Page) Equal(other *Page) bool {
	if other == nil {
		return false
	}
	return p.PageID == other.PageID && p.Title == other.Title && p.URL == other.URL
}

// resolvePage turns a title or id into a fully resolved Page: it confirms
// the page exists, resolves redirects when permitted, and collects
// disambiguation candidates. Redirect resolution recurses with the target
// title and returns a fresh value; callers never see a partially resolved
// Page.
func resolvePage(ctx context.Context, c *Client, ref PageRef, followRedirect, preload bool) (*Page, error) {
	page, err := resolve(ctx, c, ref, ref.Title, followRedirect, 0)
	metrics.RecordPageResolution(err == nil)
	if err != nil {
		return nil, err
	}
	if preload {
		if err := page.preload(ctx); err != nil {
			return nil, err
		}
	}
	return page, nil
}

func resolve(ctx context.Context, c *Client, ref PageRef, originalTitle string, followRedirect bool, depth int) (*Page, error) {
	params := url.Values{}
	params.Set("prop", "info|pageprops")
	params.Set("inprop", "url")
	params.Set("redirects", "")
	applyPageRef(params, ref)

	resp, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(resp, ref.String()); err != nil {
		return nil, err
	}

	query := getMap(resp["query"])
	if query == nil {
		return nil, &ProtocolError{Message: "missing query section in page info response"}
	}
	pages := getMap(query["pages"])

	var pageKey string
	var page map[string]any
	for k, v := range pages {
		pageKey, page = k, getMap(v)
		break
	}
	if page == nil {
		return nil, &ProtocolError{Message: "missing pages in page info response"}
	}

	if _, missing := page["missing"]; missing {
		return nil, &PageError{Title: ref.Title, PageID: ref.PageID}
	}

	// With the redirects parameter the wiki resolves redirects server-side
	// and reports each hop under query.redirects.
	if redirects := getSlice(query["redirects"]); len(redirects) > 0 {
		hop := getMap(redirects[0])
		target := getString(hop["to"])
		if target != ref.Title {
			if !followRedirect {
				title := ref.Title
				if title == "" {
					title = getString(page["title"])
				}
				return nil, &RedirectError{Title: title}
			}
			if depth >= maxRedirectDepth {
				return nil, &ProtocolError{Message: fmt.Sprintf("redirect chain for %q exceeds %d hops", originalTitle, maxRedirectDepth)}
			}

			// Recompute the canonical source title and check it against
			// what the wiki claims it redirected from. A mismatch means
			// the response contradicts the request.
			from := ref.Title
			if normalized := getSlice(query["normalized"]); len(normalized) > 0 {
				norm := getMap(normalized[0])
				if getString(norm["from"]) != ref.Title {
					return nil, &ProtocolError{
						Message: fmt.Sprintf("normalized source %q does not match requested title %q",
							getString(norm["from"]), ref.Title),
					}
				}
				from = getString(norm["to"])
			} else if from == "" {
				from = getString(hop["from"])
			}
			if getString(hop["from"]) != from {
				return nil, &ProtocolError{
					Message: fmt.Sprintf("redirect source %q does not match requested title %q",
						getString(hop["from"]), from),
				}
			}

			metrics.RedirectsFollowed.Inc()
			c.logger.Debug("following redirect", "from", from, "to", target)
			if originalTitle == "" {
				originalTitle = from
			}
			return resolve(ctx, c, PageRef{Title: target}, originalTitle, followRedirect, depth+1)
		}
	}

	id, _ := strconv.Atoi(pageKey)
	p := &Page{
		client:     c,
		Title:      getString(page["title"]),
		PageID:     id,
		URL:        getString(page["fullurl"]),
		Properties: toStringMap(page["pageprops"]),
	}
	p.OriginalTitle = originalTitle
	if p.OriginalTitle == "" {
		p.OriginalTitle = p.Title
	}

	// The disambiguation pageprop marks disambiguation pages; collect the
	// candidate target titles from the page's own listing.
	if _, ok := p.Properties["disambiguation"]; ok {
		titles, err := c.disambiguationTitles(ctx, p.ref(), pageKey)
		if err != nil {
			return nil, err
		}
		p.DisambiguationTitles = titles
	}

	return p, nil
}

// preload eagerly evaluates the cheap lazy facets.
func (p *Page) preload(ctx context.Context) error {
	if _, err := p.Content(ctx); err != nil {
		return err
	}
	if _, err := p.Summary(ctx); err != nil {
		return err
	}
	if _, err := p.References(ctx); err != nil {
		return err
	}
	if _, err := p.Links(ctx); err != nil {
		return err
	}
	if _, err := p.Sections(ctx); err != nil {
		return err
	}
	return nil
}

// continuedQuery drains a continued query into a lazy sequence, following
// https://www.mediawiki.org/wiki/API:Query#Continuing_queries. The drain
// stops early when the server repeats the previous continuation token with
// an unchanged page count. That stall guard is a heuristic: it cannot
// distinguish a non-progressing server from one returning identical-looking
// but fresh tokens, but it does bound the loop.
//
// The sequence is finite and non-restartable; facet accessors drain it
// fully into a slice before caching.
func (p *Page) continuedQuery(ctx context.Context, base url.Values, prop string) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		applyPageRef(params, p.ref())
		generator := params.Get("generator") != ""
		pageKey := strconv.Itoa(p.PageID)

		lastContinue := map[string]string{}
		lastPageCount := -1
		for {
			reqParams := url.Values{}
			for k, v := range params {
				reqParams[k] = v
			}
			for k, v := range lastContinue {
				reqParams.Set(k, v)
			}

			resp, err := p.client.request(ctx, reqParams)
			if err != nil {
				yield(nil, err)
				return
			}
			if err := checkAPIError(resp, p.Title); err != nil {
				yield(nil, err)
				return
			}

			query := getMap(resp["query"])
			if query == nil {
				return
			}

			cont := continueTokens(resp["continue"])
			pages := getMap(query["pages"])
			if cont != nil && maps.Equal(cont, lastContinue) && len(pages) == lastPageCount {
				return
			}

			if generator {
				for _, v := range pages {
					if m := getMap(v); m != nil {
						if !yield(m, nil) {
							return
						}
					}
				}
			} else if page := getMap(pages[pageKey]); page != nil {
				for _, item := range getSlice(page[prop]) {
					if m := getMap(item); m != nil {
						if !yield(m, nil) {
							return
						}
					}
				}
			}

			if cont == nil {
				return
			}
			lastContinue = cont
			lastPageCount = len(pages)
			metrics.ContinuationRequests.Inc()
		}
	}
}

// continueTokens flattens a continue block into string tokens so that
// consecutive blocks can be compared for the stall guard.
func continueTokens(v any) map[string]string {
	m := getMap(v)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out
}

// loadContent fetches the plain-text extract along with the revision ids
// that ride on the same call.
func (p *Page) loadContent(ctx context.Context) (pageContent, error) {
	return p.content.get(func() (pageContent, error) {
		params := url.Values{}
		params.Set("prop", "extracts|revisions")
		params.Set("explaintext", "")
		params.Set("rvprop", "ids")
		applyPageRef(params, p.ref())

		resp, err := p.client.request(ctx, params)
		if err != nil {
			return pageContent{}, err
		}
		if err := checkAPIError(resp, p.Title); err != nil {
			return pageContent{}, err
		}

		page := getMap(getMap(getMap(resp["query"])["pages"])[strconv.Itoa(p.PageID)])
		if page == nil {
			return pageContent{}, &ProtocolError{Message: fmt.Sprintf("page %q missing from extract response", p.Title)}
		}

		pc := pageContent{text: getString(page["extract"])}
		if revs := getSlice(page["revisions"]); len(revs) > 0 {
			rev := getMap(revs[0])
			pc.revisionID = getInt(rev["revid"])
			pc.parentID = getInt(rev["parentid"])
		}
		return pc, nil
	})
}

// Content returns the plain text content of the page, excluding images,
// tables, and other data.
func (p *Page) Content(ctx context.Context) (string, error) {
	pc, err := p.loadContent(ctx)
	return pc.text, err
}

// RevisionID returns the id of the page's current revision. It has no
// query of its own: requesting it before Content forces the content fetch.
func (p *Page) RevisionID(ctx context.Context) (int, error) {
	pc, err := p.loadContent(ctx)
	return pc.revisionID, err
}

// ParentID returns the revision id of the parent of the current revision.
func (p *Page) ParentID(ctx context.Context) (int, error) {
	pc, err := p.loadContent(ctx)
	return pc.parentID, err
}

// Summary returns the plain text summary (intro section) of the page.
func (p *Page) Summary(ctx context.Context) (string, error) {
	return p.summary.get(func() (string, error) {
		params := url.Values{}
		params.Set("prop", "extracts")
		params.Set("explaintext", "")
		params.Set("exintro", "")
		applyPageRef(params, p.ref())

		resp, err := p.client.request(ctx, params)
		if err != nil {
			return "", err
		}
		if err := checkAPIError(resp, p.Title); err != nil {
			return "", err
		}

		page := getMap(getMap(getMap(resp["query"])["pages"])[strconv.Itoa(p.PageID)])
		if page == nil {
			return "", &ProtocolError{Message: fmt.Sprintf("page %q missing from extract response", p.Title)}
		}
		return getString(page["extract"]), nil
	})
}

// References lists the URLs of external links on the page. May include
// links that aren't technically cited anywhere. Protocol-relative URLs are
// rewritten with an http: prefix, so every returned URL carries a scheme.
func (p *Page) References(ctx context.Context) ([]string, error) {
	return p.references.get(func() ([]string, error) {
		base := url.Values{}
		base.Set("prop", "extlinks")
		base.Set("ellimit", "max")

		var urls []string
		for item, err := range p.continuedQuery(ctx, base, "extlinks") {
			if err != nil {
				return nil, err
			}
			link := getString(item["*"])
			if !strings.HasPrefix(link, "http") {
				link = "http:" + link
			}
			urls = append(urls, link)
		}
		return urls, nil
	})
}

// Links lists the titles of wiki pages linked from the page. Only articles
// from the main namespace are included.
func (p *Page) Links(ctx context.Context) ([]string, error) {
	return p.links.get(func() ([]string, error) {
		base := url.Values{}
		base.Set("prop", "links")
		base.Set("plnamespace", "0")
		base.Set("pllimit", "max")

		var titles []string
		for item, err := range p.continuedQuery(ctx, base, "links") {
			if err != nil {
				return nil, err
			}
			titles = append(titles, getString(item["title"]))
		}
		return titles, nil
	})
}

// loadBacklinks fetches backlink titles and ids in one drain.
func (p *Page) loadBacklinks(ctx context.Context) (backlinkSet, error) {
	return p.backlinks.get(func() (backlinkSet, error) {
		base := url.Values{}
		base.Set("list", "backlinks")
		base.Set("generator", "links")
		base.Set("blfilterredir", "nonredirects")
		if p.Title != "" {
			base.Set("bltitle", p.Title)
		} else {
			base.Set("blpageid", strconv.Itoa(p.PageID))
		}

		var set backlinkSet
		for item, err := range p.continuedQuery(ctx, base, "backlinks") {
			if err != nil {
				return backlinkSet{}, err
			}
			set.titles = append(set.titles, getString(item["title"]))
			if _, ok := item["pageid"]; ok {
				set.ids = append(set.ids, getInt(item["pageid"]))
			}
		}
		return set, nil
	})
}

// Backlinks lists the titles of pages that link to this page.
func (p *Page) Backlinks(ctx context.Context) ([]string, error) {
	set, err := p.loadBacklinks(ctx)
	return set.titles, err
}

// BacklinkIDs lists the page ids of pages that link to this page. Not
// every backlink entry carries an id, so the result may be shorter than
// Backlinks.
func (p *Page) BacklinkIDs(ctx context.Context) ([]int, error) {
	set, err := p.loadBacklinks(ctx)
	return set.ids, err
}

// Categories lists the categories the page belongs to, without the
// Category: namespace prefix.
func (p *Page) Categories(ctx context.Context) ([]string, error) {
	return p.categories.get(func() ([]string, error) {
		base := url.Values{}
		base.Set("prop", "categories")
		base.Set("cllimit", "max")

		var titles []string
		for item, err := range p.continuedQuery(ctx, base, "categories") {
			if err != nil {
				return nil, err
			}
			titles = append(titles, strings.TrimPrefix(getString(item["title"]), "Category:"))
		}
		return titles, nil
	})
}

// Sections lists the section titles from the page's table of contents.
func (p *Page) Sections(ctx context.Context) ([]string, error) {
	return p.sections.get(func() ([]string, error) {
		params := url.Values{}
		params.Set("action", "parse")
		params.Set("prop", "sections")
		if p.Title != "" {
			params.Set("page", p.Title)
		} else {
			params.Set("pageid", strconv.Itoa(p.PageID))
		}

		resp, err := p.client.request(ctx, params)
		if err != nil {
			return nil, err
		}
		if err := checkAPIError(resp, p.Title); err != nil {
			return nil, err
		}

		parse := getMap(resp["parse"])
		if parse == nil {
			return nil, &ProtocolError{Message: fmt.Sprintf("missing parse section for page %q", p.Title)}
		}

		var sections []string
		for _, item := range getSlice(parse["sections"]) {
			if m := getMap(item); m != nil {
				sections = append(sections, getString(m["line"]))
			}
		}
		return sections, nil
	})
}

// HTML returns the rendered HTML of the whole page.
//
// Warning: this can get pretty slow on long pages.
func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.html.get(func() (string, error) {
		return p.parseProp(ctx, "text")
	})
}

// Markdown returns the raw wiki markup of the whole page.
//
// Warning: this can get pretty slow on long pages.
func (p *Page) Markdown(ctx context.Context) (string, error) {
	return p.wikitext.get(func() (string, error) {
		return p.parseProp(ctx, "wikitext")
	})
}

// parseProp issues a parse-action query for a single string property.
func (p *Page) parseProp(ctx context.Context, prop string) (string, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("prop", prop)
	params.Set("formatversion", "2")
	if p.Title != "" {
		params.Set("page", p.Title)
	} else {
		params.Set("pageid", strconv.Itoa(p.PageID))
	}

	resp, err := p.client.request(ctx, params)
	if err != nil {
		return "", err
	}
	if err := checkAPIError(resp, p.Title); err != nil {
		return "", err
	}

	parse := getMap(resp["parse"])
	if parse == nil {
		return "", &ProtocolError{Message: fmt.Sprintf("missing parse section for page %q", p.Title)}
	}
	return getString(parse[prop]), nil
}

// Section returns the plain text content of the named section, trimmed of
// surrounding whitespace. found is false when the page has no such
// heading. Calling Section on a section that has subheadings only returns
// the text between the heading and the next subheading, which is often
// empty.
func (p *Page) Section(ctx context.Context, title string) (text string, found bool, err error) {
	content, err := p.Content(ctx)
	if err != nil {
		return "", false, err
	}

	heading := fmt.Sprintf("== %s ==", title)
	idx := strings.Index(content, heading)
	if idx == -1 {
		return "", false, nil
	}

	rest := content[idx+len(heading):]
	if next := strings.Index(rest, "=="); next != -1 {
		rest = rest[:next]
	}
	return strings.TrimSpace(strings.TrimLeft(rest, "=")), true, nil
}
