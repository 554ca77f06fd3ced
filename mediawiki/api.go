package mediawiki

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Default limits for the list-returning facade methods.
const (
	DefaultSearchLimit         = 10
	DefaultCategoryMemberLimit = 10
)

// PageRef identifies a page by title or by numeric id. Exactly one field
// must be set; supplying both or neither is an invalid-argument error.
type PageRef struct {
	Title  string
	PageID int
}

func (r PageRef) validate() error {
	if r.Title == "" && r.PageID == 0 {
		return ErrMissingPageRef
	}
	if r.Title != "" && r.PageID != 0 {
		return ErrAmbiguousPageRef
	}
	return nil
}

// String names the reference for error context.
func (r PageRef) String() string {
	if r.Title != "" {
		return r.Title
	}
	return strconv.Itoa(r.PageID)
}

// applyPageRef merges the identity parameter into a query.
func applyPageRef(params url.Values, ref PageRef) {
	if ref.Title != "" {
		params.Set("titles", ref.Title)
	} else {
		params.Set("pageids", strconv.Itoa(ref.PageID))
	}
}

// searchOutcome is the memoized value of a search call.
type searchOutcome struct {
	titles     []string
	suggestion string
}

// Search returns the titles of up to limit pages matching query.
// Identical calls within a process are served from the memoization cache.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	out, err := c.search(ctx, query, limit, false)
	if err != nil {
		return nil, err
	}
	return out.titles, nil
}

// SearchWithSuggestion is Search plus the wiki's spelling suggestion for
// the query. The suggestion is empty when the wiki has none.
func (c *Client) SearchWithSuggestion(ctx context.Context, query string, limit int) ([]string, string, error) {
	out, err := c.search(ctx, query, limit, true)
	if err != nil {
		return nil, "", err
	}
	return out.titles, out.suggestion, nil
}

func (c *Client) search(ctx context.Context, query string, limit int, withSuggestion bool) (searchOutcome, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	key := memoKey("search", query, limit, withSuggestion)
	v, err := c.memo.do(key, func() (any, error) {
		params := url.Values{}
		params.Set("list", "search")
		params.Set("srsearch", query)
		params.Set("srprop", "")
		params.Set("srlimit", strconv.Itoa(limit))
		if withSuggestion {
			params.Set("srinfo", "suggestion")
		}

		resp, err := c.request(ctx, params)
		if err != nil {
			return nil, err
		}
		if err := checkAPIError(resp, query); err != nil {
			return nil, err
		}

		queryObj := getMap(resp["query"])
		if queryObj == nil {
			return nil, &ProtocolError{Message: "missing query section in search response"}
		}

		out := searchOutcome{}
		for _, item := range getSlice(queryObj["search"]) {
			if m := getMap(item); m != nil {
				out.titles = append(out.titles, getString(m["title"]))
			}
		}
		if si := getMap(queryObj["searchinfo"]); si != nil {
			out.suggestion = getString(si["suggestion"])
		}
		return out, nil
	})
	if err != nil {
		return searchOutcome{}, err
	}
	return v.(searchOutcome), nil
}

// Suggest returns the wiki's search suggestion for query, or "" when the
// wiki has none. Identical calls within a process are served from the
// memoization cache.
func (c *Client) Suggest(ctx context.Context, query string) (string, error) {
	key := memoKey("suggest", query)
	v, err := c.memo.do(key, func() (any, error) {
		params := url.Values{}
		params.Set("list", "search")
		params.Set("srinfo", "suggestion")
		params.Set("srprop", "")
		params.Set("srsearch", query)

		resp, err := c.request(ctx, params)
		if err != nil {
			return nil, err
		}
		if err := checkAPIError(resp, query); err != nil {
			return nil, err
		}

		queryObj := getMap(resp["query"])
		if queryObj == nil {
			return nil, &ProtocolError{Message: "missing query section in suggestion response"}
		}
		if si := getMap(queryObj["searchinfo"]); si != nil {
			return getString(si["suggestion"]), nil
		}
		return "", nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Random returns n random article titles. Only articles from the main
// namespace are returned, so no Category, User talk, or other meta pages.
func (c *Client) Random(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		n = 1
	}

	params := url.Values{}
	params.Set("list", "random")
	params.Set("rnnamespace", "0")
	params.Set("rnlimit", strconv.Itoa(n))

	resp, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(resp, "random"); err != nil {
		return nil, err
	}

	queryObj := getMap(resp["query"])
	if queryObj == nil {
		return nil, &ProtocolError{Message: "missing query section in random response"}
	}

	var titles []string
	for _, item := range getSlice(queryObj["random"]) {
		if m := getMap(item); m != nil {
			titles = append(titles, getString(m["title"]))
		}
	}
	return titles, nil
}

// Languages lists the wiki's supported language prefixes (usually ISO
// language codes) keyed to their local language names.
func (c *Client) Languages(ctx context.Context) (map[string]string, error) {
	params := url.Values{}
	params.Set("meta", "siteinfo")
	params.Set("siprop", "languages")

	resp, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(resp, "languages"); err != nil {
		return nil, err
	}

	queryObj := getMap(resp["query"])
	if queryObj == nil {
		return nil, &ProtocolError{Message: "missing query section in siteinfo response"}
	}

	languages := make(map[string]string)
	for _, item := range getSlice(queryObj["languages"]) {
		if m := getMap(item); m != nil {
			languages[getString(m["code"])] = getString(m["*"])
		}
	}
	return languages, nil
}

// CategoryMembers lists titles belonging to a category. The category is
// identified by title (with or without the Category: prefix) or by the
// category page's id. memberType filters to "page", "subcat", or "file";
// empty selects "page".
func (c *Client) CategoryMembers(ctx context.Context, ref PageRef, limit int, memberType string) ([]string, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultCategoryMemberLimit
	}
	if memberType == "" {
		memberType = "page"
	}

	params := url.Values{}
	params.Set("list", "categorymembers")
	params.Set("cmlimit", strconv.Itoa(limit))
	params.Set("cmtype", memberType)
	if ref.Title != "" {
		params.Set("cmtitle", "Category:"+strings.TrimPrefix(ref.Title, "Category:"))
	} else {
		params.Set("cmpageid", strconv.Itoa(ref.PageID))
	}

	resp, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(resp, ref.String()); err != nil {
		return nil, err
	}

	queryObj := getMap(resp["query"])
	if queryObj == nil {
		return nil, &ProtocolError{Message: "missing query section in categorymembers response"}
	}

	var titles []string
	for _, item := range getSlice(queryObj["categorymembers"]) {
		if m := getMap(item); m != nil {
			titles = append(titles, getString(m["title"]))
		}
	}
	return titles, nil
}

// SiteInfo describes the wiki itself.
type SiteInfo struct {
	SiteName  string
	MainPage  string
	Base      string
	Generator string
	Language  string

	Statistics *SiteStats
}

// SiteStats holds the wiki's content counters.
type SiteStats struct {
	Pages       int
	Articles    int
	Edits       int
	Images      int
	Users       int
	ActiveUsers int
	Admins      int
}

// SiteInfo returns general metadata and statistics for the wiki.
func (c *Client) SiteInfo(ctx context.Context) (SiteInfo, error) {
	params := url.Values{}
	params.Set("meta", "siteinfo")
	params.Set("siprop", "general|statistics")

	resp, err := c.request(ctx, params)
	if err != nil {
		return SiteInfo{}, err
	}
	if err := checkAPIError(resp, "siteinfo"); err != nil {
		return SiteInfo{}, err
	}

	queryObj := getMap(resp["query"])
	if queryObj == nil {
		return SiteInfo{}, &ProtocolError{Message: "missing query section in siteinfo response"}
	}

	general := getMap(queryObj["general"])
	info := SiteInfo{
		SiteName:  getString(general["sitename"]),
		MainPage:  getString(general["mainpage"]),
		Base:      getString(general["base"]),
		Generator: getString(general["generator"]),
		Language:  getString(general["lang"]),
	}

	if stats := getMap(queryObj["statistics"]); stats != nil {
		info.Statistics = &SiteStats{
			Pages:       getInt(stats["pages"]),
			Articles:    getInt(stats["articles"]),
			Edits:       getInt(stats["edits"]),
			Images:      getInt(stats["images"]),
			Users:       getInt(stats["users"]),
			ActiveUsers: getInt(stats["activeusers"]),
			Admins:      getInt(stats["admins"]),
		}
	}
	return info, nil
}

// PageOptions control page resolution.
type PageOptions struct {
	// AutoSuggest lets the wiki pick a valid page title via search before
	// resolving. Note that this may resolve to a different page than the
	// one asked for.
	AutoSuggest bool

	// FollowRedirect resolves redirects transparently instead of failing
	// with RedirectError.
	FollowRedirect bool

	// Preload eagerly fetches content, summary, references, links, and
	// sections before Page returns.
	Preload bool
}

// DefaultPageOptions enables auto-suggestion and redirect following.
func DefaultPageOptions() *PageOptions {
	return &PageOptions{AutoSuggest: true, FollowRedirect: true}
}

// Page resolves ref to a Page. A nil opts selects DefaultPageOptions.
func (c *Client) Page(ctx context.Context, ref PageRef, opts *PageOptions) (*Page, error) {
	if opts == nil {
		opts = DefaultPageOptions()
	}
	if err := ref.validate(); err != nil {
		return nil, err
	}

	if ref.Title != "" && opts.AutoSuggest {
		results, suggestion, err := c.SearchWithSuggestion(ctx, ref.Title, 1)
		if err != nil {
			return nil, err
		}
		switch {
		case suggestion != "":
			ref.Title = suggestion
		case len(results) > 0:
			ref.Title = results[0]
		default:
			// no suggestion and no search results: the page doesn't exist
			return nil, &PageError{Title: ref.Title}
		}
	}

	return resolvePage(ctx, c, ref, opts.FollowRedirect, opts.Preload)
}
