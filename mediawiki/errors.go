package mediawiki

import (
	"errors"
	"fmt"
)

// Invalid-argument errors for the title/page id pair.
var (
	// ErrMissingPageRef is returned when neither a title nor a page id was supplied.
	ErrMissingPageRef = errors.New("either a title or a page id must be specified")
	// ErrAmbiguousPageRef is returned when both a title and a page id were supplied.
	ErrAmbiguousPageRef = errors.New("specify either a title or a page id, not both")
)

// PageError indicates the requested page does not exist, or a title search
// produced no results.
type PageError struct {
	Title  string
	PageID int
}

func (e *PageError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("%q does not match any pages; try another title", e.Title)
	}
	return fmt.Sprintf("page id %d does not match any pages; try another id", e.PageID)
}

// RedirectError indicates the requested title is a redirect and redirect
// following was disabled by the caller.
type RedirectError struct {
	Title string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%q resulted in a redirect; set FollowRedirect to allow automatic redirects", e.Title)
}

// HTTPTimeoutError indicates the request timed out, either at the transport
// level or as a timeout reported by the wiki itself.
type HTTPTimeoutError struct {
	Query string
}

func (e *HTTPTimeoutError) Error() string {
	return fmt.Sprintf("request for %q timed out; try again in a few seconds", e.Query)
}

// APIError is any other error payload reported by the wiki, surfaced with
// the server's own message text.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s]: %s", e.Code, e.Info)
	}
	return fmt.Sprintf("API error: %s", e.Info)
}

// ProtocolError indicates the wiki returned a response that contradicts
// itself or the request, such as a redirect whose source title does not
// match the title that was asked for. It signals a wiki or library bug,
// not a user error.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected API response: %s", e.Message)
}

// Error payloads with these info strings are server-side timeout conditions
// and map to HTTPTimeoutError rather than APIError.
var apiTimeoutMessages = map[string]bool{
	"HTTP request timed out.": true,
	"Pool queue is full":      true,
}

// checkAPIError inspects a decoded response for an error payload and maps
// it to the most specific typed error. query names the request for error
// context; a nil return means the response carries no error.
func checkAPIError(resp map[string]any, query string) error {
	errObj := getMap(resp["error"])
	if errObj == nil {
		return nil
	}
	info := getString(errObj["info"])
	if apiTimeoutMessages[info] {
		return &HTTPTimeoutError{Query: query}
	}
	return &APIError{Code: getString(errObj["code"]), Info: info}
}
