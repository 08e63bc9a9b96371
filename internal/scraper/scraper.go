package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"binday/internal/model"
)

var (
	// ErrNoSession is returned when the auth endpoint answers without a session id.
	ErrNoSession = errors.New("failed to retrieve session ID")

	// ErrMalformedPayload wraps every failure to make sense of the data API response.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Scraper defines a source of bin collections for one property.
type Scraper interface {
	// Name returns the human-readable name of this source.
	Name() string

	// Fetch retrieves every known collection, unfiltered and sorted by date.
	Fetch(ctx context.Context) ([]model.Collection, error)
}

// StatusError reports a non-2xx response from an upstream endpoint.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// browserHeaders mimics the XHR requests made by the council's own page.
func browserHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("User-Agent", "Mozilla/5.0")
	h.Set("X-Requested-With", "XMLHttpRequest")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// do sends req with the given headers and returns the body of a 2xx response.
func do(client *http.Client, req *http.Request, header http.Header) ([]byte, error) {
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching URL: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: req.Method, URL: req.URL.Redacted(), Code: resp.StatusCode}
	}
	return data, nil
}

// getJSON fetches url and decodes its JSON body into v.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	data, err := do(client, req, header)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
