package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Session is the short-lived credential for one data API call.
type Session struct {
	ID      string
	Cookies []*http.Cookie
}

// SessionSource obtains a fresh session from the council's auth endpoint.
type SessionSource interface {
	Session(ctx context.Context) (*Session, error)
}

type sessionResponse struct {
	AuthSession string `json:"auth-session"`
}

// HTTPSession fetches the session with a plain GET. Cookies set by the auth
// endpoint stay in the client's jar.
type HTTPSession struct {
	URL     string
	Referer string
	Client  *http.Client
}

func (s *HTTPSession) Session(ctx context.Context) (*Session, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	var resp sessionResponse
	if err := getJSON(ctx, client, s.URL, browserHeaders(s.Referer), &resp); err != nil {
		return nil, err
	}
	if resp.AuthSession == "" {
		return nil, ErrNoSession
	}
	return &Session{ID: resp.AuthSession}, nil
}

// BrowserSession runs the council page in headless Chrome and requests the
// session from inside it, for councils whose auth endpoint only answers a
// page that has executed its scripts.
type BrowserSession struct {
	PageURL    string
	SessionURL string
	// CookieURLs selects the browser cookies exported with the session.
	CookieURLs []string
	ChromePath string
	Timeout    time.Duration
}

func (s *BrowserSession) Session(ctx context.Context) (*Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	chromePath := s.ChromePath
	if chromePath == "" {
		chromePath = os.Getenv("CHROME_PATH")
	}
	if chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}
	opts = append(opts,
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent("Mozilla/5.0"),
	)

	timeout := s.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	expr, err := sessionFetchExpr(s.SessionURL)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	var cookies []*network.Cookie
	err = chromedp.Run(chromeCtx,
		chromedp.Navigate(s.PageURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Evaluate(expr, &resp, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs(s.CookieURLs).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("running browser session: %w", err)
	}
	if resp.AuthSession == "" {
		return nil, ErrNoSession
	}

	return &Session{ID: resp.AuthSession, Cookies: convertCookies(cookies)}, nil
}

// sessionFetchExpr builds the page-side script that requests the session JSON.
func sessionFetchExpr(sessionURL string) (string, error) {
	quoted, err := json.Marshal(sessionURL)
	if err != nil {
		return "", fmt.Errorf("quoting session URL: %w", err)
	}
	return fmt.Sprintf(`fetch(%s, {
	credentials: "include",
	headers: {"Accept": "application/json", "X-Requested-With": "XMLHttpRequest"}
}).then(r => {
	if (!r.ok) { throw new Error("session endpoint returned " + r.status); }
	return r.json();
})`, quoted), nil
}

func convertCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
