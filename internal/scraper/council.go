package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/publicsuffix"

	"binday/internal/config"
	"binday/internal/model"
)

// CouncilOptions configures a CouncilScraper.
type CouncilOptions struct {
	UPRN       string
	SessionURL string
	APIURL     string
	Referer    string
	FormID     string

	// Session defaults to an HTTPSession sharing the scraper's client.
	Session    SessionSource
	HTTPClient *http.Client
	Logger     *slog.Logger
	Location   *time.Location
	Now        func() time.Time
}

// CouncilScraper looks up the collection schedule of one property on the
// council's form API.
type CouncilScraper struct {
	opts    CouncilOptions
	client  *http.Client
	session SessionSource
	logger  *slog.Logger
}

// lookupRequest is the form submission the council page sends.
type lookupRequest struct {
	FormValues struct {
		Section1 struct {
			UPRNCore struct {
				Value string `json:"value"`
			} `json:"uprnCore"`
		} `json:"Section 1"`
	} `json:"formValues"`
}

// NewCouncilScraper creates a scraper for the property in opts.
func NewCouncilScraper(opts CouncilOptions) (*CouncilScraper, error) {
	if opts.FormID == "" {
		opts.FormID = config.DefaultFormID
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	client := opts.HTTPClient
	if client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}

	session := opts.Session
	if session == nil {
		session = &HTTPSession{URL: opts.SessionURL, Referer: opts.Referer, Client: client}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CouncilScraper{
		opts:    opts,
		client:  client,
		session: session,
		logger:  logger,
	}, nil
}

func (s *CouncilScraper) Name() string {
	return "UPRN " + s.opts.UPRN
}

// UPRN returns the property this scraper looks up.
func (s *CouncilScraper) UPRN() string {
	return s.opts.UPRN
}

// FetchRaw authenticates and returns the raw data API response body.
func (s *CouncilScraper) FetchRaw(ctx context.Context) ([]byte, error) {
	sess, err := s.session.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining session: %w", err)
	}
	if sess == nil || sess.ID == "" {
		return nil, ErrNoSession
	}
	s.logger.Debug("session obtained", "cookies", len(sess.Cookies))

	endpoint, err := url.Parse(s.opts.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parsing API URL: %w", err)
	}
	if len(sess.Cookies) > 0 && s.client.Jar != nil {
		s.client.Jar.SetCookies(endpoint, sess.Cookies)
	}

	q := endpoint.Query()
	q.Set("id", s.opts.FormID)
	q.Set("_", strconv.FormatInt(s.opts.Now().UnixMilli(), 10))
	q.Set("sid", sess.ID)
	endpoint.RawQuery = q.Encode()

	var body lookupRequest
	body.FormValues.Section1.UPRNCore.Value = s.opts.UPRN
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding lookup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	data, err := do(s.client, req, browserHeaders(s.opts.Referer))
	if err != nil {
		return nil, fmt.Errorf("requesting collection data: %w", err)
	}
	s.logger.Debug("collection data received", "bytes", len(data))
	return data, nil
}

func (s *CouncilScraper) Fetch(ctx context.Context) ([]model.Collection, error) {
	raw, err := s.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	return ParseAll(raw, s.opts.Location)
}
