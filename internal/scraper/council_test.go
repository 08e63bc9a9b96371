package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binday/internal/config"
)

type fakeCouncil struct {
	session    string
	authStatus int
	dataStatus int
	data       string

	lastQuery  map[string]string
	lastBody   map[string]any
	lastHeader http.Header
	sawCookie  bool
	authCalls  int
	dataCalls  int
}

func (f *fakeCouncil) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls++
		if f.authStatus != 0 {
			w.WriteHeader(f.authStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "cookie-1", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"auth-session": f.session}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls++
		f.lastHeader = r.Header.Clone()
		f.lastQuery = map[string]string{}
		for k := range r.URL.Query() {
			f.lastQuery[k] = r.URL.Query().Get(k)
		}
		if c, err := r.Cookie("PHPSESSID"); err == nil && c.Value == "cookie-1" {
			f.sawCookie = true
		}
		body, _ := io.ReadAll(r.Body)
		f.lastBody = map[string]any{}
		json.Unmarshal(body, &f.lastBody)

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if f.dataStatus != 0 {
			w.WriteHeader(f.dataStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"data": f.data})
	})
	return mux
}

func newTestScraper(t *testing.T, srv *httptest.Server, now time.Time) *CouncilScraper {
	t.Helper()
	s, err := NewCouncilScraper(CouncilOptions{
		UPRN:       "100090001234",
		SessionURL: srv.URL + "/session",
		APIURL:     srv.URL + "/api?existing=1",
		Referer:    "https://council.example/bins",
		Location:   time.UTC,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return s
}

func TestFetchRaw_SendsLookup(t *testing.T) {
	fake := &fakeCouncil{session: "sid-42", data: "<Data/>"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScraper(t, srv, now)

	raw, err := s.FetchRaw(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"<Data/>"}`, string(raw))

	assert.Equal(t, "sid-42", fake.lastQuery["sid"])
	assert.Equal(t, config.DefaultFormID, fake.lastQuery["id"])
	assert.Equal(t, "1717236000000", fake.lastQuery["_"])
	assert.Equal(t, "1", fake.lastQuery["existing"])

	assert.Equal(t, "application/json", fake.lastHeader.Get("Content-Type"))
	assert.Equal(t, "application/json", fake.lastHeader.Get("Accept"))
	assert.Equal(t, "Mozilla/5.0", fake.lastHeader.Get("User-Agent"))
	assert.Equal(t, "XMLHttpRequest", fake.lastHeader.Get("X-Requested-With"))
	assert.Equal(t, "https://council.example/bins", fake.lastHeader.Get("Referer"))

	want := map[string]any{
		"formValues": map[string]any{
			"Section 1": map[string]any{
				"uprnCore": map[string]any{"value": "100090001234"},
			},
		},
	}
	assert.Equal(t, want, fake.lastBody)
	assert.True(t, fake.sawCookie, "session cookie should be sent with the lookup")
}

func TestFetchRaw_MissingSession(t *testing.T) {
	fake := &fakeCouncil{session: ""}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newTestScraper(t, srv, time.Now())

	_, err := s.FetchRaw(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSession))
	assert.Equal(t, 0, fake.dataCalls)
}

func TestFetchRaw_AuthStatus(t *testing.T) {
	fake := &fakeCouncil{authStatus: http.StatusForbidden}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newTestScraper(t, srv, time.Now())

	_, err := s.FetchRaw(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, http.MethodGet, statusErr.Method)
	assert.Equal(t, 0, fake.dataCalls)
}

func TestFetchRaw_DataStatus(t *testing.T) {
	fake := &fakeCouncil{session: "sid", dataStatus: http.StatusInternalServerError}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newTestScraper(t, srv, time.Now())

	_, err := s.FetchRaw(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, http.MethodPost, statusErr.Method)
}

func TestFetchRaw_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	s := newTestScraper(t, srv, time.Now())
	srv.Close()

	_, err := s.FetchRaw(context.Background())
	assert.Error(t, err)
}

type staticSession struct {
	sess *Session
	err  error
}

func (s staticSession) Session(context.Context) (*Session, error) {
	return s.sess, s.err
}

func TestFetchRaw_CustomSessionCookies(t *testing.T) {
	fake := &fakeCouncil{data: "<Data/>"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s, err := NewCouncilScraper(CouncilOptions{
		UPRN:       "1",
		SessionURL: srv.URL + "/session",
		APIURL:     srv.URL + "/api",
		Session: staticSession{sess: &Session{
			ID:      "browser-sid",
			Cookies: []*http.Cookie{{Name: "PHPSESSID", Value: "cookie-1", Path: "/"}},
		}},
	})
	require.NoError(t, err)

	_, err = s.FetchRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fake.authCalls)
	assert.Equal(t, "browser-sid", fake.lastQuery["sid"])
	assert.True(t, fake.sawCookie)
}

func TestFetchRaw_SessionError(t *testing.T) {
	boom := errors.New("chrome not found")
	s, err := NewCouncilScraper(CouncilOptions{UPRN: "1", APIURL: "http://127.0.0.1:1/api", Session: staticSession{err: boom}})
	require.NoError(t, err)

	_, err = s.FetchRaw(context.Background())
	assert.True(t, errors.Is(err, boom))
}

func TestFetch_ReturnsEveryKnownBin(t *testing.T) {
	fake := &fakeCouncil{session: "sid", data: `<Data>` +
		row("180L Refuse (Grey Lid)", "2024-06-03") +
		row("180L Paper &amp; Card (Red Lid)", "2024-06-20") +
		`</Data>`}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScraper(t, srv, now)

	all, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Black Bin", all[0].BinType)
	assert.Equal(t, "Red Bin", all[1].BinType)
	assert.Equal(t, "UPRN 100090001234", s.Name())
}

func TestFromConfig_SessionMode(t *testing.T) {
	cfg := &config.Config{
		UPRN:        "1",
		SessionURL:  "https://council.example/session",
		APIURL:      "https://council.example/api",
		Referer:     "https://council.example/bins",
		FormID:      "form",
		SessionMode: config.SessionModeHTTP,
	}

	s, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	httpSess, ok := s.session.(*HTTPSession)
	require.True(t, ok)
	assert.Equal(t, cfg.SessionURL, httpSess.URL)
	assert.Same(t, s.client, httpSess.Client)

	cfg.SessionMode = config.SessionModeBrowser
	s, err = FromConfig(cfg, nil)
	require.NoError(t, err)
	browser, ok := s.session.(*BrowserSession)
	require.True(t, ok)
	assert.Equal(t, cfg.Referer, browser.PageURL)
	assert.Equal(t, []string{cfg.APIURL}, browser.CookieURLs)
}
