package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, rows ...[2]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("<Data>")
	for _, r := range rows {
		b.WriteString(`<Row><result column="AssetTypeName">` + r[0] + `</result><result column="NextInstance">` + r[1] + `</result></Row>`)
	}
	b.WriteString("</Data>")
	data, err := json.Marshal(map[string]string{"data": b.String()})
	require.NoError(t, err)
	return string(data)
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", t.TempDir() + "/none.env"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	in := payload(t,
		[2]string{"180L Refuse (Grey Lid)", "2024-06-03"},
		[2]string{"140L Food &amp; Garden (Green Lid)", "2024-06-03"},
		[2]string{"180L Paper &amp; Card (Red Lid)", "2024-06-20"},
	)

	out, err := run(t, in, "parse", "--at", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, "Next bin collection on Monday, 03 June 2024:\n - Black Bin\n - Green Bin\n", out)

	out, err = run(t, in, "parse", "--all", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"bin_type":"Black Bin","date":"2024-06-03"},
		{"bin_type":"Green Bin","date":"2024-06-03"},
		{"bin_type":"Red Bin","date":"2024-06-20"}
	]`, out)
}

func TestParseCommand_Malformed(t *testing.T) {
	_, err := run(t, `{"data":"<Data><Row>"}`, "parse")
	assert.Error(t, err)
}

func TestRoot_MissingConfig(t *testing.T) {
	for _, k := range []string{"UPRN", "SESSION_URL", "API_URL", "REFERER"} {
		t.Setenv(k, "")
	}
	_, err := run(t, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_URL")
}

func council(t *testing.T, session string, data string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"auth-session": session})
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(data))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setCouncil(t *testing.T, srv *httptest.Server) {
	t.Setenv("UPRN", "100090001234")
	t.Setenv("SESSION_URL", srv.URL+"/session")
	t.Setenv("API_URL", srv.URL+"/api")
	t.Setenv("REFERER", srv.URL+"/bins")
	t.Setenv("SESSION_MODE", "")
	t.Setenv("WINDOW_DAYS", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRoot_PrintsUpcoming(t *testing.T) {
	soon := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	later := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	srv := council(t, "sid", payload(t,
		[2]string{"180L Metal Glass &amp; Plastic (Blue Lid)", soon},
		[2]string{"180L Refuse (Grey Lid)", later},
	))
	setCouncil(t, srv)

	out, err := run(t, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Next bin collection on ")
	assert.Contains(t, out, " - Blue Bin\n")
	assert.NotContains(t, out, "Black Bin")

	out, err = run(t, "", "--days", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "Then on ")
	assert.Contains(t, out, " - Black Bin\n")
}

func TestRoot_FetchFailureIsQuiet(t *testing.T) {
	srv := council(t, "", "")
	setCouncil(t, srv)

	out, err := run(t, "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRawCommand(t *testing.T) {
	srv := council(t, "sid", `{"data":"<Data/>"}`)
	setCouncil(t, srv)

	out, err := run(t, "", "raw")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"<Data/>"}`, out)
}
