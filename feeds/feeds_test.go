package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvo/proxypool/pxy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	launched []string
	finished map[int]error
}

func (r *recordingTracker) Launch(id int, name string) {
	r.launched = append(r.launched, name)
}

func (r *recordingTracker) Found(id int, count int) {}

func (r *recordingTracker) Finish(id int, err error) {
	if r.finished == nil {
		r.finished = map[int]error{}
	}
	r.finished[id] = err
}

func newTestAdapter(sources ...Source) (*Adapter, *recordingTracker) {
	tracker := &recordingTracker{}
	return &Adapter{
		client: &http.Client{Timeout: 5 * time.Second},
		stats:  tracker,
		sources: func() []Source {
			return sources
		},
	}, tracker
}

func textServer(t *testing.T, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(
		func(rw http.ResponseWriter, r *http.Request) {
			rw.Write([]byte(body))
		}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTextFeedParsesAndDropsJunk(t *testing.T) {
	srv := textServer(t, `socks5://1.2.3.4:1080
1.2.3.5:1080
http://5.6.7.8:8080
999.1.1.1:80
1.2.3.4:70000
# comment line
`)
	found, err := textFeed(srv.URL)(context.Background(), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, []pxy.Proxy{
		{Proto: pxy.SOCKS5, Host: "1.2.3.4", Port: 1080},
		{Proto: pxy.SOCKS5, Host: "1.2.3.5", Port: 1080},
		{Proto: pxy.HTTP, Host: "5.6.7.8", Port: 8080},
	}, found)
}

func TestApiFeedRequiresKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(
		func(rw http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-Api-Key")
			rw.Write([]byte(`{"data":[
				{"ipPort":"1.2.3.4:1080","protocols":["socks5","http"]},
				{"ipPort":"5.6.7.8:8080"},
				{"ipPort":"999.1.1.1:80","protocols":["socks5"]}
			]}`))
		}))
	defer srv.Close()

	found, err := apiFeed(srv.URL, "sekret")(context.Background(), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "sekret", gotKey)
	assert.Equal(t, []pxy.Proxy{
		{Proto: pxy.SOCKS5, Host: "1.2.3.4", Port: 1080},
		{Proto: pxy.HTTP, Host: "1.2.3.4", Port: 1080},
		{Proto: pxy.SOCKS5, Host: "5.6.7.8", Port: 8080},
	}, found)
}

func TestHtmlFeed(t *testing.T) {
	srv := textServer(t, `<table>
		<tr><th>IP Address</th><th>Port</th><th>Country</th></tr>
		<tr><td>1.2.3.4</td><td>8080</td><td>NL</td></tr>
		<tr><td>999.1.1.1</td><td>80</td><td>DE</td></tr>
	</table>`)
	found, err := htmlFeed(srv.URL)(context.Background(), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, []pxy.Proxy{
		{Proto: pxy.HTTP, Host: "1.2.3.4", Port: 8080},
	}, found)
}

func TestFetchDeduplicatesAcrossFeeds(t *testing.T) {
	a := textServer(t, "1.2.3.4:1080\n5.6.7.8:1080")
	b := textServer(t, "http://1.2.3.4:1080\n9.9.9.9:4145")
	adapter, _ := newTestAdapter(
		Source{ID: 1, Name: "a", Feed: textFeed(a.URL)},
		Source{ID: 2, Name: "b", Feed: textFeed(b.URL)},
	)
	out := adapter.Fetch(context.Background())
	assert.Len(t, out, 3) // 1.2.3.4:1080 is counted once
}

func TestFetchSurvivesBrokenFeed(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(
		func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(503)
		}))
	defer broken.Close()
	good := textServer(t, "1.2.3.4:1080")

	adapter, tracker := newTestAdapter(
		Source{ID: 1, Name: "broken", Feed: textFeed(broken.URL)},
		Source{ID: 2, Name: "good", Feed: textFeed(good.URL)},
	)
	out := adapter.Fetch(context.Background())
	assert.Len(t, out, 1)
	assert.Error(t, tracker.finished[1])
	assert.NoError(t, tracker.finished[2])
}

func TestFetchAllFeedsDownIsEmptyNotError(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(
		func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(502)
		}))
	defer broken.Close()

	adapter, _ := newTestAdapter(
		Source{ID: 1, Name: "broken", Feed: textFeed(broken.URL)},
	)
	out := adapter.Fetch(context.Background())
	assert.Empty(t, out)
}

func TestConfigureOptionalFeeds(t *testing.T) {
	adapter, _ := newTestAdapter()
	err := adapter.Configure(map[string]string{
		"api_url": "https://api.example.com/proxies",
		"api_key": "k",
	})
	require.NoError(t, err)
	assert.Len(t, adapter.sources(), 2)

	err = adapter.Configure(map[string]string{
		"api_url":  "https://api.example.com/proxies",
		"api_key":  "k",
		"html_url": "https://free-proxy-list.example.com",
	})
	require.NoError(t, err)
	assert.Len(t, adapter.sources(), 3)

	err = adapter.Configure(nil)
	require.NoError(t, err)
	assert.Len(t, adapter.sources(), 1)
}
