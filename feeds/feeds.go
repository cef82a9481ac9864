package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvo/proxypool/app"
	"github.com/dvo/proxypool/pxy"
	"github.com/dvo/proxypool/stats"

	"github.com/corpix/uarand"
)

// the mandatory feed, a plain newline-delimited list behind a public CDN
var defaultTextURL = "https://cdn.jsdelivr.net/gh/proxifly/free-proxy-list@main/proxies/all/data.txt"

type Feed func(ctx context.Context, h *http.Client) ([]pxy.Proxy, error)

type Source struct {
	ID   int
	Name string
	Feed Feed
}

type tracker interface {
	Launch(id int, name string)
	Found(id int, count int)
	Finish(id int, err error)
}

// Adapter concatenates all configured feeds into one deduplicated
// candidate batch. A feed that is down contributes zero candidates and
// a warning, never an error: the caller treats an empty batch as "no
// refresh possible this cycle".
type Adapter struct {
	client  *http.Client
	stats   tracker
	sources func() []Source
}

func NewAdapter(stats *stats.Stats) *Adapter {
	a := &Adapter{
		stats: stats,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	_ = a.Configure(nil)
	return a
}

func (a *Adapter) Configure(c app.Config) error {
	a.client.Timeout = c.DurOr("timeout", 30*time.Second)
	srcs := []Source{
		{ID: 1, Name: "cdn-list", Feed: textFeed(c.StrOr("text_url", defaultTextURL))},
	}
	apiURL := c.StrOr("api_url", "")
	apiKey := c.StrOr("api_key", "")
	if apiURL != "" && apiKey != "" {
		srcs = append(srcs, Source{ID: 2, Name: "proxy-api", Feed: apiFeed(apiURL, apiKey)})
	}
	htmlURL := c.StrOr("html_url", "")
	if htmlURL != "" {
		srcs = append(srcs, Source{ID: 3, Name: "html-table", Feed: htmlFeed(htmlURL)})
	}
	a.sources = func() []Source {
		return srcs
	}
	return nil
}

func (a *Adapter) Fetch(ctx context.Context) []pxy.Proxy {
	seen := map[string]bool{}
	var out []pxy.Proxy
	for _, src := range a.sources() {
		sctx := app.Log.WithStr(ctx, "feed", src.Name)
		log := app.Log.From(sctx)
		a.stats.Launch(src.ID, src.Name)
		found, err := src.Feed(sctx, a.client)
		a.stats.Found(src.ID, len(found))
		a.stats.Finish(src.ID, err)
		if err != nil {
			log.Warn().Err(app.ShErr(err)).Msg("feed failed")
			continue
		}
		fresh := 0
		for _, p := range found {
			if seen[p.Addr()] {
				continue
			}
			seen[p.Addr()] = true
			out = append(out, p)
			fresh++
		}
		log.Info().
			Int("found", len(found)).
			Int("fresh", fresh).
			Msg("fetched feed")
	}
	return out
}

func get(ctx context.Context, h *http.Client, url string,
	headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", uarand.GetRandom())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
