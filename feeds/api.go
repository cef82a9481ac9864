package feeds

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dvo/proxypool/pxy"
)

type apiEntry struct {
	IpPort    string   `json:"ipPort"`
	Protocols []string `json:"protocols"`
}

type apiPage struct {
	Data []apiEntry `json:"data"`
}

// apiFeed is the optional keyed third-party list. Best effort: a bad
// key surfaces as a non-2xx status and the feed contributes nothing.
func apiFeed(url, key string) Feed {
	return func(ctx context.Context, h *http.Client) (found []pxy.Proxy, err error) {
		body, err := get(ctx, h, url, map[string]string{
			"X-Api-Key": key,
		})
		if err != nil {
			return nil, err
		}
		var page apiPage
		err = json.Unmarshal(body, &page)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Data {
			protocols := e.Protocols
			if len(protocols) == 0 {
				protocols = []string{"socks5"}
			}
			for _, proto := range protocols {
				p, ok := pxy.Parse(proto + "://" + e.IpPort)
				if !ok {
					continue
				}
				found = append(found, p)
			}
		}
		return found, nil
	}
}
