package feeds

import (
	"context"
	"net/http"

	"github.com/dvo/proxypool/pxy"

	"github.com/nfx/go-htmltable"
)

type proxyRow struct {
	IP   string `header:"IP Address"`
	Port string `header:"Port"`
}

// htmlFeed scrapes free-proxy-list styled tables. Those lists carry
// plain HTTP forwarders, not SOCKS tunnels.
func htmlFeed(url string) Feed {
	return func(ctx context.Context, h *http.Client) (found []pxy.Proxy, err error) {
		body, err := get(ctx, h, url, nil)
		if err != nil {
			return nil, err
		}
		rows, err := htmltable.NewSliceFromString[proxyRow](string(body))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			p, ok := pxy.Parse("http://" + row.IP + ":" + row.Port)
			if !ok {
				continue
			}
			found = append(found, p)
		}
		return found, nil
	}
}
