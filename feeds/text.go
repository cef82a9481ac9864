package feeds

import (
	"bufio"
	"bytes"
	"context"
	"net/http"

	"github.com/dvo/proxypool/pxy"
)

func textFeed(url string) Feed {
	return func(ctx context.Context, h *http.Client) (found []pxy.Proxy, err error) {
		body, err := get(ctx, h, url, nil)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(bytes.NewReader(body))
		for scanner.Scan() {
			p, ok := pxy.Parse(scanner.Text())
			if !ok {
				// malformed lines are dropped, not reported
				continue
			}
			found = append(found, p)
		}
		return found, scanner.Err()
	}
}
