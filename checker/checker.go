package checker

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dvo/proxypool/app"
	"github.com/dvo/proxypool/pxy"

	"github.com/corpix/uarand"
	"github.com/microcosm-cc/bluemonday"
)

type Checker interface {
	Check(ctx context.Context, proxy pxy.Proxy) (time.Duration, error)
}

// probe targets echo the caller's external IP, so a response shaped
// like a bare IP is enough to confirm the tunnel works end to end
var probePages = []string{
	"https://ifconfig.me/ip",
	"https://myexternalip.com/raw",
	"https://ipv4.icanhazip.com/",
	"https://ipinfo.io/ip",
	"https://api.ipify.org/",
	"https://wtfismyip.com/text",
}

var (
	ipRegex       = regexp.MustCompile(`(?m)^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	errCloudFlare = fmt.Errorf("cloudflare captcha")
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var defaultClient httpClient = pxy.DefaultHttpClient

func NewChecker() Checker {
	var pages federated
	for _, page := range probePages {
		pages = append(pages, &simple{
			client: defaultClient,
			page:   page,
		})
	}
	return &configurableChecker{
		client:    defaultClient,
		federated: pages,
	}
}

type configurableChecker struct {
	client    httpClient
	federated federated
}

func (cc *configurableChecker) Configure(conf app.Config) error {
	original, ok := cc.client.(*http.Client)
	if ok {
		original.Timeout = conf.DurOr("timeout", 10*time.Second)
	}
	return nil
}

func (cc *configurableChecker) Check(ctx context.Context, proxy pxy.Proxy) (time.Duration, error) {
	return cc.federated.Check(ctx, proxy)
}

// federated picks a random probe target per check, so that a single
// rate-limiting echo service cannot poison the whole pool
type federated []*simple

func (f federated) Check(ctx context.Context, proxy pxy.Proxy) (time.Duration, error) {
	choice := rand.Intn(len(f))
	return f[choice].Check(ctx, proxy)
}

type simple struct {
	client httpClient
	page   string
}

func (sc *simple) Check(ctx context.Context, proxy pxy.Proxy) (time.Duration, error) {
	start := time.Now()
	page := sc.page
	if proxy.Proto == pxy.HTTP {
		page = strings.Replace(page, "https", "http", 1)
	}
	req, err := http.NewRequestWithContext(proxy.InContext(ctx), "GET", page, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", uarand.GetRandom())
	res, err := sc.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, err
	}
	err = validate(string(body))
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func validate(body string) error {
	if strings.Contains(body, "Cloudflare") {
		return errCloudFlare
	}
	if !ipRegex.MatchString(body) {
		return fmt.Errorf("not ip: %s", truncatedBody(body))
	}
	return nil
}

var sanitize = bluemonday.StrictPolicy()

func truncatedBody(body string) string {
	body = sanitize.Sanitize(body)
	body = app.Shrink(body)
	cutoff := 512
	if len(body) > cutoff {
		return body[:cutoff] + fmt.Sprintf(" (%db more)", len(body)-cutoff)
	}
	return body
}
