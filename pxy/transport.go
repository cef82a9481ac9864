package pxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	// registers socks4 scheme in golang.org/x/net/proxy
	_ "github.com/bdandy/go-socks4"
)

type ckey int

const proxyKey ckey = iota

func (p Proxy) InContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, proxyKey, p)
}

func FromContext(ctx context.Context) (Proxy, bool) {
	p, ok := ctx.Value(proxyKey).(Proxy)
	return p, ok
}

var DefaultTlsConfig = &tls.Config{
	InsecureSkipVerify: true,
	NextProtos:         []string{"http/1.1"},
}

var DefaultDialer = &net.Dialer{
	Timeout:   5 * time.Second,
	KeepAlive: 0,
}

// SOCKS tunnels are established here, HTTP(S) forwarders are handled
// higher on the stack through Transport.Proxy.
func dialProxiedConnection(ctx context.Context, network, addr string) (net.Conn, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return DefaultDialer.DialContext(ctx, network, addr)
	}
	switch p.Proto {
	case SOCKS4, SOCKS5:
		dialer, err := proxy.FromURL(p.URL(), proxy.Direct)
		if err != nil {
			return nil, err
		}
		conn, err := dialer.Dial(network, addr)
		if err != nil {
			return nil, fmt.Errorf("dial socks: %w", err)
		}
		return conn, nil
	default:
		return DefaultDialer.DialContext(ctx, network, addr)
	}
}

func proxyFromRequest(r *http.Request) (*url.URL, error) {
	p, ok := FromContext(r.Context())
	if !ok || p.IsTunnel() {
		return nil, nil
	}
	return p.URL(), nil
}

// ContextualTransport routes every request through the proxy found in
// its context, if any. Keep-alives are off, remote proxies are too
// unreliable to pool connections on.
func ContextualTransport() *http.Transport {
	return &http.Transport{
		Proxy:             proxyFromRequest,
		DialContext:       dialProxiedConnection,
		TLSClientConfig:   DefaultTlsConfig,
		DisableKeepAlives: true,
		MaxIdleConns:      0,
	}
}

var DefaultHttpClient = &http.Client{
	Transport: ContextualTransport(),
	Timeout:   10 * time.Second,
}
