package pxy

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

type Proto string

const (
	SOCKS5 Proto = "socks5"
	SOCKS4 Proto = "socks4"
	HTTP   Proto = "http"
	HTTPS  Proto = "https"
)

var knownProtos = map[string]Proto{
	"socks5": SOCKS5,
	"socks4": SOCKS4,
	"http":   HTTP,
	"https":  HTTPS,
}

// Proxy is an unvalidated candidate or a validated pool member,
// depending on who holds it. Zero value is not valid.
type Proxy struct {
	Proto Proto
	Host  string
	Port  uint16
}

func (p Proxy) Valid() bool {
	return p.Host != "" && p.Port != 0
}

func (p Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

func (p Proxy) String() string {
	return fmt.Sprintf("%s://%s", p.Proto, p.Addr())
}

func (p Proxy) URL() *url.URL {
	return &url.URL{
		Scheme: string(p.Proto),
		Host:   p.Addr(),
	}
}

func (p Proxy) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, p.String())), nil
}

func (p Proxy) IsTunnel() bool {
	return p.Proto == SOCKS4 || p.Proto == SOCKS5
}

var dottedQuad = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// Parse accepts scheme://host:port with a known scheme, or a bare
// host:port defaulting to socks5. Anything else is rejected with
// ok=false and no error, feed lines are untrusted input.
func Parse(line string) (Proxy, bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	proto := SOCKS5
	if scheme, rest, found := strings.Cut(line, "://"); found {
		p, ok := knownProtos[scheme]
		if !ok {
			return Proxy{}, false
		}
		proto = p
		line = rest
	}
	host, rawPort, err := net.SplitHostPort(line)
	if err != nil || host == "" {
		return Proxy{}, false
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port < 1 || port > 65535 {
		return Proxy{}, false
	}
	if dottedQuad.MatchString(host) && net.ParseIP(host) == nil {
		// looks like an IPv4 literal, but octets are out of range
		return Proxy{}, false
	}
	return Proxy{Proto: proto, Host: host, Port: uint16(port)}, true
}
