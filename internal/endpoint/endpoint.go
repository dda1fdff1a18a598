// Package endpoint builds socket URLs from host, port, path, transport and
// query parameters.
package endpoint

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is a URL protocol scheme.
type Scheme string

const (
	// HTTP is the literal string, "http".
	HTTP Scheme = "http"

	// HTTPS is the literal string, "https".
	HTTPS Scheme = "https"

	// WS is the literal string, "ws".
	WS Scheme = "ws"

	// WSS is the literal string, "wss".
	WSS Scheme = "wss"
)

// DefaultTransport is the path segment Phoenix serves WebSocket upgrades on.
const DefaultTransport = "websocket"

// Endpoint describes where a socket connects.
type Endpoint struct {
	Host      string            // Host name, optionally with ":port"
	Port      int               // 0 = omitted (or taken from Host)
	Path      string            // Mount path, e.g. "socket"
	Transport string            // Final path segment, e.g. "websocket" (empty = none)
	Protocol  Scheme            // Empty = HTTP
	Params    map[string]string // Query parameters
}

// URL returns the endpoint as a URL string. Query parameters are sorted
// by key.
func (e Endpoint) URL() string {
	u := e.url()
	return u.String()
}

func (e Endpoint) url() url.URL {
	scheme := e.Protocol
	if scheme == "" {
		scheme = HTTP
	}

	host := e.Host
	if e.Port > 0 {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = net.JoinHostPort(host, strconv.Itoa(e.Port))
	}

	var segments []string
	if p := strings.Trim(e.Path, "/"); p != "" {
		segments = append(segments, p)
	}
	if t := strings.Trim(e.Transport, "/"); t != "" {
		segments = append(segments, t)
	}

	u := url.URL{
		Scheme: string(scheme),
		Host:   host,
		Path:   "/" + strings.Join(segments, "/"),
	}

	if len(e.Params) > 0 {
		params := url.Values{}
		for k, v := range e.Params {
			params.Set(k, v)
		}
		u.RawQuery = params.Encode()
	}

	return u
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.URL()
}

// Parse builds an Endpoint from a complete URL. The whole path is kept in
// Path and Transport is left empty. Params hold one value per key, so a
// repeated query key is rejected; otherwise URL() reproduces the input
// with its parameters sorted.
func Parse(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint: %w", err)
	}

	scheme := Scheme(strings.ToLower(u.Scheme))
	switch scheme {
	case HTTP, HTTPS, WS, WSS:
	default:
		return Endpoint{}, fmt.Errorf("parse endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("parse endpoint: missing host in %q", raw)
	}

	e := Endpoint{
		Host:     u.Hostname(),
		Path:     strings.Trim(u.Path, "/"),
		Protocol: scheme,
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse endpoint port: %w", err)
		}
		e.Port = port
	}

	q := u.Query()
	if len(q) > 0 {
		e.Params = make(map[string]string, len(q))
		for k, v := range q {
			if len(v) > 1 {
				return Endpoint{}, fmt.Errorf("parse endpoint: repeated query parameter %q", k)
			}
			e.Params[k] = v[0]
		}
	}

	return e, nil
}
