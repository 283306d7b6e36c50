package embed

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"ref_src": {},
	"si":      {},
	"yclid":   {},
	"_hsenc":  {},
	"_hsmi":   {},
}

// Normalize canonicalizes a URL for dedup and dispatch: http(s) only,
// lower-case scheme and host, no default port, no userinfo, no fragment,
// tracking parameters removed and the query sorted.
func Normalize(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}
	if strings.HasPrefix(strings.ToLower(raw), "www.") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		query := u.Query()
		for key := range query {
			lower := strings.ToLower(key)
			if strings.HasPrefix(lower, "utm_") {
				delete(query, key)
				continue
			}
			if _, ok := trackingParams[lower]; ok {
				delete(query, key)
			}
		}
		u.RawQuery = query.Encode()
	}
	u.ForceQuery = false
	return u, nil
}

// hostIs reports whether u's host equals one of hosts.
func hostIs(u *url.URL, hosts ...string) bool {
	h := u.Hostname()
	for _, candidate := range hosts {
		if h == candidate {
			return true
		}
	}
	return false
}
