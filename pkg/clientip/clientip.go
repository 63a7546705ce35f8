package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// FromRequest returns the normalized client address, or "" when neither a
// trusted header nor RemoteAddr holds a valid one.
func FromRequest(r *http.Request, trustedHeaders ...string) string {
	for _, name := range trustedHeaders {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		for part := range strings.SplitSeq(value, ",") {
			if ip := normalize(part); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalize(host)
}

func normalize(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().WithZone("").String()
}
