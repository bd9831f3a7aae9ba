// internal/telemetry/clientinfo.go
//
// Best-effort client metadata for telemetry rows: the originating IP and
// a GeoIP country hint.
//
// All lookups are read-only and pool-based, so they are safe under heavy
// concurrency.  A missing or unreadable GeoLite2 database simply leaves
// the country empty; telemetry never fails the request.
package telemetry

import (
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Geo wraps an optional MaxMind reader.  The zero value (nil reader)
// answers every lookup with an empty country.
type Geo struct {
	reader *geoip2.Reader
}

// OpenGeo opens the GeoLite2 database at dbPath.  An empty path returns
// a no-op Geo rather than an error so deployments without the database
// just lose the country column.
func OpenGeo(dbPath string) (*Geo, error) {
	if dbPath == "" {
		return &Geo{}, nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Geo{reader: r}, nil
}

// Country returns the ISO country code for ip, or "".
func (g *Geo) Country(ip net.IP) string {
	if g == nil || g.reader == nil || ip == nil {
		return ""
	}
	rec, err := g.reader.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

// Close releases the MaxMind handle.
func (g *Geo) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-Ip, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
