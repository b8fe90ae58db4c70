// Package geoip resolves an IP address to a coarse location. Lookups are best
// effort: callers always get an Info back, falling back to a fixed record
// when the upstream service cannot answer.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	FallbackIP      = "0.0.0.0"
	FallbackCountry = "XX"
	LocalCountry    = "LOCAL"
)

type Info struct {
	IP        string  `json:"ip"`
	Country   string  `json:"country"`
	Region    string  `json:"region"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// Fallback is returned whenever a lookup fails.
func Fallback() Info {
	return Info{IP: FallbackIP, Country: FallbackCountry}
}

func (i Info) IsFallback() bool {
	return i.IP == FallbackIP && i.Country == FallbackCountry
}

type Resolver interface {
	// Lookup resolves ip, or the caller's own public address when ip is empty.
	Lookup(ctx context.Context, ip string) Info
}

type HTTPResolver struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPResolver(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPResolver{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type ipapiResponse struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

// Lookup makes a single request and never retries.
func (r *HTTPResolver) Lookup(ctx context.Context, ip string) Info {
	ip = strings.TrimSpace(ip)
	if info, ok := localInfo(ip); ok {
		observability.RecordGeoIPLookup(ctx, "local")
		return info
	}
	info, err := r.fetch(ctx, ip)
	if err != nil {
		r.logger.WarnContext(ctx, "geoip lookup failed", "ip", ip, "error", err)
		observability.RecordGeoIPLookup(ctx, "fallback")
		return Fallback()
	}
	observability.RecordGeoIPLookup(ctx, "success")
	return info
}

func (r *HTTPResolver) fetch(ctx context.Context, ip string) (Info, error) {
	target := r.endpoint + "/json/"
	if ip != "" {
		target = r.endpoint + "/" + url.PathEscape(ip) + "/json/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Info{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Info{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body ipapiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return Info{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Error {
		return Info{}, fmt.Errorf("upstream error: %s", body.Reason)
	}
	if body.IP == "" {
		return Info{}, fmt.Errorf("response missing ip")
	}
	country := body.CountryCode
	if country == "" {
		country = body.Country
	}
	return Info{
		IP:        body.IP,
		Country:   country,
		Region:    body.Region,
		City:      body.City,
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Timezone:  body.Timezone,
	}, nil
}

// localInfo answers for loopback, private and link-local addresses, which no
// public service can place.
func localInfo(ip string) (Info, bool) {
	if ip == "" {
		return Info{}, false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Info{}, false
	}
	addr = addr.Unmap()
	if !addr.IsLoopback() && !addr.IsPrivate() && !addr.IsLinkLocalUnicast() && !addr.IsUnspecified() {
		return Info{}, false
	}
	return Info{IP: addr.String(), Country: LocalCountry, City: "Local Network"}, true
}
