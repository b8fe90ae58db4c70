package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPResolverLookupSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/8.8.8.8/json/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"8.8.8.8","city":"Mountain View","region":"California","country_code":"US","latitude":37.4,"longitude":-122.1,"timezone":"America/Los_Angeles"}`))
	}))
	defer srv.Close()

	info := NewHTTPResolver(srv.URL, time.Second, nil).Lookup(context.Background(), "8.8.8.8")
	if info.Country != "US" || info.City != "Mountain View" || info.Latitude != 37.4 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestHTTPResolverSelfLookupPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ip":"203.0.113.9","country_code":"NL"}`))
	}))
	defer srv.Close()

	info := NewHTTPResolver(srv.URL, time.Second, nil).Lookup(context.Background(), "")
	if info.IP != "203.0.113.9" || info.Country != "NL" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestHTTPResolverFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "non 200", handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }},
		{name: "malformed body", handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{not json`)) }},
		{name: "upstream error", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		}},
		{name: "slow", handler: func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"ip":"8.8.8.8"}`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tc.handler(w, r)
			}))
			defer srv.Close()

			info := NewHTTPResolver(srv.URL, 50*time.Millisecond, nil).Lookup(context.Background(), "8.8.8.8")
			if info != Fallback() {
				t.Fatalf("expected fallback, got %+v", info)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one request, got %d", calls.Load())
			}
		})
	}
}

func TestHTTPResolverUnreachable(t *testing.T) {
	info := NewHTTPResolver("http://127.0.0.1:1", 50*time.Millisecond, nil).Lookup(context.Background(), "8.8.8.8")
	if !info.IsFallback() || info.Latitude != 0 || info.Longitude != 0 {
		t.Fatalf("expected fallback, got %+v", info)
	}
}

func TestHTTPResolverLocalAddressesSkipNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("local addresses must not reach the upstream")
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, time.Second, nil)
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "::1", "fe80::1"} {
		info := r.Lookup(context.Background(), ip)
		if info.Country != LocalCountry {
			t.Fatalf("%s: expected local record, got %+v", ip, info)
		}
	}
}
