package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// GeoLocation is the country/region/city triple attached to events.
type GeoLocation struct {
	Country string
	Region  string
	City    string
}

// ipAPIResponse represents the response from ip-api.com.
type ipAPIResponse struct {
	Status     string `json:"status"`
	City       string `json:"city"`
	RegionName string `json:"regionName"`
	Country    string `json:"country"`
	Message    string `json:"message,omitempty"`
}

// defaultGeoCacheSize is the maximum number of cached IP lookups.
const defaultGeoCacheSize = 1000

// GeoResolver resolves client IPs to coarse locations using ip-api.com,
// with an LRU cache and a request budget staying under the free tier's
// 45 requests per minute.
type GeoResolver struct {
	baseURL              string
	client               *http.Client
	mu                   sync.Mutex
	cache                map[string]*GeoLocation
	accessOrder          []string // LRU order: oldest at front, newest at back
	maxCacheSize         int
	maxRequestsPerMinute int
	requestCount         int
	windowStart          time.Time
}

// NewGeoResolver creates a resolver. baseURL must include the trailing
// slash; empty selects the public ip-api.com endpoint.
func NewGeoResolver(baseURL string) *GeoResolver {
	if baseURL == "" {
		baseURL = "http://ip-api.com/json/"
	}
	return &GeoResolver{
		baseURL:              baseURL,
		client:               &http.Client{Timeout: 10 * time.Second},
		cache:                make(map[string]*GeoLocation),
		accessOrder:          make([]string, 0, defaultGeoCacheSize),
		maxCacheSize:         defaultGeoCacheSize,
		maxRequestsPerMinute: 40,
	}
}

// Lookup returns the location for an IP, from cache when possible. A nil
// location with nil error means the IP cannot be geolocated (private range,
// rate limit); that is not a failure.
func (r *GeoResolver) Lookup(ctx context.Context, ip string) (*GeoLocation, error) {
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		ip = host
	}

	r.mu.Lock()
	if loc, ok := r.cache[ip]; ok {
		r.moveToEnd(ip)
		r.mu.Unlock()
		return loc, nil
	}

	now := time.Now()
	if now.Sub(r.windowStart) > time.Minute {
		r.requestCount = 0
		r.windowStart = now
	}
	if r.requestCount >= r.maxRequestsPerMinute {
		r.mu.Unlock()
		log.Debug().Str("ip", ip).Msg("geolocation rate limited")
		return nil, nil
	}
	r.requestCount++
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+ip, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Status != "success" {
		// not an error, the IP just has no public location
		log.Debug().Str("ip", ip).Str("reason", result.Message).Msg("geolocation unavailable")
		return nil, nil
	}

	loc := &GeoLocation{
		Country: result.Country,
		Region:  result.RegionName,
		City:    result.City,
	}

	r.mu.Lock()
	for len(r.cache) >= r.maxCacheSize && len(r.accessOrder) > 0 {
		oldest := r.accessOrder[0]
		r.accessOrder = r.accessOrder[1:]
		delete(r.cache, oldest)
	}
	r.cache[ip] = loc
	r.accessOrder = append(r.accessOrder, ip)
	r.mu.Unlock()

	return loc, nil
}

// moveToEnd marks an IP most recently used. Must be called with r.mu held.
func (r *GeoResolver) moveToEnd(ip string) {
	for i, v := range r.accessOrder {
		if v == ip {
			r.accessOrder = append(r.accessOrder[:i], r.accessOrder[i+1:]...)
			r.accessOrder = append(r.accessOrder, ip)
			return
		}
	}
}

// Len returns the current number of cached lookups.
func (r *GeoResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
