// Package nominatim geocodes free text through an OpenStreetMap Nominatim endpoint.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"service_locator/internal/adapters/observability"
	"service_locator/internal/domain"
)

type Client struct {
	base      string
	hc        *http.Client
	rl        *rate.Limiter
	userAgent string
}

// New builds a client. Public Nominatim allows one request per second, so rps
// defaults to 1.
func New(base string, rps int) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		base:      strings.TrimRight(base, "/"),
		hc:        &http.Client{Timeout: 15 * time.Second},
		rl:        rate.NewLimiter(rate.Limit(rps), 1),
		userAgent: "service-locator/1.0",
	}
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the first match for query or domain.ErrNotFound.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Coordinate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Coordinate{}, domain.ErrNotFound
	}
	if err := c.rl.Wait(ctx); err != nil {
		return domain.Coordinate{}, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/search?"+q.Encode(), nil)
	if err != nil {
		return domain.Coordinate{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("nominatim", "search", 0, time.Since(start))
		if ctx.Err() != nil {
			return domain.Coordinate{}, ctx.Err()
		}
		return domain.Coordinate{}, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("nominatim", "search", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Coordinate{}, fmt.Errorf("%w: bad status %d: %s", domain.ErrTransport, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: decode search: %v", domain.ErrTransport, err)
	}
	if len(hits) == 0 {
		return domain.Coordinate{}, domain.ErrNotFound
	}

	lat, err1 := strconv.ParseFloat(hits[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(hits[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: malformed coordinate %q,%q", domain.ErrTransport, hits[0].Lat, hits[0].Lon)
	}
	return domain.Coordinate{Lat: lat, Lng: lng}, nil
}
