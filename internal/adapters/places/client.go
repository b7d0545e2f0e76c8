// internal/adapters/places/client.go
package places

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
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

// DetailFields is the field mask sent with every details request.
const DetailFields = "name,rating,formatted_phone_number,vicinity,place_id,website,opening_hours,geometry"

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) NearbySearch(ctx context.Context, origin domain.Coordinate, category string, creds domain.Credentials) ([]domain.PlaceRecord, error) {
	q := url.Values{}
	q.Set("location", origin.String())
	q.Set("type", category)
	q.Set("rankby", "distance")
	q.Set("key", c.apiKey(creds))

	var out nearbyResponse
	if err := c.get(ctx, "nearbysearch", c.base+"/nearbysearch/json?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, statusErr(out.Status, out.ErrorMessage)
	}

	recs := make([]domain.PlaceRecord, 0, len(out.Results))
	for _, r := range out.Results {
		recs = append(recs, r.toDomain())
	}
	return recs, nil
}

func (c *Client) Details(ctx context.Context, id string, creds domain.Credentials) (domain.PlaceRecord, error) {
	q := url.Values{}
	q.Set("place_id", id)
	q.Set("fields", DetailFields)
	q.Set("key", c.apiKey(creds))

	var out detailsResponse
	if err := c.get(ctx, "details", c.base+"/details/json?"+q.Encode(), &out); err != nil {
		return domain.PlaceRecord{}, err
	}
	switch out.Status {
	case "OK":
		if out.Result == nil {
			return domain.PlaceRecord{}, domain.ErrNotFound
		}
		rec := out.Result.toDomain()
		if rec.ExternalID == "" {
			rec.ExternalID = id
		}
		return rec, nil
	case "NOT_FOUND", "ZERO_RESULTS", "INVALID_REQUEST":
		return domain.PlaceRecord{}, domain.ErrNotFound
	default:
		return domain.PlaceRecord{}, statusErr(out.Status, out.ErrorMessage)
	}
}

// ---- Internals ----

var (
	ErrUnauthorized = errors.New("places: unauthorized")
	ErrForbidden    = errors.New("places: forbidden")
	ErrStatus       = errors.New("places: provider status")
)

func (c *Client) apiKey(creds domain.Credentials) string {
	if creds.APIKey != "" {
		return creds.APIKey
	}
	return c.key
}

func statusErr(status, msg string) error {
	if msg != "" {
		return fmt.Errorf("%w: %w %s: %s", domain.ErrTransport, ErrStatus, status, msg)
	}
	return fmt.Errorf("%w: %w %s", domain.ErrTransport, ErrStatus, status)
}

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, endpoint, rawURL string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "service-locator/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("places", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrTransport, lastErr)
		}
		observability.ObserveExternal("places", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: decode %s: %v", domain.ErrTransport, endpoint, err)
			}
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return domain.ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return fmt.Errorf("%w: %w", domain.ErrTransport, ErrUnauthorized)

		case http.StatusForbidden:
			resp.Body.Close()
			return fmt.Errorf("%w: %w", domain.ErrTransport, ErrForbidden)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: remote %d", domain.ErrTransport, resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: bad status %d: %s", domain.ErrTransport, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 100ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 100 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
