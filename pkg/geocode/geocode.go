// Package geocode resolves free-text place queries into candidate
// coordinates through a Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultServer    = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "bookmap/1.0 (+https://github.com/rubiojr/bookmap)"
	DefaultTimeout   = 10 * time.Second
	DefaultLimit     = 5

	// Upper bound accepted by the public Nominatim instance.
	maxLimit = 40
	// Responses larger than this are treated as malformed.
	maxBody = 4 << 20
)

var (
	// ErrLookupFailed marks every failure to obtain an answer from the
	// service. It is distinct from an empty result.
	ErrLookupFailed = errors.New("geocoding lookup failed")
	// ErrEmptyQuery is returned for blank queries; no request is made.
	ErrEmptyQuery = errors.New("empty query")
)

// Candidate is a transient geocoded search result.
type Candidate struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Class       string  `json:"class,omitempty"`
	Type        string  `json:"type,omitempty"`
}

// searchResult mirrors the subset of the Nominatim JSON answer we use.
// Coordinates arrive as strings.
type searchResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Class       string `json:"class"`
	Type        string `json:"type"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithServer sets the service base URL.
func WithServer(server string) Option {
	return func(r *Resolver) {
		if s := strings.TrimSpace(server); s != "" {
			r.server = strings.TrimRight(s, "/")
		}
	}
}

// WithUserAgent sets the client identifier sent with every request.
func WithUserAgent(ua string) Option {
	return func(r *Resolver) {
		if s := strings.TrimSpace(ua); s != "" {
			r.userAgent = s
		}
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its own Timeout is left as is.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// Resolver performs stateless lookups: no caching, no retries, no throttling.
type Resolver struct {
	server    string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	log       *zap.Logger
}

// New returns a Resolver for the public Nominatim instance unless
// overridden by options.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		server:    DefaultServer,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: r.timeout}
	}
	return r
}

// Search returns up to limit candidates for query in the service's own
// relevance order. No match yields an empty slice and a nil error; any
// failure to get a usable answer wraps ErrLookupFailed.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("limit", strconv.Itoa(limit))
	endpoint := r.server + "/search?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("lookup error", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		r.log.Warn("lookup bad status", zap.String("query", query), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	var raw []searchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrLookupFailed, err)
	}

	out := make([]Candidate, 0, min(len(raw), limit))
	for _, res := range raw {
		if len(out) >= limit {
			break
		}
		c, err := res.candidate()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
		}
		out = append(out, c)
	}
	r.log.Debug("lookup ok",
		zap.String("query", query),
		zap.Int("results", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func (s searchResult) candidate() (Candidate, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(s.Lat), 64)
	if err != nil {
		return Candidate{}, fmt.Errorf("bad lat %q for %q", s.Lat, s.DisplayName)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(s.Lon), 64)
	if err != nil {
		return Candidate{}, fmt.Errorf("bad lon %q for %q", s.Lon, s.DisplayName)
	}
	return Candidate{
		DisplayName: s.DisplayName,
		Lat:         lat,
		Lon:         lon,
		Class:       s.Class,
		Type:        s.Type,
	}, nil
}
