// Package reddit is a client for the public Reddit JSON listing API.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
)

const breakerName = "reddit-api"

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// Client fetches listings, single posts and subreddit metadata.
type Client struct {
	http  *resty.Client
	cb    *gobreaker.CircuitBreaker[[]byte]
	cache *listingCache
	log   *slog.Logger
}

// New creates a Client.
func New(opts Options, log *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json").
		SetQueryParam("raw_json", "1")

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		http:  httpClient,
		cb:    cb,
		cache: newListingCache(opts.CacheTTL),
		log:   log,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// TopPosts returns the subreddit's top posts over period, in listing order.
// Results are cached for the configured TTL.
func (c *Client) TopPosts(ctx context.Context, subreddit string, limit int, period model.TimePeriod) ([]model.Post, error) {
	key := strings.ToLower(subreddit) + "|" + strconv.Itoa(limit) + "|" + string(period)
	if posts, ok := c.cache.get(key); ok {
		metrics.ListingCacheHits.Inc()
		return posts, nil
	}

	req := c.http.R().
		SetPathParam("subreddit", subreddit).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetQueryParam("t", string(period))

	body, err := c.get(ctx, "top", req, "/r/{subreddit}/top.json")
	if err != nil {
		return nil, err
	}

	var resp thing[listing]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SourceError{Op: "top", Err: fmt.Errorf("decode listing: %w", err)}
	}

	posts := make([]model.Post, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		posts = append(posts, child.Data.toModel())
	}
	c.cache.put(key, posts)
	return posts, nil
}

// PostByID fetches a single post by its base36 id.
func (c *Client) PostByID(ctx context.Context, id string) (*model.Post, error) {
	req := c.http.R().SetQueryParam("id", "t3_"+id)

	body, err := c.get(ctx, "info", req, "/api/info.json")
	if err != nil {
		return nil, err
	}

	var resp thing[listing]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SourceError{Op: "info", Err: fmt.Errorf("decode listing: %w", err)}
	}
	for _, child := range resp.Data.Children {
		if child.Kind == "t3" && child.Data.ID == id {
			p := child.Data.toModel()
			return &p, nil
		}
	}
	return nil, &SourceError{Op: "info", Err: ErrNotFound}
}

// SubredditAbout looks up a subreddit and returns its canonical name.
// A missing, banned or private subreddit yields ErrNotFound.
func (c *Client) SubredditAbout(ctx context.Context, name string) (*About, error) {
	req := c.http.R().SetPathParam("subreddit", name)

	body, err := c.get(ctx, "about", req, "/r/{subreddit}/about.json")
	if err != nil {
		return nil, err
	}

	// Unknown names redirect to a search listing instead of a t5 thing.
	var resp thing[aboutData]
	if err := json.Unmarshal(body, &resp); err != nil || resp.Kind != "t5" || resp.Data.DisplayName == "" {
		return nil, &SourceError{Op: "about", Err: ErrNotFound}
	}
	return &About{
		Name:   resp.Data.DisplayName,
		Title:  resp.Data.Title,
		Over18: resp.Data.Over18,
	}, nil
}

func (c *Client) get(ctx context.Context, op string, req *resty.Request, path string) ([]byte, error) {
	body, err := c.cb.Execute(func() ([]byte, error) {
		resp, err := req.SetContext(ctx).Get(path)
		if err != nil {
			return nil, &SourceError{Op: op, Err: err}
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusNotFound, code == http.StatusForbidden:
			return nil, &SourceError{Op: op, Status: code, Err: ErrNotFound}
		case code != http.StatusOK:
			return nil, &SourceError{Op: op, Status: code, Err: errors.New(http.StatusText(code))}
		}
		return resp.Body(), nil
	})

	switch {
	case err == nil:
		metrics.SourceRequests.WithLabelValues(op, metrics.OutcomeSuccess).Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.SourceRequests.WithLabelValues(op, metrics.OutcomeRejected).Inc()
		return nil, &SourceError{Op: op, Err: err}
	default:
		metrics.SourceRequests.WithLabelValues(op, metrics.OutcomeFailure).Inc()
	}
	return body, err
}
