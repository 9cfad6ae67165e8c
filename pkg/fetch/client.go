package fetch

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nixcov/nixcov/pkg/buildinfo"
	"github.com/nixcov/nixcov/pkg/cache"
	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/httputil"
	"github.com/nixcov/nixcov/pkg/narinfo"
	"github.com/nixcov/nixcov/pkg/observability"
	"github.com/nixcov/nixcov/pkg/storepath"
)

const (
	httpTimeout = 30 * time.Second

	// maxBodySize caps narinfo response bodies. Real records are well
	// under a kilobyte; anything larger is garbage.
	maxBodySize = 1 << 20
)

// NewHTTPClient creates an HTTP client with a standard timeout for
// narinfo lookups.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// client performs narinfo lookups against the configured cache roots,
// keeping a response cache scoped per root so that identical hashes
// under different roots never collide.
type client struct {
	http    *http.Client
	scopes  map[string]cache.Cache
	ttl     time.Duration
	refresh bool
	agent   string
}

func newClient(opts Options) *client {
	scopes := make(map[string]cache.Cache, len(opts.Roots))
	for _, root := range opts.Roots {
		scopes[root] = cache.NewScopedCache(opts.Cache, cache.Key("narinfo", root)+":")
	}
	return &client{
		http:    opts.HTTPClient,
		scopes:  scopes,
		ttl:     opts.CacheTTL,
		refresh: opts.Refresh,
		agent:   "nixcov/" + buildinfo.Version,
	}
}

// lookup fetches the narinfo record for h from one cache root.
// The second return value is false when the root authoritatively
// reports the path absent, via HTTP 404 or the literal body "404".
// Only found records enter the response cache: a path absent today
// may be uploaded tomorrow.
func (c *client) lookup(ctx context.Context, root string, h storepath.Hash) (*narinfo.NarInfo, bool, error) {
	key := h.String()
	responses := c.scopes[root]

	if !c.refresh {
		if body, ok, err := responses.Get(ctx, key); err == nil && ok {
			if info, found, err := narinfo.Parse(body); err == nil && found {
				observability.Cache().OnCacheHit(ctx, "narinfo")
				return info, true, nil
			}
			// unusable cache entry: drop it and hit the network
			_ = responses.Delete(ctx, key)
		}
		observability.Cache().OnCacheMiss(ctx, "narinfo")
	}

	body, err := c.get(ctx, lookupURL(root, h))
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	info, found, err := narinfo.Parse(body)
	if err != nil {
		// a 200 body that fails to parse is a transport-class fault
		return nil, false, &httputil.RetryableError{Err: err}
	}
	if !found {
		return nil, false, nil
	}

	_ = responses.Set(ctx, key, body, c.ttl)
	observability.Cache().OnCacheSet(ctx, "narinfo", len(body))
	return info, true, nil
}

// get performs the GET and returns the body of a 200 response.
func (c *client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "building request for %s", url)
	}
	req.Header.Set("User-Agent", c.agent)

	host, path := req.URL.Host, req.URL.Path
	observability.HTTP().OnRequest(ctx, http.MethodGet, host, path)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, host, path, err)
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", url)}
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "reading %s", url)}
	}
	return body, nil
}

// lookupURL builds the metadata location: {root}/{hash}.narinfo
func lookupURL(root string, h storepath.Hash) string {
	return strings.TrimRight(root, "/") + "/" + h.String() + ".narinfo"
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "not present at this root")
	case resp.StatusCode == http.StatusTooManyRequests:
		limited := &errors.RateLimitedError{RetryAfter: retryAfter(resp), Message: "narinfo lookup rate limited"}
		return &httputil.RetryableError{Err: limited}
	case resp.StatusCode >= 500:
		return &httputil.RetryableError{Err: errors.New(errors.ErrCodeNetwork, "status %d", resp.StatusCode)}
	default:
		return errors.New(errors.ErrCodeNetwork, "status %d", resp.StatusCode)
	}
}

// retryAfter parses the Retry-After header (seconds form only).
func retryAfter(resp *http.Response) int {
	s, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || s < 0 {
		return 0
	}
	return s
}
