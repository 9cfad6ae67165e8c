// Package httputil provides HTTP utilities for binary cache clients.
//
// # Retry
//
// [Retry] wraps lookups with automatic retry for transient failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Only errors wrapped in [RetryableError] are retried; a definitive
// answer (found, or an authoritative 404) passes through immediately.
// The wait between attempts starts at [DefaultDelay] and doubles each
// time, so a flaky cache root is given room to recover without stalling
// the whole fetch stage:
//
//	err := httputil.Retry(ctx, attempts, httputil.DefaultDelay, func() error {
//	    return lookup(url)
//	})
//
// Callers that walk multiple cache roots restart the backoff per root;
// the budget bounds attempts against one root, not the whole walk.
package httputil
