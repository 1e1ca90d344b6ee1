package github

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	// lowQuota is the remaining request count below which fetches pause
	// until the quota resets.
	lowQuota = 100

	// maxBackoff caps the delay between server error retries.
	maxBackoff = 60 * time.Second

	// maxRetries is the number of retries after the first attempt.
	maxRetries = 3

	// defaultRateLimitWait applies when a rate limited response names no
	// reset time.
	defaultRateLimitWait = 60 * time.Second

	// maxRateLimitWait bounds a single wait so a bad reset header cannot
	// stall a batch for an hour.
	maxRateLimitWait = 15 * time.Minute
)

// quota is the request budget GitHub reports with every response.
type quota struct {
	Remaining int
	Reset     time.Time
	known     bool
}

// readQuota extracts the budget from response headers. The zero quota is
// returned when the headers are missing.
func readQuota(resp *http.Response) quota {
	if resp == nil {
		return quota{}
	}
	var q quota
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Remaining = n
			q.known = true
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			q.Reset = time.Unix(unix, 0)
		}
	}
	return q
}

// low reports whether fewer than lowQuota requests remain.
func (q quota) low() bool {
	return q.known && q.Remaining < lowQuota
}

// untilReset is the time left before the quota refills, never negative.
func (q quota) untilReset(now time.Time) time.Duration {
	if q.Reset.IsZero() {
		return 0
	}
	if d := q.Reset.Sub(now); d > 0 {
		return d
	}
	return 0
}

// rateLimited reports whether resp was rejected for quota reasons. GitHub
// also answers 403 for missing permissions, so a 403 only counts when the
// quota is exhausted or a Retry-After header is present.
func rateLimited(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		q := readQuota(resp)
		return (q.known && q.Remaining == 0) || resp.Header.Get("Retry-After") != ""
	}
	return false
}

// rateLimitWait decides how long to pause after a rate limited response.
// Retry-After wins because secondary limits set it without touching the
// quota headers.
func rateLimitWait(resp *http.Response, now time.Time) time.Duration {
	wait := defaultRateLimitWait
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		}
	} else if d := readQuota(resp).untilReset(now); d > 0 {
		wait = d
	}
	return min(wait, maxRateLimitWait)
}

// backoffDuration is the delay before retry attempt (0-indexed): 1s, 2s,
// 4s, ... capped at maxBackoff.
func backoffDuration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	return min(d, maxBackoff)
}

func serverError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}
