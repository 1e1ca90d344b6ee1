package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/sonarfix/internal/source"
)

// ContentsFetcher reads files at a fixed ref through the repository
// contents API. Results are cached per path for the fetcher's lifetime,
// since a batch usually reports many issues in the same file.
type ContentsFetcher struct {
	client *gogithub.Client
	owner  string
	repo   string
	ref    string
	logger *slog.Logger

	// wait is replaceable so tests don't sleep through backoff.
	wait func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	cache map[string][]byte
}

var _ source.Fetcher = (*ContentsFetcher)(nil)

// NewContentsFetcher creates a fetcher for fullName ("owner/repo") at ref.
func NewContentsFetcher(client *gogithub.Client, fullName, ref string, logger *slog.Logger) (*ContentsFetcher, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("repository must be owner/name, got %q", fullName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentsFetcher{
		client: client,
		owner:  owner,
		repo:   repo,
		ref:    ref,
		logger: logger,
		wait:   sleepCtx,
		cache:  make(map[string][]byte),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Fetch returns the decoded contents of path.
func (f *ContentsFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	if data, ok := f.cache[path]; ok {
		f.mu.Unlock()
		return data, nil
	}
	f.mu.Unlock()

	data, err := f.fetchWithRetry(ctx, path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[path] = data
	f.mu.Unlock()
	return data, nil
}

// fetchWithRetry wraps the contents call with retries for server errors
// and waits for rate limits. A rate limit wait uses up an attempt.
func (f *ContentsFetcher) fetchWithRetry(ctx context.Context, path string) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDuration(attempt - 1)
			f.logger.Debug("retrying contents fetch", "path", path, "attempt", attempt, "wait", wait)
			if err := f.wait(ctx, wait); err != nil {
				return nil, err
			}
		}

		data, resp, err := f.getContents(ctx, path)

		var httpResp *http.Response
		if resp != nil {
			httpResp = resp.Response
		}

		switch {
		case httpResp != nil && httpResp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s@%s", source.ErrNotFound, path, f.ref)

		case rateLimited(httpResp):
			wait := rateLimitWait(httpResp, time.Now())
			f.logger.Warn("github rate limited", "path", path, "wait", wait)
			if err := f.wait(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case serverError(httpResp):
			if attempt < maxRetries {
				continue
			}
			return nil, fmt.Errorf("fetching %s: server error %d after %d retries", path, httpResp.StatusCode, maxRetries)

		case err != nil:
			return nil, fmt.Errorf("fetching %s: %w", path, err)
		}

		if q := readQuota(httpResp); q.low() {
			if wait := min(q.untilReset(time.Now()), maxRateLimitWait); wait > 0 {
				f.logger.Info("rate limit low, waiting", "remaining", q.Remaining, "wait", wait)
				if err := f.wait(ctx, wait); err != nil {
					return nil, err
				}
			}
		}
		return data, nil
	}

	return nil, fmt.Errorf("fetching %s: still rate limited after %d attempts", path, maxRetries+1)
}

func (f *ContentsFetcher) getContents(ctx context.Context, path string) ([]byte, *gogithub.Response, error) {
	opts := &gogithub.RepositoryContentGetOptions{Ref: f.ref}
	file, dir, resp, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, path, opts)
	if err != nil {
		return nil, resp, err
	}
	if file == nil {
		return nil, resp, fmt.Errorf("%s is a directory with %d entries", path, len(dir))
	}

	// Files over 1 MB come back with encoding "none" and no content.
	if file.GetEncoding() == "none" {
		rc, dresp, err := f.client.Repositories.DownloadContents(ctx, f.owner, f.repo, path, opts)
		if err != nil {
			return nil, dresp, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, dresp, err
	}

	text, err := file.GetContent()
	if err != nil {
		return nil, resp, fmt.Errorf("decoding %s: %w", path, err)
	}
	return []byte(text), resp, nil
}
