// Package notify posts batch summaries to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jacklau/sonarfix/internal/retry"
)

// Notifier sends a batch summary somewhere people will read it.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// StatusError is returned when a webhook answers with a non-2xx status.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s webhook returned %d: %s", e.Service, e.Code, e.Body)
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: slog.Default()}
}

// Notify sends the summary to all configured notifiers. It logs errors from
// individual notifiers but continues to the rest, and returns them joined.
func (m *MultiNotifier) Notify(ctx context.Context, s Summary) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, s); err != nil {
			m.logger.Warn("notifier error", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retrying wraps a Notifier so that transient failures are retried with
// backoff. Client errors other than 429 are not retried.
type Retrying struct {
	next     Notifier
	attempts int
}

// WithRetry wraps n. attempts <= 0 uses retry.DefaultMaxAttempts.
func WithRetry(n Notifier, attempts int) *Retrying {
	return &Retrying{next: n, attempts: attempts}
}

// Unwrap returns the wrapped notifier.
func (r *Retrying) Unwrap() Notifier {
	return r.next
}

// Notify implements Notifier.
func (r *Retrying) Notify(ctx context.Context, s Summary) error {
	return retry.Do(ctx, r.attempts, func() error {
		err := r.next.Notify(ctx, s)
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	})
}

// NewNotifier creates a Notifier based on the notifyType.
// Supported types: "slack", "discord", "both".
func NewNotifier(notifyType string, slackURL, discordURL string) (Notifier, error) {
	switch notifyType {
	case "slack":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for slack notifier")
		}
		return NewSlackNotifier(slackURL), nil
	case "discord":
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for discord notifier")
		}
		return NewDiscordNotifier(discordURL), nil
	case "both":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for 'both' notifier")
		}
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for 'both' notifier")
		}
		return NewMultiNotifier(
			NewSlackNotifier(slackURL),
			NewDiscordNotifier(discordURL),
		), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %q", notifyType)
	}
}

// postJSON sends payload to url and maps non-2xx responses to *StatusError.
func postJSON(ctx context.Context, client *http.Client, service, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Service: service, Code: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
