package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier sends batch summaries to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackPayload is the top-level Slack message payload.
type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

func mrkdwn(text string) slackBlock {
	return slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}}
}

// BuildSlackPayload creates the Block Kit message for a batch summary.
func BuildSlackPayload(s Summary) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "Sonar Fix Batch Complete"},
		},
		mrkdwn(fmt.Sprintf(":bar_chart: %s", headline(s))),
		mrkdwn(fmt.Sprintf("*Outcomes:* %s", FormatCounts(s.Counts()))),
	}

	if s.Source != "" {
		blocks = append(blocks, mrkdwn(fmt.Sprintf("*Report:* `%s`", s.Source)))
	}
	if accepted := s.Accepted(); len(accepted) > 0 {
		blocks = append(blocks, mrkdwn(fmt.Sprintf("*Fixed:*\n%s", FormatAccepted(accepted))))
	}
	if failed := s.Failed(); len(failed) > 0 {
		blocks = append(blocks, mrkdwn(fmt.Sprintf("*Failed:*\n%s", FormatFailed(failed))))
	}

	return slackPayload{Blocks: blocks}
}

// Notify sends a Slack notification for the given summary. Callers wrap it
// with WithRetry for delivery retries.
func (s *SlackNotifier) Notify(ctx context.Context, sum Summary) error {
	return postJSON(ctx, s.client, "slack", s.webhookURL, BuildSlackPayload(sum))
}
