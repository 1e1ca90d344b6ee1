package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Embed colors.
const (
	discordGreen  = 3066993
	discordOrange = 15105570
	discordRed    = 15158332
)

// DiscordNotifier sends batch summaries to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// discordEmbed represents a Discord embed object.
type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

// discordField represents a field in a Discord embed.
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// discordFooter represents the footer of a Discord embed.
type discordFooter struct {
	Text string `json:"text"`
}

// discordPayload is the top-level Discord webhook payload.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// summaryColor is green when every issue was fixed, red when none were.
func summaryColor(s Summary) int {
	accepted := len(s.Accepted())
	switch {
	case accepted == len(s.Results):
		return discordGreen
	case accepted == 0:
		return discordRed
	default:
		return discordOrange
	}
}

// BuildDiscordPayload creates the Discord embed message for a batch summary.
func BuildDiscordPayload(s Summary) discordPayload {
	fields := []discordField{
		{
			Name:   "Outcomes",
			Value:  FormatCounts(s.Counts()),
			Inline: true,
		},
		{
			Name:   "Skipped",
			Value:  fmt.Sprintf("%d", s.Skipped),
			Inline: true,
		},
	}
	if accepted := s.Accepted(); len(accepted) > 0 {
		fields = append(fields, discordField{Name: "Fixed", Value: FormatAccepted(accepted)})
	}
	if failed := s.Failed(); len(failed) > 0 {
		fields = append(fields, discordField{Name: "Failed", Value: FormatFailed(failed)})
	}

	footer := "sonarfix"
	if s.Source != "" {
		footer = fmt.Sprintf("sonarfix - %s", s.Source)
	}

	return discordPayload{
		Embeds: []discordEmbed{{
			Title:       "Sonar fix batch complete",
			Description: headline(s),
			Color:       summaryColor(s),
			Fields:      fields,
			Footer:      &discordFooter{Text: footer},
		}},
	}
}

// Notify sends a Discord notification for the given summary. Callers wrap
// it with WithRetry for delivery retries.
func (d *DiscordNotifier) Notify(ctx context.Context, s Summary) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, BuildDiscordPayload(s))
}
