package notify

import (
	"context"
	"net/http"
	"time"
)

const (
	discordColor    = 0x3B82F6
	discordMaxTitle = 256
	discordMaxDesc  = 4096
)

// DiscordSender posts embeds to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordWebhook struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// NewDiscordSender returns a sender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient(), now: time.Now}
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }

// Send implements Sender.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	_, err := postJSON(ctx, d.client, "discord", d.webhookURL, discordWebhook{
		Username: "oracle-resolver",
		Embeds: []discordEmbed{{
			Title:       truncate(title, discordMaxTitle),
			Description: truncate(message, discordMaxDesc),
			Color:       discordColor,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	})
	return err
}
