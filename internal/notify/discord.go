package notify

import (
	"context"
	"net/http"
)

// discordMaxContent is the webhook message length limit.
const discordMaxContent = 2000

// DiscordSender delivers alerts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newWebhookClient()}
}

// Send posts title in bold followed by message, truncated to the webhook
// limit. Mentions are never parsed.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := "**" + title + "**\n" + message
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent]
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]any{
		"username":         "swapbot",
		"content":          content,
		"allowed_mentions": map[string][]string{"parse": {}},
	})
}

func (d *DiscordSender) Name() string { return "discord" }
