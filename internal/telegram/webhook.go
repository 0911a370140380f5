package telegram

import (
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// SetWebhook registers webhookURL with Telegram, matching the CLI
// surface's "webhook-set" subcommand (spec.md §6).
func (c *Client) SetWebhook(webhookURL, secretToken string, dropPending bool) error {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return errors.Wrap(err, "telegram: parse webhook url")
	}
	cfg := tgbotapi.WebhookConfig{
		URL:                parsed,
		DropPendingUpdates: dropPending,
		SecretToken:        secretToken,
	}
	_, err = c.api.Request(cfg)
	return errors.Wrap(err, "telegram: set_webhook")
}

// DeleteWebhook removes the currently configured webhook, matching the
// CLI surface's "webhook-del" subcommand.
func (c *Client) DeleteWebhook(dropPending bool) error {
	_, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending})
	return errors.Wrap(err, "telegram: delete_webhook")
}

// WebhookInfo mirrors the subset of tgbotapi.WebhookInfo the CLI's
// "webhook-info" subcommand prints.
type WebhookInfo struct {
	URL                  string
	HasCustomCertificate bool
	PendingUpdateCount   int
	LastErrorDate        int
	LastErrorMessage     string
}

// GetWebhookInfo fetches the currently configured webhook's status.
func (c *Client) GetWebhookInfo() (WebhookInfo, error) {
	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return WebhookInfo{}, errors.Wrap(err, "telegram: get_webhook_info")
	}
	return WebhookInfo{
		URL:                  info.URL,
		HasCustomCertificate: info.HasCustomCertificate,
		PendingUpdateCount:   info.PendingUpdateCount,
		LastErrorDate:        info.LastErrorDate,
		LastErrorMessage:     info.LastErrorMessage,
	}, nil
}
