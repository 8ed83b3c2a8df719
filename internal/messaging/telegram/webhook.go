package telegram

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SecretTokenHeader is the header Telegram echoes the webhook secret_token in.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecretToken derives the secret_token of one business from the
// deployment secret. The hex digest fits the Bot API charset [A-Za-z0-9_-].
// An empty secret yields "".
func WebhookSecretToken(secret, businessID string) string {
	if secret == "" || businessID == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(businessID))
	return hex.EncodeToString(mac.Sum(nil))
}

// SetWebhook points the bot of businessID at url and tells Telegram to send
// secretToken with every update.
func (c *Client) SetWebhook(ctx context.Context, businessID, url, secretToken string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("telegram: webhook url required")
	}
	if secretToken == "" {
		return errors.New("telegram: webhook secret required")
	}
	token, err := c.token(ctx, businessID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(struct {
		URL            string   `json:"url"`
		SecretToken    string   `json:"secret_token"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{URL: url, SecretToken: secretToken, AllowedUpdates: []string{"message"}})
	if err != nil {
		return fmt.Errorf("telegram: marshal webhook body: %w", err)
	}
	if _, err := c.invoke(ctx, token, "setWebhook", body); err != nil {
		return err
	}
	c.logger.Info("telegram webhook registered", "business_id", businessID)
	return nil
}
