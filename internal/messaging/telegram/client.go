// Package telegram sends bot messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

const defaultBaseURL = "https://api.telegram.org"

// TokenResolver returns the bot token of a business, or "" when it has none.
type TokenResolver func(ctx context.Context, businessID string) (string, error)

// Config controls how the Telegram client behaves.
type Config struct {
	BaseURL      string
	DefaultToken string
	Resolve      TokenResolver
	Timeout      time.Duration
	MaxRetries   int
	Backoff      time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Client is a messaging.Sender over the Bot API sendMessage method.
type Client struct {
	baseURL      string
	defaultToken string
	resolve      TokenResolver
	httpClient   *http.Client
	maxRetries   int
	backoff      time.Duration
	logger       *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:      baseURL,
		defaultToken: strings.TrimSpace(cfg.DefaultToken),
		resolve:      cfg.Resolve,
		httpClient:   httpClient,
		maxRetries:   maxRetries,
		backoff:      backoff,
		logger:       logger,
	}
}

// APIError is a non-OK Bot API answer.
type APIError struct {
	StatusCode  int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: api error %d: %s", e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers msg.Text to the chat msg.ChannelID.
func (c *Client) Send(ctx context.Context, msg messaging.Outbound) messaging.SendResult {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.ChannelID), 10, 64)
	if err != nil {
		return messaging.Failed(fmt.Errorf("telegram: invalid chat id %q", msg.ChannelID))
	}
	if strings.TrimSpace(msg.Text) == "" {
		return messaging.Failed(errors.New("telegram: text required"))
	}
	token, err := c.token(ctx, msg.BusinessID)
	if err != nil {
		return messaging.Failed(err)
	}
	body, err := json.Marshal(struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: chatID, Text: msg.Text})
	if err != nil {
		return messaging.Failed(fmt.Errorf("telegram: marshal send body: %w", err))
	}

	resp, err := c.invoke(ctx, token, "sendMessage", body)
	if err != nil {
		return messaging.Failed(err)
	}
	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if len(resp.Result) > 0 {
		_ = json.Unmarshal(resp.Result, &sent)
	}
	return messaging.SendResult{Success: true, MessageID: strconv.FormatInt(sent.MessageID, 10)}
}

func (c *Client) token(ctx context.Context, businessID string) (string, error) {
	if c.resolve != nil && businessID != "" {
		token, err := c.resolve(ctx, businessID)
		if err != nil {
			return "", fmt.Errorf("telegram: resolve bot token: %w", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}
	if c.defaultToken == "" {
		return "", messaging.ErrNotConfigured
	}
	return c.defaultToken, nil
}

func (c *Client) invoke(ctx context.Context, token, method string, body []byte) (*apiResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			retry := shouldRetry(0, err)
			// The URL embeds the token; never surface it.
			err = redact(err, token)
			if !retry || attempt == c.maxRetries {
				return nil, fmt.Errorf("telegram: http error: %w", err)
			}
			lastErr = err
			c.logRetry(method, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt, 0); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("telegram: read response: %w", readErr)
		}

		var parsed apiResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			parsed.Description = strings.TrimSpace(string(data))
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.OK {
			return &parsed, nil
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Description: parsed.Description, RetryAfter: parsed.Parameters.RetryAfter}
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(method, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt, time.Duration(apiErr.RetryAfter)*time.Second); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("telegram: request failed without response")
}

// sleep backs off exponentially, or for retryAfter when the API asked for it.
func (c *Client) sleep(ctx context.Context, attempt int, retryAfter time.Duration) error {
	delay := c.backoff * time.Duration(1<<attempt)
	if retryAfter > delay {
		delay = retryAfter
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(method string, attempt, status int, err error) {
	c.logger.Warn("telegram request retry",
		"method", method,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), token, "<redacted>")
	return errors.New(msg)
}
