// Package recall is a client for the Recall.ai meeting-bot API.
package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the provider does not know the bot.
var ErrNotFound = errors.New("recall: bot not found")

// Defaults for the media URL poll.
const (
	DefaultMediaRetries    = 3
	DefaultMediaRetryDelay = 5 * time.Second
)

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	// MediaRetries is the number of extra attempts after the first media lookup.
	MediaRetries    int
	MediaRetryDelay time.Duration
	Timeout         time.Duration
}

// Client calls the provider REST API.
type Client struct {
	baseURL    string
	apiKey     string
	retries    int
	retryDelay time.Duration
	http       *http.Client
	logger     *zap.Logger
}

// CreateBotRequest is the body of POST /bot.
type CreateBotRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name,omitempty"`
}

// BotStatus is the provider's latest status for a bot.
type BotStatus struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Recording is one media artifact of a bot.
type Recording struct {
	ID             string `json:"id"`
	MediaShortcuts struct {
		VideoMixed *struct {
			Data struct {
				DownloadURL string `json:"download_url"`
			} `json:"data"`
		} `json:"video_mixed"`
	} `json:"media_shortcuts"`
}

// Bot is the provider's view of a bot instance.
type Bot struct {
	ID         string          `json:"id"`
	MeetingURL json.RawMessage `json:"meeting_url,omitempty"`
	Status     *BotStatus      `json:"status,omitempty"`
	// VideoURL is the legacy media field, superseded by Recordings.
	VideoURL   string      `json:"video_url,omitempty"`
	Recordings []Recording `json:"recordings,omitempty"`
}

// MediaURL returns the mixed video download URL, falling back to the legacy field.
func (b *Bot) MediaURL() string {
	for _, r := range b.Recordings {
		if vm := r.MediaShortcuts.VideoMixed; vm != nil && vm.Data.DownloadURL != "" {
			return vm.Data.DownloadURL
		}
	}
	return b.VideoURL
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MediaRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		retries:    retries,
		retryDelay: cfg.MediaRetryDelay,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateBot sends a new bot into the meeting.
func (c *Client) CreateBot(ctx context.Context, req CreateBotRequest) (*Bot, error) {
	var bot Bot
	if err := c.do(ctx, http.MethodPost, "/bot", req, &bot); err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if bot.ID == "" {
		return nil, errors.New("create bot: response has no id")
	}
	return &bot, nil
}

// GetBot retrieves a bot by provider id.
func (c *Client) GetBot(ctx context.Context, botID string) (*Bot, error) {
	var bot Bot
	if err := c.do(ctx, http.MethodGet, "/bot/"+url.PathEscape(botID), nil, &bot); err != nil {
		return nil, fmt.Errorf("get bot: %w", err)
	}
	return &bot, nil
}

// LeaveCall asks the bot to leave its meeting.
func (c *Client) LeaveCall(ctx context.Context, botID string) error {
	if err := c.do(ctx, http.MethodPost, "/bot/"+url.PathEscape(botID)+"/leave_call", nil, nil); err != nil {
		return fmt.Errorf("leave call: %w", err)
	}
	return nil
}

// MediaURL looks up the bot's video URL, retrying while the provider is still finalizing media.
// It returns "" without error when no URL shows up within the retry budget, and the last
// error only when every attempt failed.
func (c *Client) MediaURL(ctx context.Context, botID string) (string, error) {
	var lastErr error
	answered := false
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		bot, err := c.GetBot(ctx, botID)
		if err != nil {
			lastErr = err
			c.logger.Warn("recall media lookup failed", zap.String("recall_bot_id", botID), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		answered = true
		if u := bot.MediaURL(); u != "" {
			return u, nil
		}
		c.logger.Info("recall media not ready", zap.String("recall_bot_id", botID), zap.Int("attempt", attempt+1))
	}
	if !answered {
		return "", lastErr
	}
	return "", nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
