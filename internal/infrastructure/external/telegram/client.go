// Package telegram wraps the Telegram Bot API client used by the bot:
// sending and editing messages, photos, callback answers, chat lookups
// and long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	Token string

	// Empty for plain text.
	ParseMode string

	// Long polling timeout.
	PollTimeout time.Duration

	// RetryAttempts is the number of retries for rate-limited or 5xx requests.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		PollTimeout:   60 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client sends requests through telegram-bot-api.
type Client struct {
	api    *tgbotapi.BotAPI
	config ClientConfig
	logger *slog.Logger
}

// NewClient creates the client. The token is verified with getMe.
func NewClient(config ClientConfig, log *slog.Logger) (*Client, error) {
	if config.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 60 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	api.Debug = config.Debug

	return &Client{
		api:    api,
		config: config,
		logger: log.With(logger.Component("telegram")),
	}, nil
}

// Username returns the bot username.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// ─────────────────────────────────────────────────────────────────────────────
// MESSAGES
// ─────────────────────────────────────────────────────────────────────────────

// SendText sends a plain message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.SendWithKeyboard(ctx, chatID, text, nil)
}

// SendWithKeyboard sends a message with an optional inline keyboard.
func (c *Client) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = c.config.ParseMode
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	return c.send(ctx, "sendMessage", msg)
}

// EditText replaces the text and keyboard of a sent message.
// A nil keyboard removes the buttons.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = c.config.ParseMode
	edit.ReplyMarkup = keyboard

	err := c.send(ctx, "editMessageText", edit)
	if isNotModified(err) {
		return nil
	}
	return err
}

// SendPhoto uploads a PNG with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, png []byte, filename, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: filename, Bytes: png})
	photo.Caption = caption
	return c.send(ctx, "sendPhoto", photo)
}

// AnswerCallback acknowledges a callback query, optionally with a toast or alert.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	return c.request(ctx, "answerCallbackQuery", cb)
}

// ─────────────────────────────────────────────────────────────────────────────
// CHATS
// ─────────────────────────────────────────────────────────────────────────────

// ChatInfo is the subset of getChat used for display names.
type ChatInfo struct {
	ID        int64
	FirstName string
	Username  string
}

// GetChat looks up a private chat by user id.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram getChat: %w", err)
	}
	return &ChatInfo{ID: chat.ID, FirstName: chat.FirstName, Username: chat.UserName}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// LONG POLLING
// ─────────────────────────────────────────────────────────────────────────────

// Updates starts long polling. The channel is closed after ctx is cancelled.
func (c *Client) Updates(ctx context.Context) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(c.config.PollTimeout.Seconds())

	c.logger.Info("starting telegram long polling", slog.String("bot", c.api.Self.UserName))
	updates := c.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		c.logger.Info("stopping telegram long polling")
		c.api.StopReceivingUpdates()
	}()
	return updates
}

// ══════════════════════════════════════════════════════════════════════════════
// API CALL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) send(ctx context.Context, method string, msg tgbotapi.Chattable) error {
	return c.withRetry(ctx, method, func() error {
		_, err := c.api.Send(msg)
		return err
	})
}

func (c *Client) request(ctx context.Context, method string, msg tgbotapi.Chattable) error {
	return c.withRetry(ctx, method, func() error {
		_, err := c.api.Request(msg)
		return err
	})
}

// withRetry retries rate-limited and server-side failures with exponential
// backoff, honouring retry_after when Telegram sends it.
func (c *Client) withRetry(ctx context.Context, method string, call func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == c.config.RetryAttempts {
			break
		}

		delay := c.config.RetryDelay * time.Duration(1<<uint(attempt))
		if after := retryAfter(lastErr); after > 0 {
			delay = after
		}
		c.logger.Warn("telegram call retry",
			slog.String("method", method),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			logger.Err(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("telegram %s: %w", method, lastErr)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// IsRetryable reports whether the error is a rate limit or a server failure.
func IsRetryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "timeout", "connection refused", "temporary", "reset")
}

// IsUserBlocked reports whether the user blocked the bot or was deactivated.
func IsUserBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403 || containsAny(apiErr.Message, "bot was blocked", "user is deactivated")
	}
	return false
}

// IsChatNotFound reports whether the chat does not exist for the bot.
func IsChatNotFound(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && containsAny(apiErr.Message, "chat not found")
	}
	return false
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return containsAny(apiErr.Message, "message is not modified")
	}
	return false
}

func retryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
