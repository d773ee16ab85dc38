// Package handler contains Telegram command and callback handlers.
// Each handler follows the pattern: receive request → call application layer → format response.
// Handlers never talk to Telegram directly; the bot renders the Response.
package handler

import (
	"context"

	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE
// ══════════════════════════════════════════════════════════════════════════════

// Request contains the parsed data of one update.
type Request struct {
	UserID int64
	ChatID int64

	// Name is the sender's display name.
	Name string

	// Args is the text after the command.
	Args string

	// ModuleID and Page are set for module and page callbacks.
	ModuleID int64
	Page     int
}

// Response describes what the bot sends back.
type Response struct {
	// Text is the message text. Empty means no message.
	Text string

	// Keyboard is the inline keyboard to attach.
	Keyboard *presenter.InlineKeyboard

	// Edit replaces the message the callback came from instead of sending a new one.
	Edit bool

	// Photo is a PNG to send with Text as its caption.
	Photo     []byte
	PhotoName string

	// Answer is the callback answer toast; Alert shows it as a dialog.
	Answer string
	Alert  bool
}

// Reply is a plain new message.
func Reply(text string) *Response {
	return &Response{Text: text}
}

// ReplyWithKeyboard is a new message with an inline keyboard.
func ReplyWithKeyboard(text string, kb *presenter.InlineKeyboard) *Response {
	return &Response{Text: text, Keyboard: kb}
}

// EditMessage replaces the callback's message.
func EditMessage(text string, kb *presenter.InlineKeyboard) *Response {
	return &Response{Text: text, Keyboard: kb, Edit: true}
}

// AlertOnly answers a callback with a dialog and touches no message.
func AlertOnly(text string) *Response {
	return &Response{Answer: text, Alert: true}
}

// AnswerOnly answers a callback with a toast (or silently when text is empty).
func AnswerOnly(text string) *Response {
	return &Response{Answer: text}
}

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// NameResolver returns display names for users.
type NameResolver interface {
	DisplayName(ctx context.Context, userID int64) string
}

// TestSender sends one test delivery to a user.
type TestSender interface {
	SendTest(ctx context.Context, userID int64) error
}

// resolveNames looks up display names for ids, once per id.
func resolveNames(ctx context.Context, names NameResolver, ids []int64) map[int64]string {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = names.DisplayName(ctx, id)
	}
	return out
}
