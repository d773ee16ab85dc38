package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func apiErr(code int, msg string, retryAfter int) error {
	return &tgbotapi.Error{
		Code:    code,
		Message: msg,
		ResponseParameters: tgbotapi.ResponseParameters{
			RetryAfter: retryAfter,
		},
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		blocked   bool
		notFound  bool
	}{
		{"rate limited", apiErr(429, "Too Many Requests: retry after 3", 3), true, false, false},
		{"server error", apiErr(502, "Bad Gateway", 0), true, false, false},
		{"blocked", apiErr(403, "Forbidden: bot was blocked by the user", 0), false, true, false},
		{"chat not found", apiErr(400, "Bad Request: chat not found", 0), false, false, true},
		{"wrapped", fmt.Errorf("send: %w", apiErr(429, "Too Many Requests", 1)), true, false, false},
		{"network", errors.New("dial tcp: i/o timeout"), true, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.blocked, IsUserBlocked(tt.err))
			assert.Equal(t, tt.notFound, IsChatNotFound(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter(apiErr(429, "", 3)))
	assert.Zero(t, retryAfter(errors.New("plain")))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Анна", DisplayName("Анна", "anna", 1))
	assert.Equal(t, "@anna", DisplayName("", "anna", 1))
	assert.Equal(t, "User42", DisplayName("", "", 42))
}

type fakeChats struct {
	calls int
	info  map[int64]*ChatInfo
}

func (f *fakeChats) GetChat(_ context.Context, id int64) (*ChatInfo, error) {
	f.calls++
	if c, ok := f.info[id]; ok {
		return c, nil
	}
	return nil, apiErr(400, "Bad Request: chat not found", 0)
}

type memNames map[int64]string

func (m memNames) Get(_ context.Context, id int64) (string, bool, error) {
	n, ok := m[id]
	return n, ok, nil
}

func (m memNames) Set(_ context.Context, id int64, name string) error {
	m[id] = name
	return nil
}

func TestNameResolver(t *testing.T) {
	ctx := context.Background()
	chats := &fakeChats{info: map[int64]*ChatInfo{7: {ID: 7, Username: "seven"}}}
	store := memNames{}
	r := NewNameResolver(chats, store, nil)

	assert.Equal(t, "@seven", r.DisplayName(ctx, 7))
	assert.Equal(t, "@seven", r.DisplayName(ctx, 7))
	assert.Equal(t, 1, chats.calls)

	assert.Equal(t, "User8", r.DisplayName(ctx, 8))
	_, cached := store[8]
	assert.False(t, cached)

	r.Remember(ctx, 9, "Иван", "")
	assert.Equal(t, "Иван", r.DisplayName(ctx, 9))
}

func TestNameResolver_NoStore(t *testing.T) {
	r := NewNameResolver(&fakeChats{info: map[int64]*ChatInfo{1: {FirstName: "A"}}}, nil, nil)
	assert.Equal(t, "A", r.DisplayName(context.Background(), 1))
}
