package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpoints/points-bot/config"
	"github.com/modpoints/points-bot/internal/application/command"
	"github.com/modpoints/points-bot/internal/application/query"
	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/infrastructure/persistence/sqlite"
	"github.com/modpoints/points-bot/internal/interface/telegram/handler"
	"github.com/modpoints/points-bot/internal/interface/telegram/middleware"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

var msk = time.FixedZone("MSK", 3*60*60)

// ─────────────────────────────────────────────────────────────────────────────
// Fake messenger
// ─────────────────────────────────────────────────────────────────────────────

type sent struct {
	kind      string
	chatID    int64
	messageID int
	text      string
	keyboard  *tgbotapi.InlineKeyboardMarkup
	alert     bool
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeMessenger) add(s sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	return nil
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	return f.add(sent{kind: "text", chatID: chatID, text: text})
}

func (f *fakeMessenger) SendWithKeyboard(_ context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	return f.add(sent{kind: "keyboard", chatID: chatID, text: text, keyboard: kb})
}

func (f *fakeMessenger) EditText(_ context.Context, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	return f.add(sent{kind: "edit", chatID: chatID, messageID: messageID, text: text, keyboard: kb})
}

func (f *fakeMessenger) SendPhoto(_ context.Context, chatID int64, _ []byte, _, caption string) error {
	return f.add(sent{kind: "photo", chatID: chatID, text: caption})
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string, alert bool) error {
	return f.add(sent{kind: "answer", text: text, alert: alert})
}

func (f *fakeMessenger) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type recordedNames struct {
	mu   sync.Mutex
	seen map[int64]string
}

func (r *recordedNames) Remember(_ context.Context, userID int64, firstName, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[userID] = firstName
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type botFixture struct {
	bot     *Bot
	router  *Router
	store   *sqlite.Store
	clock   *timeutil.ManualClock
	msgr    *fakeMessenger
	names   *recordedNames
	metrics *middleware.Metrics
}

type idNames struct{}

func (idNames) DisplayName(_ context.Context, id int64) string { return fmt.Sprintf("User%d", id) }

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.SeedModules(context.Background(), []ledger.ModuleSeed{
		{Name: "BMU 5X", Points: 14.5},
		{Name: "Теория", Points: 8},
	}))

	clock := timeutil.NewManualClock(time.Date(2024, 5, 14, 19, 0, 0, 0, msk))
	locks := command.NewUserLocks()

	router := NewRouter(Handlers{
		Start: handler.NewStartHandler(18, 23),
		Modules: handler.NewModulesHandler(store,
			command.NewRecordCompletionHandler(store, nil, locks, clock, nil),
			command.NewUndoLastHandler(store, nil, locks, nil),
			220, nil),
		Progress: handler.NewProgressHandler(handler.ProgressDeps{
			Points:      query.NewGetPointsHandler(store, clock, 220),
			Stats:       query.NewGetUserStatsHandler(store, clock, 220),
			Insight:     query.NewGetInsightHandler(store, clock),
			Leaderboard: query.NewGetLeaderboardHandler(store, nil, clock, 220, nil),
			Names:       idNames{},
		}, nil),
		Admin: handler.NewAdminHandler(handler.AdminDeps{
			Queries:   query.NewAdminQueries(store, clock, 220),
			UserStats: query.NewGetUserStatsHandler(store, clock, 220),
			Grant:     command.NewGrantAdminHandler(store, nil),
			Names:     idNames{},
		}, nil),
	}, nil)

	gate, err := middleware.NewTimeGate(18, 23, msk)
	require.NoError(t, err)

	f := &botFixture{
		router:  router,
		store:   store,
		clock:   clock,
		msgr:    &fakeMessenger{},
		names:   &recordedNames{seen: map[int64]string{}},
		metrics: middleware.NewMetrics(),
	}
	f.bot, err = NewBot(DefaultBotConfig(), BotDependencies{
		Messenger: f.msgr,
		Router:    router,
		Gate:      gate,
		Admins:    middleware.NewAdminGuard(&config.Config{Telegram: config.TelegramConfig{AdminIDs: []int64{100}}}, store),
		Limiter:   middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 3, Clock: clock}),
		Metrics:   f.metrics,
		Clock:     clock,
		Names:     f.names,
	}, nil)
	require.NoError(t, err)
	return f
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Анна"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestBot_StartRemembersName(t *testing.T) {
	f := newBotFixture(t)

	f.bot.HandleUpdate(context.Background(), commandUpdate(1, "/start"))

	out := f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, presenter.Welcome("Анна", 18, 23, 50), out[0].text)
	assert.Equal(t, "Анна", f.names.seen[1])
}

func TestBot_UnknownCommand(t *testing.T) {
	f := newBotFixture(t)

	f.bot.HandleUpdate(context.Background(), commandUpdate(1, "/dance"))

	out := f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, presenter.UnknownCommandReply, out[0].text)
}

func TestBot_TimeGate(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2024, 5, 14, 17, 5, 0, 0, msk))

	f.bot.HandleUpdate(ctx, commandUpdate(1, "/add BMU 5X"))
	out := f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, presenter.GateDenied(18, 23, "17:05"), out[0].text)

	f.bot.HandleUpdate(ctx, callbackUpdate(1, "undo_last"))
	out = f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, "answer", out[0].kind)
	assert.True(t, out[0].alert)
	assert.Equal(t, presenter.GateDeniedAlert(18, 23), out[0].text)

	// Read-only commands ignore the window.
	f.bot.HandleUpdate(ctx, commandUpdate(1, "/points"))
	out = f.msgr.take()
	require.Len(t, out, 1)
	assert.Contains(t, out[0].text, "💎 Ваши баллы")

	total, err := f.store.MonthlyTotal(ctx, 1, ledger.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, int64(2), f.metrics.Snapshot().GateRejections)
}

func TestBot_SelectModuleEditsAndAnswers(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	m, err := f.store.FindModuleByName(ctx, "Теория")
	require.NoError(t, err)

	f.bot.HandleUpdate(ctx, callbackUpdate(1, presenter.ModuleCallback(m.ID)))

	out := f.msgr.take()
	require.Len(t, out, 2)
	assert.Equal(t, "edit", out[0].kind)
	assert.Equal(t, 42, out[0].messageID)
	assert.Equal(t, presenter.ModuleAdded("Теория", 1, 8, 1760), out[0].text)
	require.NotNil(t, out[0].keyboard)
	assert.Equal(t, presenter.CallbackUndoLast, *out[0].keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "answer", out[1].kind)
	assert.False(t, out[1].alert)
}

func TestBot_AdminGuard(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, commandUpdate(1, "/admin"))
	out := f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, presenter.NotAdmin, out[0].text)

	f.bot.HandleUpdate(ctx, callbackUpdate(1, "admin_stats"))
	out = f.msgr.take()
	require.Len(t, out, 1)
	assert.True(t, out[0].alert)
	assert.Equal(t, presenter.NotAdminAlert, out[0].text)

	f.bot.HandleUpdate(ctx, commandUpdate(100, "/admin"))
	out = f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, "keyboard", out[0].kind)
	assert.Equal(t, presenter.AdminPanel, out[0].text)
}

func TestBot_RateLimit(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.bot.HandleUpdate(ctx, commandUpdate(1, "/points"))
	}
	out := f.msgr.take()
	require.Len(t, out, 4)
	assert.Contains(t, out[3].text, "Слишком много запросов")
	assert.Equal(t, int64(1), f.metrics.Snapshot().RateLimited)
}

func TestBot_PanicIsRecovered(t *testing.T) {
	f := newBotFixture(t)
	f.router.Register(ActionPoints, func(context.Context, handler.Request) (*handler.Response, error) {
		panic("boom")
	})

	f.bot.HandleUpdate(context.Background(), commandUpdate(1, "/points"))

	out := f.msgr.take()
	require.Len(t, out, 1)
	assert.Equal(t, middleware.DefaultPanicMessage, out[0].text)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Panics)
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	f := newBotFixture(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- commandUpdate(1, "/start")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx, updates) }()

	require.Eventually(t, func() bool {
		f.msgr.mu.Lock()
		defer f.msgr.mu.Unlock()
		return len(f.msgr.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConvertKeyboard(t *testing.T) {
	assert.Nil(t, convertKeyboard(nil))
	assert.Nil(t, convertKeyboard(presenter.NewInlineKeyboard()))

	kb := convertKeyboard(presenter.UndoKeyboard())
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, presenter.CallbackUndoLast, *kb.InlineKeyboard[0][0].CallbackData)
}
