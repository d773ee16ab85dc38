package presenter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/modpoints/points-bot/internal/application/query"
	"github.com/modpoints/points-bot/internal/domain/ledger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATIC TEXTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	ModulesPrompt       = "📚 Выберите модуль для добавления:"
	NoModules           = "❌ Модули не найдены. Обратитесь к администратору."
	ModulesLoadError    = "❌ Произошла ошибка при загрузке модулей."
	ModuleNotFoundAlert = "❌ Модуль не найден!"
	AddError            = "❌ Произошла ошибка при добавлении модуля."
	UndoDoneAnswer      = "✅ Действие отменено!"
	NothingToUndo       = "❌ Нет действий для отмены!"
	UndoError           = "❌ Ошибка при отмене действия!"
	PageError           = "❌ Ошибка при переключении страницы!"
	PointsError         = "❌ Произошла ошибка при получении баллов."
	LeaderboardEmpty    = "📊 Пока нет данных для лидерборда за этот месяц."
	LeaderboardError    = "❌ Произошла ошибка при загрузке лидерборда."
	GraphEmpty          = "📈 Пока нет данных для построения графика."
	GraphError          = "❌ Произошла ошибка при создании графика."
	InsightEmpty        = "🤖 Анализ прогресса\n\n📊 Пока нет данных для анализа. Начните выполнять модули, и я смогу предоставить подробную аналитику вашего прогресса!"
	InsightError        = "❌ Произошла ошибка при генерации анализа."
	GenericError        = "😔 Произошла ошибка. Попробуй позже."

	NotAdmin            = "❌ У вас нет прав администратора."
	NotAdminAlert       = "❌ Нет прав доступа!"
	AdminPanel          = "🔧 Панель администратора\n\nВыберите действие:"
	AdminManage         = "⚙️ Управление системой\n\nВыберите действие:"
	NoUsers             = "👥 Пользователей пока нет."
	AdminUsersError     = "❌ Ошибка при загрузке пользователей!"
	AdminStatsError     = "❌ Ошибка при загрузке статистики!"
	AdminReportsError   = "❌ Ошибка при отправке отчетов!"
	ReportsStarted      = "📧 Отправка отчетов за прошлый месяц запущена.\n\nРезультат придет отдельным сообщением."
	ReportsStartedAlert = "⏳ Отчеты отправляются"
	ReportsRunning      = "⏳ Отчеты уже отправляются, дождитесь результата."
	AdminModulesError   = "❌ Ошибка при загрузке модулей!"
	AdminUserUsage      = "📝 Использование: /admin_user <user_id>"
	AdminAddUsage       = "📝 Использование: /admin_add <user_id>"
	BadUserID           = "❌ Неверный формат ID пользователя."
	AdminUserError      = "❌ Произошла ошибка при получении статистики пользователя."
	AdminAddError       = "❌ Не удалось добавить администратора."
	TestDeliverySent    = "✅ Тестовое сообщение отправлено!"
	TestDeliveryFailed  = "❌ Не удалось отправить тестовое сообщение!"
	UnknownCommandReply = "❓ Неизвестная команда. Используйте /start, чтобы увидеть список команд."
)

// RateLimited is the reply when a user sends too many requests.
func RateLimited(retryAfter time.Duration) string {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("⏳ Слишком много запросов!\nПопробуй через %d сек.", secs)
}

// AddUsage is the /add reply without arguments. Count is optional, lo..hi.
func AddUsage(lo, hi int) string {
	return "📝 Использование: /add <название_модуля> [количество]\n" +
		fmt.Sprintf("Количество от %d до %d, по умолчанию %d.\n\n", lo, hi, lo) +
		"Примеры:\n" +
		"/add BMU 5X\n" +
		"/add BMU 5X 3\n" +
		"/add Практика 1"
}

// BadCount is the reply for an /add count outside the allowed range.
func BadCount(lo, hi int) string {
	return fmt.Sprintf("❌ Количество должно быть от %d до %d.", lo, hi)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER TEXTS
// ══════════════════════════════════════════════════════════════════════════════

// Welcome is the /start text.
func Welcome(name string, startHour, endHour, maxCount int) string {
	return fmt.Sprintf("👋 Привет, %s!\n\n", name) +
		"🎯 Я помогу тебе отслеживать выполненные модули и подсчитывать баллы.\n\n" +
		"📋 Доступные команды:\n" +
		"/modules - Выбрать модуль для добавления\n" +
		fmt.Sprintf("/add <модуль> [1-%d] - Добавить модуль командой\n", maxCount) +
		"/points - Мои баллы за месяц\n" +
		"/graph - График выполнения\n" +
		"/insight - ИИ-анализ прогресса\n" +
		"/leaderboard - Лидерборд\n\n" +
		"⏰ Добавление модулей доступно с " + Window(startHour, endHour)
}

// GateDenied is shown for time-restricted commands outside the window.
func GateDenied(startHour, endHour int, now string) string {
	return GateDeniedAlert(startHour, endHour) + "\nТекущее время: " + now
}

// GateDeniedAlert is the callback alert variant without the clock.
func GateDeniedAlert(startHour, endHour int) string {
	return "⏰ Добавление модулей доступно только с " + Window(startHour, endHour) + "!"
}

// ModuleAdded confirms a recorded completion.
func ModuleAdded(name string, count int, points, money float64) string {
	countText := ""
	if count > 1 {
		countText = fmt.Sprintf(" (x%d)", count)
	}
	return fmt.Sprintf("✅ Модуль '%s'%s добавлен!\n💎 Получено баллов: %s\n💰 Деньги: %s",
		name, countText, Points(points), Money(money))
}

// ModuleNotFound is the /add reply for an unknown name.
func ModuleNotFound(name string) string {
	return fmt.Sprintf("❌ Модуль '%s' не найден!", name)
}

// Undone replaces the "module added" message after an undo.
func Undone(ev *ledger.CompletionEvent) string {
	return fmt.Sprintf("↩️ Действие отменено!\nУдален модуль: '%s' (%s баллов)", ev.ModuleName, Points(ev.Points))
}

// MonthlyPoints is the /points text.
func MonthlyPoints(r *query.PointsResult) string {
	return fmt.Sprintf("💎 Ваши баллы за %s:\n\n🎯 Баллы: %s\n💰 Деньги: %s\n\n%s %s баллов к прошлому месяцу",
		MonthTitle(r.Period), Points(r.Points), Money(r.Money), TrendEmoji(r.Change), SignedPoints(r.Change))
}

// Leaderboard renders the ranked entries. names maps user ids to display names.
func Leaderboard(r *query.LeaderboardResult, names map[int64]string) string {
	if len(r.Entries) == 0 {
		return LeaderboardEmpty
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Лидерборд за %s\n\n", MonthTitle(r.Period))
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%s %s\n   💎 %s баллов\n   💰 %s\n\n", RankEmoji(e.Rank), names[e.UserID], Points(e.Points), Money(e.Money))
	}
	return strings.TrimRight(b.String(), "\n")
}

// GraphCaption is the caption under the /graph picture.
func GraphCaption(name string, period ledger.Period) string {
	return fmt.Sprintf("📈 График выполнения модулей\n👤 %s\n📅 %s", name, MonthTitle(period))
}

// GraphTitle is the title drawn on the chart.
func GraphTitle(period ledger.Period) string {
	return "График выполнения модулей - " + MonthTitle(period)
}

// GraphStats is the summary line drawn on the chart.
func GraphStats(daily ledger.DailyBreakdown) string {
	total := daily.Total()
	active := daily.ActiveDays()
	avg := 0.0
	if active > 0 {
		avg = total / float64(active)
	}
	return fmt.Sprintf("Всего баллов: %s | Активных дней: %d | Среднее: %s", Points(total), active, Points(avg))
}

// Insight renders the analysis.
func Insight(name string, r *query.InsightResult) string {
	if !r.HasData {
		return InsightEmpty
	}
	return fmt.Sprintf("🤖 ИИ-анализ прогресса\n👤 %s\n📅 %s\n\n%s",
		name, MonthTitle(r.Period), strings.Join(r.Analysis.Insights, "\n\n"))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN TEXTS
// ══════════════════════════════════════════════════════════════════════════════

// AdminUsers lists users with their points this month.
func AdminUsers(l *query.UserList, names map[int64]string) string {
	if l.Total == 0 {
		return NoUsers
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Всего пользователей: %d\n\n", l.Total)
	for _, u := range l.Users {
		fmt.Fprintf(&b, "👤 %s (ID: %d)\n   💎 %s баллов за месяц\n\n", names[u.UserID], u.UserID, Points(u.Points))
	}
	if hidden := l.Hidden(); hidden > 0 {
		fmt.Fprintf(&b, "... и еще %d пользователей", hidden)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AdminStats is the system statistics text.
func AdminStats(s *query.SystemStats) string {
	return fmt.Sprintf("📊 Статистика системы\n\n"+
		"📅 Период: %s\n\n"+
		"👥 Всего пользователей: %d\n"+
		"🔥 Активных в месяце: %d\n"+
		"📚 Доступно модулей: %d\n\n"+
		"💎 Общий баланс баллов: %s\n"+
		"💰 Общий денежный эквивалент: %s\n\n"+
		"📈 Средние баллы на активного пользователя: %s",
		MonthTitle(s.Period), s.TotalUsers, s.ActiveUsers, s.ModuleCount,
		Points(s.TotalPoints), Money(s.TotalMoney), Points(s.AveragePoint))
}

// ReportsSent summarizes a manual monthly report run.
func ReportsSent(sent, skipped, failed int) string {
	return fmt.Sprintf("📧 Отчеты отправлены!\n\n✅ Успешно: %d\n⏭ Пропущено: %d\n❌ Ошибок: %d", sent, skipped, failed)
}

// AdminModules lists the module catalog.
func AdminModules(modules []ledger.Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 Управление модулями (%d шт.)\n\n", len(modules))
	for _, m := range modules {
		fmt.Fprintf(&b, "• %s - %s баллов\n", m.Name, Points(m.Points))
	}
	b.WriteString("\n💡 Для добавления/изменения модулей используйте прямые SQL-запросы к базе данных.")
	return b.String()
}

// AdminUser is the /admin_user text.
func AdminUser(name string, s *query.UserStats) string {
	var b strings.Builder
	b.WriteString("👤 Статистика пользователя\n\n")
	fmt.Fprintf(&b, "Имя: %s\nID: %d\n\n", name, s.UserID)
	fmt.Fprintf(&b, "📅 %s:\n💎 Баллы: %s\n💰 Деньги: %s\n📈 Активных дней: %d\n\n",
		MonthTitle(s.Period), Points(s.Points), Money(s.Money), s.ActiveDays)
	fmt.Fprintf(&b, "📅 %s:\n💎 Баллы: %s", MonthTitle(s.PreviousPeriod), Points(s.PreviousPoints))

	if s.ChangePercent != nil {
		fmt.Fprintf(&b, "\n\n📊 Изменение: %s баллов (%+.1f%%)", SignedPoints(s.Points-s.PreviousPoints), *s.ChangePercent)
	}
	return b.String()
}

// AdminGranted confirms /admin_add.
func AdminGranted(userID int64) string {
	return fmt.Sprintf("✅ Пользователь %d назначен администратором.", userID)
}

// StartupNotice is sent to allow-listed admins when the bot starts.
func StartupNotice(now string, schedulerEnabled bool) string {
	sched := "📅 Планировщик активен"
	if !schedulerEnabled {
		sched = "📅 Планировщик отключен"
	}
	return "🤖 Бот запущен успешно!\n\n" +
		"⏰ Время: " + now + "\n" +
		"✅ База данных подключена\n" +
		sched + "\n" +
		"🔧 Все системы работают"
}
