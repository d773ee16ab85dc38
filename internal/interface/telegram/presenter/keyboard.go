package presenter

import (
	"fmt"
	"strconv"

	"github.com/modpoints/points-bot/internal/domain/ledger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INLINE KEYBOARD TYPES
// Library-agnostic keyboards; the bot converts them to the API format.
// ══════════════════════════════════════════════════════════════════════════════

// InlineKeyboard represents an inline keyboard.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton represents a single callback button.
type InlineButton struct {
	Text         string
	CallbackData string
}

// NewInlineKeyboard creates a new empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{Rows: make([][]InlineButton, 0)}
}

// AddRow adds a row of buttons.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	k.Rows = append(k.Rows, buttons)
	return k
}

// CallbackButton creates a callback button.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{Text: text, CallbackData: callbackData}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK DATA
// ══════════════════════════════════════════════════════════════════════════════

const (
	CallbackModulePrefix = "module_"
	CallbackPagePrefix   = "modules_page_"
	CallbackUndoLast     = "undo_last"
	CallbackNoop         = "noop"

	CallbackAdminUsers        = "admin_users"
	CallbackAdminStats        = "admin_stats"
	CallbackAdminReports      = "admin_reports"
	CallbackAdminManage       = "admin_manage"
	CallbackAdminModules      = "admin_modules"
	CallbackAdminBack         = "admin_back"
	CallbackAdminAddAdmin     = "admin_add_admin"
	CallbackAdminTestReminder = "admin_test_reminder"
	CallbackAdminTestReport   = "admin_test_report"
)

// ModuleCallback returns "module_<id>".
func ModuleCallback(id int64) string {
	return CallbackModulePrefix + strconv.FormatInt(id, 10)
}

// PageCallback returns "modules_page_<n>".
func PageCallback(page int) string {
	return CallbackPagePrefix + strconv.Itoa(page)
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE KEYBOARDS
// ══════════════════════════════════════════════════════════════════════════════

const (
	ModulesPerPage = 8
	ModulesPerRow  = 2
)

// PageCount returns the number of pages for n modules.
func PageCount(n int) int {
	return (n + ModulesPerPage - 1) / ModulesPerPage
}

// ModulesKeyboard lays out one page of modules, two per row, with a
// navigation row when there is more than one page. Out-of-range pages are clamped.
func ModulesKeyboard(modules []ledger.Module, page int) *InlineKeyboard {
	kb := NewInlineKeyboard()
	pages := PageCount(len(modules))
	if pages == 0 {
		return kb
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	start := page * ModulesPerPage
	end := min(start+ModulesPerPage, len(modules))
	for i := start; i < end; i += ModulesPerRow {
		row := make([]InlineButton, 0, ModulesPerRow)
		for j := i; j < min(i+ModulesPerRow, end); j++ {
			m := modules[j]
			row = append(row, CallbackButton(fmt.Sprintf("%s (%s)", m.Name, Points(m.Points)), ModuleCallback(m.ID)))
		}
		kb.AddRow(row...)
	}

	if pages > 1 {
		nav := make([]InlineButton, 0, 3)
		if page > 0 {
			nav = append(nav, CallbackButton("⬅️ Назад", PageCallback(page-1)))
		}
		nav = append(nav, CallbackButton(fmt.Sprintf("%d/%d", page+1, pages), CallbackNoop))
		if page < pages-1 {
			nav = append(nav, CallbackButton("Вперед ➡️", PageCallback(page+1)))
		}
		kb.AddRow(nav...)
	}
	return kb
}

// UndoKeyboard is attached to the "module added" message.
func UndoKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().AddRow(CallbackButton("↩️ Отменить последнее", CallbackUndoLast))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN KEYBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// AdminPanelKeyboard is the root of the admin panel.
func AdminPanelKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("👥 Все пользователи", CallbackAdminUsers),
			CallbackButton("📊 Статистика", CallbackAdminStats),
		).
		AddRow(
			CallbackButton("📈 Отправить отчеты", CallbackAdminReports),
			CallbackButton("⚙️ Управление", CallbackAdminManage),
		)
}

// AdminManageKeyboard is the management submenu.
func AdminManageKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("➕ Добавить админа", CallbackAdminAddAdmin),
			CallbackButton("📚 Управление модулями", CallbackAdminModules),
		).
		AddRow(
			CallbackButton("🔔 Тест напоминания", CallbackAdminTestReminder),
			CallbackButton("🧾 Тест отчета", CallbackAdminTestReport),
		).
		AddRow(CallbackButton("⬅️ Назад", CallbackAdminBack))
}

// BackKeyboard has a single back button to the given callback.
func BackKeyboard(callback string) *InlineKeyboard {
	return NewInlineKeyboard().AddRow(CallbackButton("⬅️ Назад", callback))
}
