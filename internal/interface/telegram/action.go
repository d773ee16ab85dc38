package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/modpoints/points-bot/internal/interface/telegram/middleware"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTION KINDS
// Every update is parsed once into an Action; nothing past this file
// dispatches on raw command text or callback data.
// ══════════════════════════════════════════════════════════════════════════════

// ActionKind enumerates what a user can ask the bot to do.
type ActionKind int

const (
	ActionUnknown ActionKind = iota

	// Commands.
	ActionStart
	ActionHelp
	ActionModules
	ActionAdd
	ActionPoints
	ActionGraph
	ActionInsight
	ActionLeaderboard
	ActionAdmin
	ActionAdminUser
	ActionAdminAdd

	// Callbacks.
	ActionSelectModule
	ActionUndoLast
	ActionModulesPage
	ActionNoop
	ActionAdminUsers
	ActionAdminStats
	ActionAdminReports
	ActionAdminManage
	ActionAdminModules
	ActionAdminBack
	ActionAdminAddPrompt
	ActionAdminTestReminder
	ActionAdminTestReport
)

var actionNames = map[ActionKind]string{
	ActionUnknown:           "unknown",
	ActionStart:             "start",
	ActionHelp:              "help",
	ActionModules:           "modules",
	ActionAdd:               "add",
	ActionPoints:            "points",
	ActionGraph:             "graph",
	ActionInsight:           "insight",
	ActionLeaderboard:       "leaderboard",
	ActionAdmin:             "admin",
	ActionAdminUser:         "admin_user",
	ActionAdminAdd:          "admin_add",
	ActionSelectModule:      "select_module",
	ActionUndoLast:          "undo_last",
	ActionModulesPage:       "modules_page",
	ActionNoop:              "noop",
	ActionAdminUsers:        "admin_users",
	ActionAdminStats:        "admin_stats",
	ActionAdminReports:      "admin_reports",
	ActionAdminManage:       "admin_manage",
	ActionAdminModules:      "admin_modules",
	ActionAdminBack:         "admin_back",
	ActionAdminAddPrompt:    "admin_add_admin",
	ActionAdminTestReminder: "admin_test_reminder",
	ActionAdminTestReport:   "admin_test_report",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return "action(" + strconv.Itoa(int(k)) + ")"
}

var commands = map[string]ActionKind{
	"start":       ActionStart,
	"help":        ActionHelp,
	"modules":     ActionModules,
	"add":         ActionAdd,
	"points":      ActionPoints,
	"graph":       ActionGraph,
	"insight":     ActionInsight,
	"leaderboard": ActionLeaderboard,
	"admin":       ActionAdmin,
	"admin_user":  ActionAdminUser,
	"admin_add":   ActionAdminAdd,
}

var exactCallbacks = map[string]ActionKind{
	presenter.CallbackUndoLast:          ActionUndoLast,
	presenter.CallbackNoop:              ActionNoop,
	presenter.CallbackAdminUsers:        ActionAdminUsers,
	presenter.CallbackAdminStats:        ActionAdminStats,
	presenter.CallbackAdminReports:      ActionAdminReports,
	presenter.CallbackAdminManage:       ActionAdminManage,
	presenter.CallbackAdminModules:      ActionAdminModules,
	presenter.CallbackAdminBack:         ActionAdminBack,
	presenter.CallbackAdminAddAdmin:     ActionAdminAddPrompt,
	presenter.CallbackAdminTestReminder: ActionAdminTestReminder,
	presenter.CallbackAdminTestReport:   ActionAdminTestReport,
}

// Category places the kind on either side of the time gate.
func Category(k ActionKind) middleware.Category {
	switch k {
	case ActionModules, ActionAdd, ActionSelectModule, ActionUndoLast:
		return middleware.TimeRestricted
	default:
		return middleware.AlwaysAllowed
	}
}

// RequiresAdmin reports whether the kind is an admin action.
func RequiresAdmin(k ActionKind) bool {
	switch k {
	case ActionAdmin, ActionAdminUser, ActionAdminAdd,
		ActionAdminUsers, ActionAdminStats, ActionAdminReports, ActionAdminManage,
		ActionAdminModules, ActionAdminBack, ActionAdminAddPrompt,
		ActionAdminTestReminder, ActionAdminTestReport:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION
// ══════════════════════════════════════════════════════════════════════════════

// Action is a parsed update.
type Action struct {
	Kind ActionKind

	UserID    int64
	FirstName string
	Username  string

	ChatID    int64
	MessageID int

	// CallbackID is set for callback queries.
	CallbackID string

	// Args is the text after a command.
	Args string

	// ModuleID is parsed from module_<id>.
	ModuleID int64

	// Page is parsed from modules_page_<n>.
	Page int
}

// IsCallback reports whether the action came from an inline button.
func (a Action) IsCallback() bool {
	return a.CallbackID != ""
}

// ParseUpdate converts an update into an Action. ok is false for updates the
// bot ignores: no sender, non-command text, other update types.
func ParseUpdate(u tgbotapi.Update) (a Action, ok bool) {
	switch {
	case u.Message != nil:
		msg := u.Message
		if msg.From == nil || !msg.IsCommand() {
			return Action{}, false
		}
		a = Action{
			UserID:    msg.From.ID,
			FirstName: msg.From.FirstName,
			Username:  msg.From.UserName,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
		}
		a.Kind, a.Args = ParseCommand(msg.Command(), msg.CommandArguments())
		return a, true

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil {
			return Action{}, false
		}
		a = Action{
			UserID:     cq.From.ID,
			FirstName:  cq.From.FirstName,
			Username:   cq.From.UserName,
			ChatID:     cq.From.ID,
			CallbackID: cq.ID,
		}
		if cq.Message != nil {
			a.ChatID = cq.Message.Chat.ID
			a.MessageID = cq.Message.MessageID
		}
		a.Kind, a.ModuleID, a.Page = ParseCallback(cq.Data)
		return a, true
	}
	return Action{}, false
}

// ParseCommand maps a command name (without "/" and bot mention) to its kind.
func ParseCommand(name, args string) (ActionKind, string) {
	kind, ok := commands[strings.ToLower(name)]
	if !ok {
		kind = ActionUnknown
	}
	return kind, strings.TrimSpace(args)
}

// ParseCallback maps callback data to its kind and numeric argument.
func ParseCallback(data string) (kind ActionKind, moduleID int64, page int) {
	if k, ok := exactCallbacks[data]; ok {
		return k, 0, 0
	}
	if rest, ok := strings.CutPrefix(data, presenter.CallbackPagePrefix); ok {
		p, err := strconv.Atoi(rest)
		if err != nil || p < 0 {
			return ActionUnknown, 0, 0
		}
		return ActionModulesPage, 0, p
	}
	if rest, ok := strings.CutPrefix(data, presenter.CallbackModulePrefix); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return ActionUnknown, 0, 0
		}
		return ActionSelectModule, id, 0
	}
	return ActionUnknown, 0, 0
}
