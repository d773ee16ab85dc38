package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modpoints/points-bot/internal/application/command"
	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULES HANDLER
// /modules, /add and the module_<id>, undo_last, modules_page_<n> callbacks.
// ══════════════════════════════════════════════════════════════════════════════

// ModuleCatalog lists the modules available for logging.
type ModuleCatalog interface {
	ListModules(ctx context.Context) ([]ledger.Module, error)
}

// ModulesHandler logs and undoes completions.
type ModulesHandler struct {
	catalog ModuleCatalog
	record  *command.RecordCompletionHandler
	undo    *command.UndoLastHandler
	rate    float64
	logger  *slog.Logger
}

// NewModulesHandler creates a new ModulesHandler.
func NewModulesHandler(
	catalog ModuleCatalog,
	record *command.RecordCompletionHandler,
	undo *command.UndoLastHandler,
	rate float64,
	log *slog.Logger,
) *ModulesHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ModulesHandler{
		catalog: catalog,
		record:  record,
		undo:    undo,
		rate:    rate,
		logger:  log.With(logger.Component("modules_handler")),
	}
}

// List handles /modules: the first page of the catalog keyboard.
func (h *ModulesHandler) List(ctx context.Context, req Request) (*Response, error) {
	modules, err := h.catalog.ListModules(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list modules failed", logger.UserID(req.UserID), logger.Err(err))
		return Reply(presenter.ModulesLoadError), nil
	}
	if len(modules) == 0 {
		return Reply(presenter.NoModules), nil
	}
	return ReplyWithKeyboard(presenter.ModulesPrompt, presenter.ModulesKeyboard(modules, 0)), nil
}

// Page handles modules_page_<n>.
func (h *ModulesHandler) Page(ctx context.Context, req Request) (*Response, error) {
	modules, err := h.catalog.ListModules(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list modules failed", logger.UserID(req.UserID), logger.Err(err))
		return AlertOnly(presenter.PageError), nil
	}
	if len(modules) == 0 {
		return EditMessage(presenter.NoModules, nil), nil
	}
	return EditMessage(presenter.ModulesPrompt, presenter.ModulesKeyboard(modules, req.Page)), nil
}

// Select handles module_<id>: one completion today, then the undo button.
func (h *ModulesHandler) Select(ctx context.Context, req Request) (*Response, error) {
	res, err := h.record.Handle(ctx, command.RecordCompletionCommand{
		UserID:   req.UserID,
		ModuleID: req.ModuleID,
	})
	switch {
	case errors.Is(err, ledger.ErrModuleNotFound):
		return AlertOnly(presenter.ModuleNotFoundAlert), nil
	case err != nil:
		h.logger.ErrorContext(ctx, "record completion failed",
			logger.UserID(req.UserID), logger.ModuleID(req.ModuleID), logger.Err(err))
		return AlertOnly(presenter.AddError), nil
	}

	text := presenter.ModuleAdded(res.Module.Name, res.Count, res.Points, ledger.ToMoney(res.Points, h.rate))
	return EditMessage(text, presenter.UndoKeyboard()), nil
}

// Add handles /add <name> [count].
func (h *ModulesHandler) Add(ctx context.Context, req Request) (*Response, error) {
	name, count, countOK := ParseAddArgs(req.Args)
	if name == "" {
		return Reply(presenter.AddUsage(command.MinCount, command.MaxCount)), nil
	}
	if !countOK || count < command.MinCount || count > command.MaxCount {
		return Reply(presenter.BadCount(command.MinCount, command.MaxCount)), nil
	}

	res, err := h.record.Handle(ctx, command.RecordCompletionCommand{
		UserID:     req.UserID,
		ModuleName: name,
		Count:      count,
	})
	// "Практика 1" is a module name, not "Практика" times one.
	if full := normalizeArgs(req.Args); errors.Is(err, ledger.ErrModuleNotFound) && full != name {
		res, err = h.record.Handle(ctx, command.RecordCompletionCommand{
			UserID:     req.UserID,
			ModuleName: full,
		})
	}
	switch {
	case errors.Is(err, ledger.ErrModuleNotFound):
		return Reply(presenter.ModuleNotFound(name)), nil
	case errors.Is(err, command.ErrInvalidCount):
		return Reply(presenter.BadCount(command.MinCount, command.MaxCount)), nil
	case err != nil:
		h.logger.ErrorContext(ctx, "record completion failed", logger.UserID(req.UserID), logger.Err(err))
		return Reply(presenter.AddError), nil
	}

	text := presenter.ModuleAdded(res.Module.Name, res.Count, res.Points, ledger.ToMoney(res.Points, h.rate))
	return ReplyWithKeyboard(text, presenter.UndoKeyboard()), nil
}

// Undo handles undo_last.
func (h *ModulesHandler) Undo(ctx context.Context, req Request) (*Response, error) {
	ev, err := h.undo.Handle(ctx, req.UserID)
	switch {
	case errors.Is(err, ledger.ErrNoActions):
		return AlertOnly(presenter.NothingToUndo), nil
	case err != nil:
		h.logger.ErrorContext(ctx, "undo failed", logger.UserID(req.UserID), logger.Err(err))
		return AlertOnly(presenter.UndoError), nil
	}

	resp := EditMessage(presenter.Undone(ev), nil)
	resp.Answer = presenter.UndoDoneAnswer
	return resp, nil
}
