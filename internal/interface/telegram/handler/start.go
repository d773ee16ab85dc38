package handler

import (
	"context"

	"github.com/modpoints/points-bot/internal/application/command"
	"github.com/modpoints/points-bot/internal/interface/telegram/presenter"
)

// StartHandler handles /start and /help.
type StartHandler struct {
	startHour int
	endHour   int
}

// NewStartHandler creates a StartHandler that advertises the logging window.
func NewStartHandler(startHour, endHour int) *StartHandler {
	return &StartHandler{startHour: startHour, endHour: endHour}
}

// Handle returns the welcome text.
func (h *StartHandler) Handle(_ context.Context, req Request) (*Response, error) {
	return Reply(presenter.Welcome(req.Name, h.startHour, h.endHour, command.MaxCount)), nil
}
