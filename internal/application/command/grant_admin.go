package command

import (
	"context"
	"log/slog"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/shared"
	"github.com/modpoints/points-bot/pkg/logger"
)

// GrantAdminHandler adds users to the admins table.
type GrantAdminHandler struct {
	repo   ledger.Repository
	logger *slog.Logger
}

// NewGrantAdminHandler creates a new GrantAdminHandler.
func NewGrantAdminHandler(repo ledger.Repository, log *slog.Logger) *GrantAdminHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &GrantAdminHandler{repo: repo, logger: log.With(logger.Component("grant_admin"))}
}

// Handle grants admin rights to target on behalf of grantedBy.
// Authorization of grantedBy is checked by the caller.
func (h *GrantAdminHandler) Handle(ctx context.Context, grantedBy, target int64) error {
	if target <= 0 {
		return shared.NewDomainError("command", "GrantAdmin", shared.ErrInvalidID, "target user id must be positive")
	}
	if err := h.repo.AddAdmin(ctx, target); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "admin granted",
		logger.UserID(target),
		slog.Int64("granted_by", grantedBy),
	)
	return nil
}

// SeedAdmins grants admin rights to every allow-listed id. Used at startup.
func (h *GrantAdminHandler) SeedAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if err := h.repo.AddAdmin(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
