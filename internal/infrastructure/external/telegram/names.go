package telegram

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/modpoints/points-bot/pkg/logger"
)

// DisplayName picks the first available of first name, @username and User<id>.
func DisplayName(firstName, username string, userID int64) string {
	switch {
	case firstName != "":
		return firstName
	case username != "":
		return "@" + username
	default:
		return "User" + strconv.FormatInt(userID, 10)
	}
}

// NameStore caches resolved display names.
type NameStore interface {
	Get(ctx context.Context, userID int64) (string, bool, error)
	Set(ctx context.Context, userID int64, name string) error
}

// ChatLookup fetches chat info for a user id.
type ChatLookup interface {
	GetChat(ctx context.Context, chatID int64) (*ChatInfo, error)
}

// NameResolver resolves display names through an optional store and getChat.
type NameResolver struct {
	chats  ChatLookup
	store  NameStore
	logger *slog.Logger
}

// NewNameResolver creates a resolver. store may be nil.
func NewNameResolver(chats ChatLookup, store NameStore, log *slog.Logger) *NameResolver {
	if log == nil {
		log = logger.Discard()
	}
	return &NameResolver{chats: chats, store: store, logger: log.With(logger.Component("names"))}
}

// DisplayName returns a name for userID. Lookup failures fall back to User<id>.
func (r *NameResolver) DisplayName(ctx context.Context, userID int64) string {
	if r.store != nil {
		name, ok, err := r.store.Get(ctx, userID)
		if err != nil {
			r.logger.WarnContext(ctx, "name cache read failed", logger.UserID(userID), logger.Err(err))
		} else if ok {
			return name
		}
	}

	if r.chats == nil {
		return DisplayName("", "", userID)
	}
	chat, err := r.chats.GetChat(ctx, userID)
	if err != nil {
		r.logger.DebugContext(ctx, "getChat failed", logger.UserID(userID), logger.Err(err))
		return DisplayName("", "", userID)
	}

	name := DisplayName(chat.FirstName, chat.Username, userID)
	r.remember(ctx, userID, chat.FirstName, chat.Username)
	return name
}

// Remember stores the name seen on an incoming update.
func (r *NameResolver) Remember(ctx context.Context, userID int64, firstName, username string) {
	r.remember(ctx, userID, firstName, username)
}

func (r *NameResolver) remember(ctx context.Context, userID int64, firstName, username string) {
	if r.store == nil || (firstName == "" && username == "") {
		return
	}
	if err := r.store.Set(ctx, userID, DisplayName(firstName, username, userID)); err != nil {
		r.logger.WarnContext(ctx, "name cache write failed", logger.UserID(userID), logger.Err(err))
	}
}
