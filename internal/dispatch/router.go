// Package dispatch is the update dispatcher described in spec.md §4.3: it
// takes a parsed bot.Update, selects a route by update/message kind, and
// invokes the command layer or the membership-notice bookkeeping that
// kind requires. It has no teacher analogue (the teacher has no chat
// update router); it is grounded directly on spec.md §4.3's routing table
// and the original source's message.c dispatch switch.
package dispatch

import (
	"context"
	"time"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// ChatSender is the subset of internal/telegram.Client the router needs to
// send membership-notice text. *telegram.Client satisfies this directly.
type ChatSender interface {
	SendText(format int, chatID, replyTo int64, text string) (int64, error)
}

// Store is the subset of internal/store.Store the router needs.
// *store.Store satisfies this directly.
type Store interface {
	ChatFlags(ctx context.Context, chatID int64) (bot.ChatFlags, error)
	EnsureExternDisabledSeed(ctx context.Context, chatID int64) error
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// CommandDispatcher is the subset of internal/command.Dispatcher the
// router needs. *command.Dispatcher satisfies this directly.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cctx *bot.Context, cmd bot.Command, hasUsername bool) error
	ScheduleDelete(ctx context.Context, chatID, messageID int64, after, expire time.Duration) error
}

const (
	// noticeDeleteDelay is how long a join/leave notice (or welcome
	// message) stays visible before the scheduler deletes it.
	noticeDeleteDelay  = 30 * time.Second
	noticeDeleteExpire = 10 * time.Minute
)

// Router holds the dependencies Route needs to act on a decoded Update.
type Router struct {
	store       Store
	cmd         CommandDispatcher
	chat        ChatSender
	botID       int64
	ownerID     int64
	botUsername string
	welcomeText string
}

// New builds a Router. welcomeText == "" disables the optional
// welcome-message send on NEW_MEMBER(other).
func New(store Store, cmd CommandDispatcher, chat ChatSender, botID, ownerID int64, botUsername, welcomeText string) *Router {
	return &Router{store: store, cmd: cmd, chat: chat, botID: botID, ownerID: ownerID, botUsername: botUsername, welcomeText: welcomeText}
}

// Route selects and runs upd's handler path per spec.md §4.3's table.
// Updates lacking the fields the table requires must already have been
// rejected by the decoder (internal/telegram.DecodeUpdate); Route assumes
// upd.Message or upd.Callback is well-formed for the declared Kind.
func (r *Router) Route(ctx context.Context, upd *bot.Update) error {
	switch upd.Kind {
	case bot.UpdateMessage:
		return r.routeMessage(ctx, upd.Message)
	case bot.UpdateCallback:
		return r.routeCallback(ctx, upd.Callback)
	default:
		return nil
	}
}

func (r *Router) routeMessage(ctx context.Context, m *bot.Message) error {
	switch m.Kind {
	case bot.MessageCmd:
		cctx, err := r.buildContext(ctx, m.Chat.ID, m.From.ID, m.ID, "", m.Chat.Type, m.Text, m.Command.Args, m.RawJSON)
		if err != nil {
			return err
		}
		return r.cmd.Dispatch(ctx, cctx, *m.Command, m.Command.HasUsername)

	case bot.MessageNewMember:
		if m.IsSelfMember(r.botID) {
			return r.store.EnsureExternDisabledSeed(ctx, m.Chat.ID)
		}
		return r.handleMemberJoinedNotice(ctx, m)

	case bot.MessageLeftMember:
		if m.IsSelfMember(r.botID) {
			return nil
		}
		return r.handleMemberLeftNotice(ctx, m)

	default:
		return nil
	}
}

func (r *Router) handleMemberJoinedNotice(ctx context.Context, m *bot.Message) error {
	isAdmin, err := r.selfIsAdmin(ctx, m.Chat.ID)
	if err != nil || !isAdmin {
		return err
	}
	if err := r.cmd.ScheduleDelete(ctx, m.Chat.ID, m.ID, noticeDeleteDelay, noticeDeleteExpire); err != nil {
		return err
	}
	if r.welcomeText == "" {
		return nil
	}
	welcomeID, err := r.chat.SendText(0, m.Chat.ID, 0, r.welcomeText)
	if err != nil {
		return err
	}
	return r.cmd.ScheduleDelete(ctx, m.Chat.ID, welcomeID, noticeDeleteDelay, noticeDeleteExpire)
}

func (r *Router) handleMemberLeftNotice(ctx context.Context, m *bot.Message) error {
	isAdmin, err := r.selfIsAdmin(ctx, m.Chat.ID)
	if err != nil || !isAdmin {
		return err
	}
	return r.cmd.ScheduleDelete(ctx, m.Chat.ID, m.ID, noticeDeleteDelay, noticeDeleteExpire)
}

func (r *Router) selfIsAdmin(ctx context.Context, chatID int64) (bool, error) {
	return r.store.IsAdmin(ctx, chatID, r.botID)
}

func (r *Router) routeCallback(ctx context.Context, cb *bot.CallbackQuery) error {
	data, ok := bot.ParseCallbackData(cb.Data)
	if !ok {
		return nil
	}
	m := cb.Message
	cctx, err := r.buildContext(ctx, m.Chat.ID, cb.From.ID, m.ID, cb.ID, m.Chat.Type, data.UserData, nil, m.RawJSON)
	if err != nil {
		return err
	}
	return r.cmd.Dispatch(ctx, cctx, bot.Command{Name: data.Context, HasUsername: true}, true)
}

func (r *Router) buildContext(ctx context.Context, chatID, userID, messageID int64, callbackID string, chatType bot.ChatType, text string, args []string, rawJSON []byte) (*bot.Context, error) {
	flags, err := r.store.ChatFlags(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &bot.Context{
		BotID:       r.botID,
		OwnerID:     r.ownerID,
		BotUsername: r.botUsername,
		UserID:      userID,
		ChatID:      chatID,
		ChatType:    chatType,
		MessageID:   messageID,
		CallbackID:  callbackID,
		Text:        text,
		Args:        args,
		RawJSON:     rawJSON,
		Flags:       flags,
	}, nil
}
