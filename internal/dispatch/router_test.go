package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

type fakeStore struct {
	flags     bot.ChatFlags
	seeded    bool
	isAdmin   bool
	flagsErr  error
	seedErr   error
	adminErr  error
}

func (s *fakeStore) ChatFlags(ctx context.Context, chatID int64) (bot.ChatFlags, error) {
	return s.flags, s.flagsErr
}
func (s *fakeStore) EnsureExternDisabledSeed(ctx context.Context, chatID int64) error {
	s.seeded = true
	return s.seedErr
}
func (s *fakeStore) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.isAdmin, s.adminErr
}

type fakeCmd struct {
	dispatched  bool
	lastCmd     bot.Command
	lastCtx     *bot.Context
	deletesReqd []int64
}

func (c *fakeCmd) Dispatch(ctx context.Context, cctx *bot.Context, cmd bot.Command, hasUsername bool) error {
	c.dispatched = true
	c.lastCmd = cmd
	c.lastCtx = cctx
	return nil
}

func (c *fakeCmd) ScheduleDelete(ctx context.Context, chatID, messageID int64, after, expire time.Duration) error {
	c.deletesReqd = append(c.deletesReqd, messageID)
	return nil
}

type fakeChat struct {
	sent []string
}

func (f *fakeChat) SendText(format int, chatID, replyTo int64, text string) (int64, error) {
	f.sent = append(f.sent, text)
	return 999, nil
}

func TestRouteCommandMessageDispatches(t *testing.T) {
	store := &fakeStore{}
	cmd := &fakeCmd{}
	r := New(store, cmd, &fakeChat{}, 1, 2, "bot", "")

	upd := &bot.Update{
		Kind: bot.UpdateMessage,
		Message: &bot.Message{
			ID:   1,
			Chat: bot.Chat{ID: 10, Type: bot.ChatGroup},
			From: bot.User{ID: 5},
			Kind: bot.MessageCmd,
			Text: "/start",
			Command: &bot.Command{Name: "/start"},
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	assert.True(t, cmd.dispatched)
	assert.Equal(t, "/start", cmd.lastCmd.Name)
}

func TestRouteNewMemberSelfSeedsExternDisabled(t *testing.T) {
	store := &fakeStore{}
	cmd := &fakeCmd{}
	r := New(store, cmd, &fakeChat{}, 1, 2, "bot", "")

	upd := &bot.Update{
		Kind: bot.UpdateMessage,
		Message: &bot.Message{
			ID:      1,
			Chat:    bot.Chat{ID: 10, Type: bot.ChatGroup},
			From:    bot.User{ID: 5},
			Kind:    bot.MessageNewMember,
			NewUser: &bot.User{ID: 1},
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	assert.True(t, store.seeded)
	assert.False(t, cmd.dispatched)
}

func TestRouteNewMemberOtherSchedulesDeleteWhenSelfAdmin(t *testing.T) {
	store := &fakeStore{isAdmin: true}
	cmd := &fakeCmd{}
	chat := &fakeChat{}
	r := New(store, cmd, chat, 1, 2, "bot", "welcome!")

	upd := &bot.Update{
		Kind: bot.UpdateMessage,
		Message: &bot.Message{
			ID:      7,
			Chat:    bot.Chat{ID: 10, Type: bot.ChatGroup},
			From:    bot.User{ID: 5},
			Kind:    bot.MessageNewMember,
			NewUser: &bot.User{ID: 99},
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	assert.Contains(t, cmd.deletesReqd, int64(7))
	assert.Equal(t, []string{"welcome!"}, chat.sent)
	assert.Contains(t, cmd.deletesReqd, int64(999)) // welcome message id, per fakeChat.SendText
}

func TestRouteNewMemberOtherSkipsWhenSelfNotAdmin(t *testing.T) {
	store := &fakeStore{isAdmin: false}
	cmd := &fakeCmd{}
	chat := &fakeChat{}
	r := New(store, cmd, chat, 1, 2, "bot", "welcome!")

	upd := &bot.Update{
		Kind: bot.UpdateMessage,
		Message: &bot.Message{
			ID:      7,
			Chat:    bot.Chat{ID: 10, Type: bot.ChatGroup},
			From:    bot.User{ID: 5},
			Kind:    bot.MessageNewMember,
			NewUser: &bot.User{ID: 99},
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	assert.Empty(t, cmd.deletesReqd)
	assert.Empty(t, chat.sent)
}

func TestRouteLeftMemberSchedulesDeleteWhenSelfAdmin(t *testing.T) {
	store := &fakeStore{isAdmin: true}
	cmd := &fakeCmd{}
	r := New(store, cmd, &fakeChat{}, 1, 2, "bot", "")

	upd := &bot.Update{
		Kind: bot.UpdateMessage,
		Message: &bot.Message{
			ID:       8,
			Chat:     bot.Chat{ID: 10, Type: bot.ChatGroup},
			From:     bot.User{ID: 5},
			Kind:     bot.MessageLeftMember,
			LeftUser: &bot.User{ID: 77},
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	assert.Contains(t, cmd.deletesReqd, int64(8))
}

func TestRouteCallbackDispatchesWithParsedContext(t *testing.T) {
	store := &fakeStore{}
	cmd := &fakeCmd{}
	r := New(store, cmd, &fakeChat{}, 1, 2, "bot", "")

	upd := &bot.Update{
		Kind: bot.UpdateCallback,
		Callback: &bot.CallbackQuery{
			ID:   "cb1",
			From: bot.User{ID: 5},
			Message: &bot.Message{
				ID:   3,
				Chat: bot.Chat{ID: 10, Type: bot.ChatGroup},
			},
			Data: "/help token 0 1700000000 somedata",
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	require.True(t, cmd.dispatched)
	assert.Equal(t, "/help", cmd.lastCmd.Name)
	assert.Equal(t, "cb1", cmd.lastCtx.CallbackID)
}

func TestRouteCallbackWithMalformedDataIsSilentlyIgnored(t *testing.T) {
	store := &fakeStore{}
	cmd := &fakeCmd{}
	r := New(store, cmd, &fakeChat{}, 1, 2, "bot", "")

	upd := &bot.Update{
		Kind: bot.UpdateCallback,
		Callback: &bot.CallbackQuery{
			ID:      "cb1",
			From:    bot.User{ID: 5},
			Message: &bot.Message{ID: 3, Chat: bot.Chat{ID: 10}},
			Data:    "too few fields",
		},
	}
	require.NoError(t, r.Route(context.Background(), upd))
	assert.False(t, cmd.dispatched)
}
