package command

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/childproc"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
	"github.com/rlapz/kvrt-bot-sub000/internal/telegram"
)

type fakeChat struct {
	sent        []string
	lastFormat  int
	admins      []telegram.AdminListEntry
	adminErr    error
	deniedAlert bool
}

func (f *fakeChat) SendText(format int, chatID, replyTo int64, text string) (int64, error) {
	f.sent = append(f.sent, text)
	f.lastFormat = format
	return 1, nil
}

func (f *fakeChat) EditInlineKeyboard(chatID, messageID int64, text string, rows []telegram.KeyboardRow) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChat) AnswerCallback(id, text, url string, showAlert bool) error {
	f.sent = append(f.sent, text)
	f.deniedAlert = showAlert
	return nil
}

func (f *fakeChat) DeleteMessage(chatID, messageID int64) error { return nil }

func (f *fakeChat) GetAdminList(chatID int64) ([]telegram.AdminListEntry, error) {
	return f.admins, f.adminErr
}

type fakeChildren struct {
	spawned bool
	err     error
}

func (f *fakeChildren) Spawn(ctx context.Context, req childproc.SpawnRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.spawned = true
	return "spawn-1", nil
}

type fakeStore struct {
	chatFlags         bot.ChatFlags
	isAdmin           bool
	reloaded          []bot.AdminRow
	msgCmd            bot.MessageCommand
	msgCmdErr         error
	externCmd         bot.ExternalCommand
	externCmdErr      error
	externDisabled    bool
	setExternDisabled *bool
	setExternErr      error
	insertedSchedule  []bot.ScheduledAction
}

func (s *fakeStore) ChatFlags(ctx context.Context, chatID int64) (bot.ChatFlags, error) {
	return s.chatFlags, nil
}
func (s *fakeStore) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.isAdmin, nil
}
func (s *fakeStore) ReloadAdmins(ctx context.Context, chatID int64, set []bot.AdminRow) error {
	s.reloaded = set
	return nil
}
func (s *fakeStore) MessageCommand(ctx context.Context, chatID int64, name string) (bot.MessageCommand, error) {
	return s.msgCmd, s.msgCmdErr
}
func (s *fakeStore) SetMessageCommand(ctx context.Context, chatID, byUser int64, rawName, value string) error {
	return nil
}
func (s *fakeStore) ExternalCommand(ctx context.Context, name string) (bot.ExternalCommand, error) {
	return s.externCmd, s.externCmdErr
}
func (s *fakeStore) IsExternDisabled(ctx context.Context, chatID int64, name string) (bool, error) {
	return s.externDisabled, nil
}
func (s *fakeStore) SetExternDisabled(ctx context.Context, chatID int64, name string, disabled bool) error {
	s.setExternDisabled = &disabled
	return s.setExternErr
}
func (s *fakeStore) InsertScheduledAction(ctx context.Context, a bot.ScheduledAction) (int64, error) {
	s.insertedSchedule = append(s.insertedSchedule, a)
	return int64(len(s.insertedSchedule)), nil
}

func newTestDispatcher(store *fakeStore, chat *fakeChat, children *fakeChildren) *Dispatcher {
	reg := NewRegistry()
	d := NewDispatcher(reg, store, chat, children, metrics.New(prometheus.NewRegistry()), 100, 1, "testbot", "/cmd", SpawnEnv{})
	RegisterBuiltins(reg, d)
	return d
}

func TestDispatchMessageCommandTakesPriorityOverBuiltin(t *testing.T) {
	store := &fakeStore{
		msgCmd: bot.MessageCommand{Value: "canned reply"},
	}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/start"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"canned reply"}, chat.sent)
}

func TestDispatchBuiltinStart(t *testing.T) {
	store := &fakeStore{msgCmdErr: bot.ErrNotFound}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/start"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, chat.sent)
}

func TestDispatchCallbackFlaggedBuiltinAllowedAsPlainText(t *testing.T) {
	// /help carries CmdFlagCallback, which per spec.md §4.4 only means it
	// *may* be invoked via callback; plain-text invocation must still
	// succeed (spec.md §8 Scenario 2).
	store := &fakeStore{msgCmdErr: bot.ErrNotFound}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/help"}, false)
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	assert.NotEqual(t, "Permission denied!", chat.sent[0])
}

func TestDispatchNonCallbackBuiltinDeniedWhenInvokedViaCallback(t *testing.T) {
	// /start carries no CmdFlagCallback, so a callback-originated
	// invocation of it must be denied (original cmd.c's _verify: "is
	// callback and flag not set -> deny").
	store := &fakeStore{msgCmdErr: bot.ErrNotFound}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup, CallbackID: "cb1"}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/start"}, false)
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "Permission denied!", chat.sent[0])
	assert.True(t, chat.deniedAlert)
}

func TestDispatchAdminOnlyBuiltinAllowedForOwner(t *testing.T) {
	store := &fakeStore{msgCmdErr: bot.ErrNotFound}
	chat := &fakeChat{admins: []telegram.AdminListEntry{{UserID: 1, Privileges: 1}}}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 1, ChatType: bot.ChatGroup}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/admin_reload"}, false)
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	assert.Contains(t, chat.sent[0], "admins loaded")
	require.Len(t, store.reloaded, 1)
}

func TestDispatchAdminOnlyBuiltinDeniedForNonAdmin(t *testing.T) {
	store := &fakeStore{msgCmdErr: bot.ErrNotFound, isAdmin: false}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 99, ChatType: bot.ChatGroup}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/admin_reload"}, false)
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "Permission denied!", chat.sent[0])
}

func TestDispatchUnknownCommandPrivateChatRepliesInvalid(t *testing.T) {
	store := &fakeStore{msgCmdErr: bot.ErrNotFound, externCmdErr: bot.ErrNotFound}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatPrivate}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/nope"}, false)
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "Invalid command!", chat.sent[0])
}

func TestDispatchUnknownCommandGroupChatSilentUnlessAddressed(t *testing.T) {
	store := &fakeStore{msgCmdErr: bot.ErrNotFound, externCmdErr: bot.ErrNotFound}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/nope"}, false)
	require.NoError(t, err)
	assert.Empty(t, chat.sent)
}

func TestDispatchExternalCommandSpawnsChild(t *testing.T) {
	store := &fakeStore{
		msgCmdErr: bot.ErrNotFound,
		externCmd: bot.ExternalCommand{Name: "/weather", FilePath: "weather.sh"},
	}
	chat := &fakeChat{}
	children := &fakeChildren{}
	d := newTestDispatcher(store, chat, children)

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup, Flags: bot.ChatFlags{AllowExtern: true}}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/weather"}, false)
	require.NoError(t, err)
	assert.True(t, children.spawned)
	assert.Empty(t, chat.sent)
}

func TestDispatchExternalCommandSpawnFailureRepliesWithoutError(t *testing.T) {
	store := &fakeStore{
		msgCmdErr: bot.ErrNotFound,
		externCmd: bot.ExternalCommand{Name: "/weather", FilePath: "weather.sh"},
	}
	chat := &fakeChat{}
	children := &fakeChildren{err: bot.ErrPoolFull}
	d := newTestDispatcher(store, chat, children)

	cctx := &bot.Context{ChatID: 1, UserID: 2, ChatType: bot.ChatGroup, Flags: bot.ChatFlags{AllowExtern: true}}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/weather"}, false)
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "failed to execute external command", chat.sent[0])
}

func TestScheduleSendAndDeletePersistActions(t *testing.T) {
	store := &fakeStore{}
	d := newTestDispatcher(store, &fakeChat{}, &fakeChildren{})

	require.NoError(t, d.ScheduleSend(context.Background(), 1, time.Minute, "hi", time.Hour))
	require.NoError(t, d.ScheduleDelete(context.Background(), 1, 42, time.Minute, time.Hour))
	require.Len(t, store.insertedSchedule, 2)
	assert.Equal(t, bot.ScheduledSend, store.insertedSchedule[0].Type)
	assert.Equal(t, bot.ScheduledDelete, store.insertedSchedule[1].Type)
}

func TestDispatchExternTogglePersistsDisabledState(t *testing.T) {
	store := &fakeStore{
		msgCmdErr: bot.ErrNotFound,
		externCmd: bot.ExternalCommand{Name: "/weather", FilePath: "weather.sh"},
	}
	chat := &fakeChat{}
	d := newTestDispatcher(store, chat, &fakeChildren{})

	cctx := &bot.Context{ChatID: 1, UserID: 1, ChatType: bot.ChatGroup, Args: []string{"weather", "off"}}
	err := d.Dispatch(context.Background(), cctx, bot.Command{Name: "/extern_toggle"}, false)
	require.NoError(t, err)
	require.NotNil(t, store.setExternDisabled)
	assert.True(t, *store.setExternDisabled)
	assert.Equal(t, []string{"ok"}, chat.sent)
}

func TestFormatHelpHidesAdminEntriesFromNonOwner(t *testing.T) {
	store := &fakeStore{}
	d := newTestDispatcher(store, &fakeChat{}, &fakeChildren{})

	cctx := &bot.Context{UserID: 2}
	out := d.FormatHelp(context.Background(), cctx)
	assert.NotContains(t, out, "/admin_reload")
	assert.Contains(t, out, "/start")
	assert.NotContains(t, out, "/deleter") // hidden
}
