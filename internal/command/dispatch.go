package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/childproc"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
	"github.com/rlapz/kvrt-bot-sub000/internal/telegram"
)

// ChatPlatform is the subset of internal/telegram.Client the command
// layer needs, kept as an interface so dispatch logic can be tested
// without a live bot token. *telegram.Client satisfies this directly.
type ChatPlatform interface {
	SendText(format int, chatID int64, replyTo int64, text string) (int64, error)
	EditInlineKeyboard(chatID, messageID int64, text string, rows []telegram.KeyboardRow) error
	AnswerCallback(id, text, url string, showAlert bool) error
	DeleteMessage(chatID, messageID int64) error
	GetAdminList(chatID int64) ([]AdminEntry, error)
}

// AdminEntry is an alias for telegram.AdminListEntry so ChatPlatform's
// signature matches *telegram.Client's exactly.
type AdminEntry = telegram.AdminListEntry

// ChildSupervisor is the subset of internal/childproc.Supervisor the
// external-command track needs. *childproc.Supervisor satisfies this
// directly.
type ChildSupervisor interface {
	Spawn(ctx context.Context, req SpawnRequest) (string, error)
}

// SpawnRequest is an alias for childproc.SpawnRequest so ChildSupervisor's
// signature matches *childproc.Supervisor's exactly.
type SpawnRequest = childproc.SpawnRequest

// Store is the subset of internal/store.Store the command layer needs.
type Store interface {
	ChatFlags(ctx context.Context, chatID int64) (bot.ChatFlags, error)
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	ReloadAdmins(ctx context.Context, chatID int64, set []bot.AdminRow) error
	MessageCommand(ctx context.Context, chatID int64, name string) (bot.MessageCommand, error)
	SetMessageCommand(ctx context.Context, chatID, byUser int64, rawName, value string) error
	ExternalCommand(ctx context.Context, name string) (bot.ExternalCommand, error)
	IsExternDisabled(ctx context.Context, chatID int64, name string) (bool, error)
	SetExternDisabled(ctx context.Context, chatID int64, name string, disabled bool) error
	InsertScheduledAction(ctx context.Context, a bot.ScheduledAction) (int64, error)
}

// Dispatcher routes a parsed command through the three tracks spec.md
// §4.4 defines and enforces authorization.
type Dispatcher struct {
	registry    *Registry
	store       Store
	chat        ChatPlatform
	children    ChildSupervisor
	metrics     *metrics.Registry
	botID       int64
	ownerID     int64
	botUsername string
	cmdPath     string
	env         SpawnEnv
}

// SpawnEnv is the curated environment every external command's child
// process receives (spec.md §6).
type SpawnEnv struct {
	RootDir        string
	TGAPI          string
	TGAPISecretKey string
	DBPath         string
	ImportSysEnv   bool
}

// NewDispatcher builds a Dispatcher over its dependencies.
func NewDispatcher(reg *Registry, store Store, chat ChatPlatform, children ChildSupervisor, m *metrics.Registry, botID, ownerID int64, botUsername, cmdPath string, env SpawnEnv) *Dispatcher {
	if m == nil {
		m = metrics.Global()
	}
	return &Dispatcher{
		registry: reg, store: store, chat: chat, children: children, metrics: m,
		botID: botID, ownerID: ownerID, botUsername: botUsername, cmdPath: cmdPath, env: env,
	}
}

// Dispatch resolves and executes cmd against cctx, per spec.md §4.4.
func (d *Dispatcher) Dispatch(ctx context.Context, cctx *bot.Context, cmd bot.Command, hasUsername bool) error {
	start := time.Now()
	defer func() { d.metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	name := cmd.Name

	if mc, err := d.store.MessageCommand(ctx, cctx.ChatID, name); err == nil {
		_, sendErr := d.chat.SendText(1, cctx.ChatID, 0, mc.Value)
		return sendErr
	} else if !errors.Is(err, bot.ErrNotFound) {
		return err
	}

	if b, ok := d.registry.Lookup(name); ok {
		if err := d.authorize(ctx, cctx, b.Flags); err != nil {
			return d.replyDenied(cctx, err)
		}
		return b.Handler(ctx, cctx)
	}

	if cctx.Flags.AllowExtern {
		ec, err := d.store.ExternalCommand(ctx, name)
		if err == nil {
			disabled, derr := d.store.IsExternDisabled(ctx, cctx.ChatID, name)
			if derr == nil && !disabled {
				if err := d.authorize(ctx, cctx, ec.Flags); err != nil {
					return d.replyDenied(cctx, err)
				}
				return d.spawnExternal(ctx, ec, cctx)
			}
		} else if !errors.Is(err, bot.ErrNotFound) {
			return err
		}
	}

	if cctx.IsPrivate() || hasUsername {
		_, err := d.chat.SendText(0, cctx.ChatID, cctx.MessageID, "Invalid command!")
		return err
	}
	return nil
}

// authorize implements spec.md §4.4's authorization predicate.
func (d *Dispatcher) authorize(ctx context.Context, cctx *bot.Context, flags bot.CmdFlag) error {
	if cctx.IsCallback() && !flags.Has(bot.CmdFlagCallback) {
		return bot.ErrPermissionDenied
	}
	if flags.Has(bot.CmdFlagNSFW) && !cctx.Flags.AllowNSFW {
		return bot.ErrPermissionDenied
	}
	if flags.Has(bot.CmdFlagExtra) && !cctx.Flags.AllowExtra {
		return bot.ErrPermissionDenied
	}
	if flags.Has(bot.CmdFlagAdmin) {
		if cctx.UserID != d.ownerID {
			isAdmin, err := d.store.IsAdmin(ctx, cctx.ChatID, cctx.UserID)
			if err != nil {
				return err
			}
			if !isAdmin {
				return bot.ErrPermissionDenied
			}
		}
	}
	if flags.Has(bot.CmdFlagDisallowPrivateChat) && cctx.IsPrivate() {
		return bot.ErrPermissionDenied
	}
	return nil
}

func (d *Dispatcher) replyDenied(cctx *bot.Context, cause error) error {
	if !errors.Is(cause, bot.ErrPermissionDenied) {
		return cause
	}
	logDenied(cctx, cctx.Text)
	if cctx.IsCallback() {
		return d.chat.AnswerCallback(cctx.CallbackID, "Permission denied!", "", true)
	}
	_, err := d.chat.SendText(0, cctx.ChatID, cctx.MessageID, "Permission denied!")
	return err
}

func (d *Dispatcher) spawnExternal(ctx context.Context, ec bot.ExternalCommand, cctx *bot.Context) error {
	req := SpawnRequest{
		FilePath:    d.cmdPath + "/" + ec.FilePath,
		IsCallback:  cctx.IsCallback(),
		CallbackID:  cctx.CallbackID,
		ChatID:      cctx.ChatID,
		UserID:      cctx.UserID,
		MessageID:   cctx.MessageID,
		TextOrData:  cctx.Text,
		RawJSON:     cctx.RawJSON,
		IncludeJSON: ec.ArgProfile&bot.ExternArgRawJSON != 0,
		Env: childproc.Env{
			RootDir:        d.env.RootDir,
			TGAPI:          d.env.TGAPI,
			TGAPISecretKey: d.env.TGAPISecretKey,
			CmdPath:        d.cmdPath,
			OwnerID:        fmt.Sprintf("%d", d.ownerID),
			BotID:          fmt.Sprintf("%d", d.botID),
			BotUsername:    d.botUsername,
			DBPath:         d.env.DBPath,
			ImportSysEnv:   d.env.ImportSysEnv || ec.ArgProfile&bot.ExternArgImportSysEnv != 0,
		},
	}
	_, err := d.children.Spawn(ctx, req)
	if err != nil {
		d.metrics.ChildSpawnRejected.Inc()
		slog.Warn("command: spawn external command", "name", ec.Name, "err", err)
		_, sendErr := d.chat.SendText(0, cctx.ChatID, cctx.MessageID, "failed to execute external command")
		if sendErr != nil {
			return sendErr
		}
		return nil // logged above; no user-visible error beyond the reply, per spec.md §7
	}
	d.metrics.ChildSpawned.Inc()
	return nil
}

// AdminReload fetches the current admin list from the chat platform and,
// if the caller is authorized, atomically replaces the chat's admin set.
// Reports "done: N admins loaded" or an error string, per spec.md §4.4.
func (d *Dispatcher) AdminReload(ctx context.Context, cctx *bot.Context) (string, error) {
	isAdmin := cctx.UserID == d.ownerID
	if !isAdmin {
		var err error
		isAdmin, err = d.store.IsAdmin(ctx, cctx.ChatID, cctx.UserID)
		if err != nil {
			return "", err
		}
	}
	if !isAdmin {
		return "", bot.ErrPermissionDenied
	}

	entries, err := d.chat.GetAdminList(cctx.ChatID)
	if err != nil {
		return "", errors.Wrap(err, "command: fetch admin list")
	}

	set := make([]bot.AdminRow, 0, len(entries))
	for _, e := range entries {
		set = append(set, bot.AdminRow{
			ChatID:      cctx.ChatID,
			UserID:      e.UserID,
			Privileges:  bot.Privileges(e.Privileges),
			IsAnonymous: e.IsAnonymous,
			CreatedAt:   time.Now(),
		})
	}

	if err := d.store.ReloadAdmins(ctx, cctx.ChatID, set); err != nil {
		return "", err
	}
	return fmt.Sprintf("done: %d admins loaded", len(set)), nil
}

// SetMessageCommand validates and applies a message-command set/unset,
// delegating validation to the store per spec.md §4.4.
func (d *Dispatcher) SetMessageCommand(ctx context.Context, cctx *bot.Context, name, value string) (string, error) {
	err := d.store.SetMessageCommand(ctx, cctx.ChatID, cctx.UserID, name, value)
	switch {
	case err == nil && value == "":
		return fmt.Sprintf("unset: %s", strings.TrimLeft(name, "/")), nil
	case err == nil:
		return fmt.Sprintf("set: %s", strings.TrimLeft(name, "/")), nil
	case errors.Is(err, bot.ErrNoSuchCmdMessage):
		return "", bot.ErrNoSuchCmdMessage
	default:
		return "", err
	}
}

// SetExternEnabled toggles name's per-chat disabled state, backing the
// /extern_toggle builtin. name is matched against Cmd_Extern as stored
// (including its leading slash).
func (d *Dispatcher) SetExternEnabled(ctx context.Context, cctx *bot.Context, name string, enabled bool) error {
	if _, err := d.store.ExternalCommand(ctx, name); err != nil {
		return err
	}
	return d.store.SetExternDisabled(ctx, cctx.ChatID, name, !enabled)
}

// ScheduleSend persists a deferred send-text action, backing the /sched
// builtin.
func (d *Dispatcher) ScheduleSend(ctx context.Context, chatID int64, after time.Duration, value string, expire time.Duration) error {
	_, err := d.store.InsertScheduledAction(ctx, bot.ScheduledAction{
		Type:    bot.ScheduledSend,
		ChatID:  chatID,
		Value:   value,
		NextRun: time.Now().Add(after),
		Expire:  expire,
	})
	return err
}

// ScheduleDelete persists a deferred delete-message action, backing the
// /deleter builtin.
func (d *Dispatcher) ScheduleDelete(ctx context.Context, chatID, messageID int64, after, expire time.Duration) error {
	_, err := d.store.InsertScheduledAction(ctx, bot.ScheduledAction{
		Type:      bot.ScheduledDelete,
		ChatID:    chatID,
		MessageID: messageID,
		NextRun:   time.Now().Add(after),
		Expire:    expire,
	})
	return err
}

// FormatHelp renders the non-hidden builtins for the /help builtin, per §8
// scenario 2. Admin entries are listed only when the caller is the
// configured owner (chat admins who are not the owner do not see them);
// NSFW and extra entries are listed only when the chat allows them.
func (d *Dispatcher) FormatHelp(ctx context.Context, cctx *bot.Context) string {
	list := d.registry.List()
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range list {
		if c.Flags.Has(bot.CmdFlagHidden) {
			continue
		}
		if c.Flags.Has(bot.CmdFlagAdmin) && cctx.UserID != d.ownerID {
			continue
		}
		if c.Flags.Has(bot.CmdFlagNSFW) && !cctx.Flags.AllowNSFW {
			continue
		}
		if c.Flags.Has(bot.CmdFlagExtra) && !cctx.Flags.AllowExtra {
			continue
		}
		b.WriteString(c.Name)
		b.WriteString(" - ")
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	return b.String()
}

func logDenied(cctx *bot.Context, name string) {
	slog.Debug("command: permission denied", "chat_id", cctx.ChatID, "user_id", cctx.UserID, "name", name)
}
