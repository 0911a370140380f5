package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// RegisterBuiltins installs every builtin from cmd.h's three lists
// (general, admin, extra) into reg, bound to d. This is the Go rendering
// of original_source/src/cmd.c's CMD_BUILTIN_LIST_* tables; the handler
// bodies follow original_source/src/cmd/general.c and cmd/admin.c.
func RegisterBuiltins(reg *Registry, d *Dispatcher) {
	reg.Register(bot.BuiltinCommand{
		Name: "/start", Description: "Start command",
		Handler: d.builtinStart,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/help", Description: "Show help",
		Flags:   bot.CmdFlagCallback,
		Handler: d.builtinHelp,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/dump", Description: "Dump raw json",
		Handler: d.builtinDump,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/admin_dump", Description: "Dump admin list in raw json",
		Flags:   bot.CmdFlagDisallowPrivateChat,
		Handler: d.builtinDumpAdmin,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/sched", Description: "Schedule message",
		Handler: d.builtinSchedule,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/deleter", Description: "Message deleter",
		Flags:   bot.CmdFlagCallback | bot.CmdFlagHidden,
		Handler: d.builtinDeleter,
	})

	reg.Register(bot.BuiltinCommand{
		Name: "/admin_reload", Description: "Reload admin list",
		Flags:   bot.CmdFlagAdmin | bot.CmdFlagDisallowPrivateChat,
		Handler: d.builtinAdminReload,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/msg_set", Description: "Set/unset CMD Message",
		Flags:   bot.CmdFlagAdmin | bot.CmdFlagDisallowPrivateChat,
		Handler: d.builtinMsgSet,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/settings", Description: "Set bot configurations",
		Flags:   bot.CmdFlagAdmin,
		Handler: d.builtinSettings,
	})
	reg.Register(bot.BuiltinCommand{
		Name: "/extern_toggle", Description: "Enable/disable an external command for this chat",
		Flags:   bot.CmdFlagAdmin | bot.CmdFlagDisallowPrivateChat,
		Handler: d.builtinExternToggle,
	})

	reg.Register(bot.BuiltinCommand{
		Name: "/anime_sched", Description: "Get anime schedule list",
		Flags:   bot.CmdFlagExtra | bot.CmdFlagCallback,
		Handler: d.builtinAnimeSched,
	})
}

func (d *Dispatcher) builtinStart(_ context.Context, c *bot.Context) error {
	_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "hello")
	return err
}

func (d *Dispatcher) builtinHelp(ctx context.Context, c *bot.Context) error {
	body := d.FormatHelp(ctx, c)
	if c.IsCallback() {
		return d.chat.EditInlineKeyboard(c.ChatID, c.MessageID, body, nil)
	}
	_, err := d.chat.SendText(1, c.ChatID, c.MessageID, body)
	return err
}

func (d *Dispatcher) builtinDump(_ context.Context, c *bot.Context) error {
	body := fmt.Sprintf("```json\n%s```", string(c.RawJSON))
	_, err := d.chat.SendText(1, c.ChatID, c.MessageID, body)
	return err
}

func (d *Dispatcher) builtinDumpAdmin(_ context.Context, c *bot.Context) error {
	if c.IsPrivate() {
		_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "There are no administrators in the private chat!")
		return err
	}

	entries, err := d.chat.GetAdminList(c.ChatID)
	if err != nil {
		_, sendErr := d.chat.SendText(0, c.ChatID, c.MessageID, "Failed to get admin list")
		if sendErr != nil {
			return sendErr
		}
		return nil
	}

	var b strings.Builder
	b.WriteString("```json\n[\n")
	for i, e := range entries {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, `  {"user_id": %d, "is_anonymous": %t, "privileges": %d}`, e.UserID, e.IsAnonymous, e.Privileges)
	}
	b.WriteString("\n]```")

	_, sendErr := d.chat.SendText(1, c.ChatID, c.MessageID, b.String())
	return sendErr
}

const (
	defaultScheduleDelay  = 1 * time.Hour
	defaultScheduleExpire = 10 * time.Minute
)

// builtinSchedule implements /sched [delay_seconds] text..., backing
// spec.md's deferred-send action. A bare /sched with no args is rejected
// since there is nothing to schedule.
func (d *Dispatcher) builtinSchedule(ctx context.Context, c *bot.Context) error {
	if len(c.Args) == 0 {
		_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "Usage: /sched <seconds> <message>")
		return err
	}

	delay := defaultScheduleDelay
	args := c.Args
	if secs, err := strconv.Atoi(c.Args[0]); err == nil {
		delay = time.Duration(secs) * time.Second
		args = c.Args[1:]
	}
	value := strings.Join(args, " ")
	if value == "" {
		_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "Usage: /sched <seconds> <message>")
		return err
	}

	if err := d.ScheduleSend(ctx, c.ChatID, delay, value, defaultScheduleExpire); err != nil {
		_, sendErr := d.chat.SendText(0, c.ChatID, c.MessageID, "Failed to schedule message")
		if sendErr != nil {
			return sendErr
		}
		return nil
	}
	_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "scheduled")
	return err
}

// builtinDeleter implements /deleter [seconds], scheduling deletion of the
// message it was invoked on (or the replied-to message when used as a
// callback against another message id carried in c.MessageID).
func (d *Dispatcher) builtinDeleter(ctx context.Context, c *bot.Context) error {
	delay := defaultScheduleDelay
	if len(c.Args) > 0 {
		if secs, err := strconv.Atoi(c.Args[0]); err == nil {
			delay = time.Duration(secs) * time.Second
		}
	}

	if err := d.ScheduleDelete(ctx, c.ChatID, c.MessageID, delay, defaultScheduleExpire); err != nil {
		_, sendErr := d.chat.SendText(0, c.ChatID, c.MessageID, "Failed to schedule deletion")
		if sendErr != nil {
			return sendErr
		}
		return nil
	}
	if c.IsCallback() {
		return d.chat.AnswerCallback(c.CallbackID, "scheduled", "", false)
	}
	_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "scheduled")
	return err
}

func (d *Dispatcher) builtinAdminReload(ctx context.Context, c *bot.Context) error {
	resp, err := d.AdminReload(ctx, c)
	if err != nil {
		resp = "Failed to reload admin list"
		if errors.Is(err, bot.ErrPermissionDenied) {
			resp = "Permission denied!"
		}
	}
	_, sendErr := d.chat.SendText(0, c.ChatID, c.MessageID, resp)
	return sendErr
}

// builtinMsgSet implements /msg_set name [value...], following
// original_source/src/cmd/admin.c's cmd_admin_cmd_message: the first
// whitespace-delimited token is the command name (without its leading
// slash), everything after is the value; an empty value means unset.
func (d *Dispatcher) builtinMsgSet(ctx context.Context, c *bot.Context) error {
	if len(c.Args) == 0 {
		_, err := d.chat.SendText(0, c.ChatID, c.MessageID,
			"Invalid argument!\nSet: [command_name] message ...\nUnset: [command_name] [EMPTY]")
		return err
	}

	name := c.Args[0]
	value := strings.Join(c.Args[1:], " ")

	resp, err := d.SetMessageCommand(ctx, c, name, value)
	if err != nil {
		resp = "Failed to set command message"
		if errors.Is(err, bot.ErrNoSuchCmdMessage) {
			resp = "No such command message"
		}
	}
	_, sendErr := d.chat.SendText(0, c.ChatID, c.MessageID, resp)
	return sendErr
}

func (d *Dispatcher) builtinSettings(_ context.Context, c *bot.Context) error {
	_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "TODO")
	return err
}

// builtinExternToggle implements /extern_toggle name {on,off}, enabling
// or disabling name in the chat's Cmd_Extern_Disabled set.
func (d *Dispatcher) builtinExternToggle(ctx context.Context, c *bot.Context) error {
	if len(c.Args) < 2 {
		_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "Invalid argument!\nUsage: [command_name] {on,off}")
		return err
	}

	name := c.Args[0]
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	var enabled bool
	switch c.Args[1] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "Invalid argument!\nUsage: [command_name] {on,off}")
		return err
	}

	resp := "ok"
	if err := d.SetExternEnabled(ctx, c, name, enabled); err != nil {
		resp = "Failed to update external command"
		if errors.Is(err, bot.ErrNotFound) {
			resp = "No such external command"
		}
	}
	_, sendErr := d.chat.SendText(0, c.ChatID, c.MessageID, resp)
	return sendErr
}

func (d *Dispatcher) builtinAnimeSched(_ context.Context, c *bot.Context) error {
	_, err := d.chat.SendText(0, c.ChatID, c.MessageID, "No schedule available right now")
	return err
}
