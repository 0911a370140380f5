// Package telegram is the chat-platform client described in spec.md §2.D:
// stateless HTTP calls to Telegram's Bot API, specified only by the
// operations the gateway core consumes. It wraps
// go-telegram-bot-api/telegram-bot-api/v5, matching
// plugin/chat_apps/channels/telegram's client-wrapper shape.
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// TextFormat selects between plain and Markdown-formatted send_text
// calls, per spec.md §6's send_text(type in {plain, formatted}, ...). It
// is a plain int alias (not a distinct defined type) so that callers
// depending on internal/command's ChatPlatform interface, which spells
// its SendText parameter as int, can pass these constants without a cast.
type TextFormat = int

const (
	TextPlain TextFormat = iota
	TextFormatted
)

// KeyboardRow is one row of an inline keyboard, (label, callback-data)
// pairs.
type KeyboardRow []KeyboardButton

// KeyboardButton is a single inline-keyboard button.
type KeyboardButton struct {
	Label string
	Data  string
}

// Client is a thin wrapper over tgbotapi.BotAPI exposing exactly the
// operations spec.md §6 lists as consumed by the core.
type Client struct {
	api *tgbotapi.BotAPI
}

// New creates a Client authenticated with token.
func New(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: create bot api client")
	}
	return &Client{api: api}, nil
}

func (c *Client) parseMode(f TextFormat) string {
	if f == TextFormatted {
		return tgbotapi.ModeMarkdown
	}
	return ""
}

// SendText sends a text message, optionally as a reply, returning the new
// message's id.
func (c *Client) SendText(f TextFormat, chatID int64, replyTo int64, text string) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = c.parseMode(f)
	if replyTo != 0 {
		msg.ReplyToMessageID = int(replyTo)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, errors.Wrap(err, "telegram: send_text")
	}
	return int64(sent.MessageID), nil
}

// SendPhoto sends a photo identified by a Telegram file-id or URL source.
func (c *Client) SendPhoto(f TextFormat, chatID int64, replyTo int64, caption, source string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(source))
	photo.Caption = caption
	photo.ParseMode = c.parseMode(f)
	if replyTo != 0 {
		photo.ReplyToMessageID = int(replyTo)
	}
	_, err := c.api.Send(photo)
	return errors.Wrap(err, "telegram: send_photo")
}

func toInlineKeyboard(rows []KeyboardRow) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, len(rows))
	for i, row := range rows {
		br := make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, b := range row {
			br[j] = tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)
		}
		out[i] = br
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

// SendInlineKeyboard sends a text message with an attached inline
// keyboard, returning the new message's id.
func (c *Client) SendInlineKeyboard(chatID int64, replyTo int64, text string, rows []KeyboardRow) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	markup := toInlineKeyboard(rows)
	msg.ReplyMarkup = markup
	if replyTo != 0 {
		msg.ReplyToMessageID = int(replyTo)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, errors.Wrap(err, "telegram: send_inline_keyboard")
	}
	return int64(sent.MessageID), nil
}

// EditInlineKeyboard edits an existing message's text and keyboard.
func (c *Client) EditInlineKeyboard(chatID, messageID int64, text string, rows []KeyboardRow) error {
	markup := toInlineKeyboard(rows)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, int(messageID), text, markup)
	_, err := c.api.Send(edit)
	return errors.Wrap(err, "telegram: edit_inline_keyboard")
}

// AnswerCallback acknowledges a callback query, optionally popping an
// alert.
func (c *Client) AnswerCallback(id string, text string, url string, showAlert bool) error {
	cfg := tgbotapi.NewCallback(id, text)
	cfg.URL = url
	cfg.ShowAlert = showAlert
	_, err := c.api.Request(cfg)
	return errors.Wrap(err, "telegram: answer_callback")
}

// DeleteMessage deletes a previously sent message.
func (c *Client) DeleteMessage(chatID, messageID int64) error {
	cfg := tgbotapi.NewDeleteMessage(chatID, int(messageID))
	_, err := c.api.Request(cfg)
	return errors.Wrap(err, "telegram: delete_message")
}

// AdminListEntry is one row returned by GetAdminList.
type AdminListEntry struct {
	UserID      int64
	IsAnonymous bool
	Privileges  uint32
}

// GetAdminList fetches the chat's current administrators.
func (c *Client) GetAdminList(chatID int64) ([]AdminListEntry, error) {
	cfg := tgbotapi.ChatAdministratorsConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}}
	members, err := c.api.GetChatAdministrators(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: get_admin_list")
	}
	out := make([]AdminListEntry, 0, len(members))
	for _, m := range members {
		out = append(out, AdminListEntry{
			UserID:      m.User.ID,
			IsAnonymous: m.IsAnonymous,
			Privileges:  memberPrivileges(m),
		})
	}
	return out, nil
}

func memberPrivileges(m tgbotapi.ChatMember) uint32 {
	var p uint32
	if m.CanManageChat {
		p |= 1 << 0
	}
	if m.CanDeleteMessages {
		p |= 1 << 1
	}
	if m.CanRestrictMembers {
		p |= 1 << 2
	}
	if m.CanPinMessages {
		p |= 1 << 3
	}
	if m.CanPromoteMembers {
		p |= 1 << 4
	}
	return p
}

// Self returns the bot's own user id and username, used to seed config at
// startup verification and for addressed-command matching.
func (c *Client) Self() (id int64, username string, err error) {
	me := c.api.Self
	return me.ID, me.UserName, nil
}

// String implements fmt.Stringer for debugging.
func (c *Client) String() string {
	return fmt.Sprintf("telegram.Client{bot=%s}", c.api.Self.UserName)
}
