package telegram

import (
	"encoding/json"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// DecodeUpdate turns a raw webhook body into the domain-neutral bot.Update,
// isolating every other component from Telegram's wire shape. botID and
// ownerID are stamped from configuration, matching spec.md §3's Update
// carrying "identifiers (update-id, bot-id, owner-id, ...)".
func DecodeUpdate(raw []byte, botID, ownerID int64, botUsername string) (*bot.Update, error) {
	var tu tgbotapi.Update
	if err := json.Unmarshal(raw, &tu); err != nil {
		return nil, errors.Wrap(err, "telegram: decode update")
	}

	u := &bot.Update{
		ID:      int64(tu.UpdateID),
		BotID:   botID,
		OwnerID: ownerID,
		RawJSON: raw,
	}

	switch {
	case tu.Message != nil:
		if tu.Message.From == nil {
			return nil, bot.ErrInvalidRequest
		}
		u.Kind = bot.UpdateMessage
		u.Message = decodeMessage(tu.Message, botUsername, raw, 1)
		return u, nil

	case tu.CallbackQuery != nil:
		cq := tu.CallbackQuery
		if cq.Message == nil || cq.Data == "" {
			return nil, bot.ErrInvalidRequest
		}
		u.Kind = bot.UpdateCallback
		u.Callback = &bot.CallbackQuery{
			ID:      cq.ID,
			From:    decodeUser(cq.From),
			Message: decodeMessage(cq.Message, botUsername, nil, 1),
			Data:    cq.Data,
		}
		return u, nil

	default:
		return nil, bot.ErrInvalidRequest
	}
}

func decodeUser(u *tgbotapi.User) bot.User {
	if u == nil {
		return bot.User{}
	}
	return bot.User{ID: u.ID, Username: u.UserName, IsBot: u.IsBot}
}

func decodeChat(c *tgbotapi.Chat) bot.Chat {
	if c == nil {
		return bot.Chat{}
	}
	return bot.Chat{ID: c.ID, Type: chatTypeFromString(c.Type)}
}

func chatTypeFromString(t string) bot.ChatType {
	switch t {
	case "private":
		return bot.ChatPrivate
	case "group":
		return bot.ChatGroup
	case "supergroup":
		return bot.ChatSupergroup
	case "channel":
		return bot.ChatChannel
	default:
		return bot.ChatPrivate
	}
}

// decodeMessage decodes one level of nesting; depth bounds ReplyTo
// recursion to a single level per spec.md §3/§9 ("one level deep").
func decodeMessage(m *tgbotapi.Message, botUsername string, raw []byte, depth int) *bot.Message {
	if m == nil {
		return nil
	}
	out := &bot.Message{
		ID:      int64(m.MessageID),
		Chat:    decodeChat(m.Chat),
		From:    decodeUser(m.From),
		Date:    time.Unix(int64(m.Date), 0),
		Text:    m.Text,
		RawJSON: raw,
	}

	switch {
	case len(m.NewChatMembers) > 0:
		member := m.NewChatMembers[0]
		u := decodeUser(&member)
		out.Kind = bot.MessageNewMember
		out.NewUser = &u
	case m.LeftChatMember != nil:
		u := decodeUser(m.LeftChatMember)
		out.Kind = bot.MessageLeftMember
		out.LeftUser = &u
	case len(m.Photo) > 0:
		out.Kind = bot.MessagePhoto
	case m.Audio != nil:
		out.Kind = bot.MessageAudio
	case m.Document != nil:
		out.Kind = bot.MessageDocument
	case m.Video != nil:
		out.Kind = bot.MessageVideo
	case m.Sticker != nil:
		out.Kind = bot.MessageSticker
	case m.IsCommand():
		cmd, ok, dropped := bot.ParseCommand(m.Text, botUsername)
		if ok && !dropped {
			out.Kind = bot.MessageCmd
			out.Command = &cmd
		} else {
			out.Kind = bot.MessageText
		}
	default:
		out.Kind = bot.MessageText
	}

	if depth > 0 && m.ReplyToMessage != nil {
		out.ReplyTo = decodeMessage(m.ReplyToMessage, botUsername, nil, depth-1)
	}

	return out
}
