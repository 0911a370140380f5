package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// MessageCommand looks up the stored value for (chatID, name). name has
// leading slashes stripped, as SetMessageCommand does when storing, so
// "/help" and "help" find the same row. Returns bot.ErrNotFound when
// absent or the stored value is empty (empty means "unset" per spec.md §3).
func (s *Store) MessageCommand(ctx context.Context, chatID int64, name string) (bot.MessageCommand, error) {
	name = strings.TrimLeft(name, "/")
	var mc bot.MessageCommand
	mc.ChatID = chatID
	mc.Name = name
	row := s.conn.QueryRowContext(ctx, `
		SELECT value, created_by, created_at, updated_by, updated_at
		FROM Cmd_Message WHERE chat_id = ? AND name = ?
	`, chatID, name)
	err := row.Scan(&mc.Value, &mc.CreatedBy, &mc.CreatedAt, &mc.UpdatedBy, &mc.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return bot.MessageCommand{}, bot.ErrNotFound
	case err != nil:
		return bot.MessageCommand{}, errors.Wrap(err, "store: select cmd_message")
	}
	if mc.Value == "" {
		return bot.MessageCommand{}, bot.ErrNotFound
	}
	return mc, nil
}

// SetMessageCommand validates and upserts a message-command value, per
// spec.md §4.4's "Message-command set/unset" rules: name has leading
// slashes stripped, must be non-empty and <= CmdMessageNameMaxLen,
// alphanumeric or underscore; body <= CmdMessageBodyMaxLen; setting empty
// on a non-existent row returns bot.ErrNoSuchCmdMessage.
func (s *Store) SetMessageCommand(ctx context.Context, chatID, byUser int64, rawName, value string) error {
	name := strings.TrimLeft(rawName, "/")
	if name == "" {
		return bot.ErrNoSuchCmdMessage
	}
	if len(name) > bot.CmdMessageNameMaxLen {
		return bot.ErrCommandTooLong
	}
	for _, r := range name {
		if !isAlnumOrUnderscore(r) {
			return errors.New("store: command name must be alphanumeric or underscore")
		}
	}
	if len(value) > bot.CmdMessageBodyMaxLen {
		return bot.ErrBodyTooLong
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM Cmd_Message WHERE chat_id = ? AND name = ?`, chatID, name,
		).Scan(&existing)
		exists := !errors.Is(err, sql.ErrNoRows)
		if err != nil && exists {
			return errors.Wrap(err, "store: probe cmd_message")
		}

		if value == "" {
			if !exists || existing == "" {
				return bot.ErrNoSuchCmdMessage
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE Cmd_Message SET value = '', updated_by = ?, updated_at = datetime('now','localtime') WHERE chat_id = ? AND name = ?`,
				byUser, chatID, name)
			return errors.Wrap(err, "store: unset cmd_message")
		}

		if exists {
			_, err := tx.ExecContext(ctx, `
				UPDATE Cmd_Message SET value = ?, updated_by = ?, updated_at = datetime('now','localtime')
				WHERE chat_id = ? AND name = ?
			`, value, byUser, chatID, name)
			return errors.Wrap(err, "store: update cmd_message")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO Cmd_Message (chat_id, name, value, created_by, updated_by)
			VALUES (?, ?, ?, ?, ?)
		`, chatID, name, value, byUser, byUser)
		return errors.Wrap(err, "store: insert cmd_message")
	})
}

func isAlnumOrUnderscore(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
