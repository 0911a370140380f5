package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// ExternalCommand looks up a global external command by name. Returns
// bot.ErrNotFound when no row exists.
func (s *Store) ExternalCommand(ctx context.Context, name string) (bot.ExternalCommand, error) {
	var ec bot.ExternalCommand
	var profile, flags int64
	row := s.conn.QueryRowContext(ctx, `
		SELECT name, file_path, arg_profile, flags, description
		FROM Cmd_Extern WHERE name = ?
	`, name)
	err := row.Scan(&ec.Name, &ec.FilePath, &profile, &flags, &ec.Description)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return bot.ExternalCommand{}, bot.ErrNotFound
	case err != nil:
		return bot.ExternalCommand{}, errors.Wrap(err, "store: select cmd_extern")
	}
	ec.ArgProfile = bot.ExternArgProfile(profile)
	ec.Flags = bot.CmdFlag(flags)
	return ec, nil
}

// IsExternDisabled reports whether name is in chatID's disabled-set.
func (s *Store) IsExternDisabled(ctx context.Context, chatID int64, name string) (bool, error) {
	var id int64
	row := s.conn.QueryRowContext(ctx,
		`SELECT id FROM Cmd_Extern_Disabled WHERE chat_id = ? AND name = ?`, chatID, name)
	err := row.Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "store: select cmd_extern_disabled")
	}
	return true, nil
}

// UpsertExternalCommand registers or updates a global external command.
func (s *Store) UpsertExternalCommand(ctx context.Context, ec bot.ExternalCommand) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO Cmd_Extern (name, file_path, arg_profile, flags, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			file_path = excluded.file_path,
			arg_profile = excluded.arg_profile,
			flags = excluded.flags,
			description = excluded.description
	`, ec.Name, ec.FilePath, int64(ec.ArgProfile), int64(ec.Flags), ec.Description)
	return errors.Wrap(err, "store: upsert cmd_extern")
}

// SetExternDisabled toggles name's disabled state for chatID.
func (s *Store) SetExternDisabled(ctx context.Context, chatID int64, name string, disabled bool) error {
	var err error
	if disabled {
		_, err = s.conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO Cmd_Extern_Disabled (chat_id, name) VALUES (?, ?)`, chatID, name)
	} else {
		_, err = s.conn.ExecContext(ctx,
			`DELETE FROM Cmd_Extern_Disabled WHERE chat_id = ? AND name = ?`, chatID, name)
	}
	return errors.Wrap(err, "store: set cmd_extern_disabled")
}
