package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// ChatFlags returns the flags for chatID. A missing row and a zero-value
// bot.ChatFlags are treated identically per spec.md §9's open question:
// this returns the zero value with a nil error when no row exists.
func (s *Store) ChatFlags(ctx context.Context, chatID int64) (bot.ChatFlags, error) {
	var f bot.ChatFlags
	var nsfw, extern, extra int
	row := s.conn.QueryRowContext(ctx,
		`SELECT allow_nsfw, allow_extern, allow_extra FROM Chat WHERE chat_id = ?`, chatID)
	err := row.Scan(&nsfw, &extern, &extra)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return bot.ChatFlags{}, nil
	case err != nil:
		return bot.ChatFlags{}, errors.Wrap(err, "store: select chat flags")
	}
	f.AllowNSFW = nsfw != 0
	f.AllowExtern = extern != 0
	f.AllowExtra = extra != 0
	return f, nil
}

// SetChatFlags upserts the flags row for chatID.
func (s *Store) SetChatFlags(ctx context.Context, chatID int64, f bot.ChatFlags) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO Chat (chat_id, allow_nsfw, allow_extern, allow_extra)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			allow_nsfw = excluded.allow_nsfw,
			allow_extern = excluded.allow_extern,
			allow_extra = excluded.allow_extra
	`, chatID, boolToInt(f.AllowNSFW), boolToInt(f.AllowExtern), boolToInt(f.AllowExtra))
	if err != nil {
		return errors.Wrap(err, "store: upsert chat flags")
	}
	return nil
}

// EnsureExternDisabledSeed seeds the chat's Cmd_Extern_Disabled set with
// every currently known external command name, matching the dispatcher's
// NEW_MEMBER(self) behavior (spec.md §4.3: "seed externals-disabled").
func (s *Store) EnsureExternDisabledSeed(ctx context.Context, chatID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT name FROM Cmd_Extern`)
		if err != nil {
			return errors.Wrap(err, "store: select cmd_extern names")
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return errors.Wrap(err, "store: scan cmd_extern name")
			}
			names = append(names, n)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, n := range names {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO Cmd_Extern_Disabled (chat_id, name) VALUES (?, ?)
			`, chatID, n); err != nil {
				return errors.Wrap(err, "store: seed cmd_extern_disabled")
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
