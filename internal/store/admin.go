package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// AdminList returns the current admin set for chatID, as loaded by the
// most recent ReloadAdmins call.
func (s *Store) AdminList(ctx context.Context, chatID int64) ([]bot.AdminRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id, privileges, is_anonymous, created_at
		FROM Admin WHERE chat_id = ?
	`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "store: select admin list")
	}
	defer rows.Close()

	var out []bot.AdminRow
	for rows.Next() {
		var r bot.AdminRow
		var isAnon int
		var priv int64
		r.ChatID = chatID
		if err := rows.Scan(&r.UserID, &priv, &isAnon, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "store: scan admin row")
		}
		r.Privileges = bot.Privileges(priv)
		r.IsAnonymous = isAnon != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsAdmin reports whether userID has a non-zero privilege bitmask in
// chatID's admin table. It does not consider the configured owner; callers
// implementing spec.md §4.4's ADMIN predicate must OR this with the
// owner-id check themselves (see command.Dispatcher's authorize).
func (s *Store) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	var priv int64
	row := s.conn.QueryRowContext(ctx,
		`SELECT privileges FROM Admin WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	err := row.Scan(&priv)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "store: select admin privileges")
	}
	return priv != 0, nil
}

// ReloadAdmins atomically replaces chatID's admin set with set, per
// spec.md §3's "Reloads are atomic (delete+insert under one transaction)"
// and §8's idempotence property: reload(S); reload(S) == reload(S).
func (s *Store) ReloadAdmins(ctx context.Context, chatID int64, set []bot.AdminRow) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM Admin WHERE chat_id = ?`, chatID); err != nil {
			return errors.Wrap(err, "store: delete admin rows")
		}
		for _, r := range set {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO Admin (chat_id, user_id, privileges, is_anonymous)
				VALUES (?, ?, ?, ?)
			`, chatID, r.UserID, int64(r.Privileges), boolToInt(r.IsAnonymous)); err != nil {
				return errors.Wrap(err, "store: insert admin row")
			}
		}
		return nil
	})
}
