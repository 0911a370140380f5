package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// InsertScheduledAction persists a deferred action and returns its id.
func (s *Store) InsertScheduledAction(ctx context.Context, a bot.ScheduledAction) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO Sched_Message (type, chat_id, message_id, value, next_run, expire_s)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(a.Type), a.ChatID, a.MessageID, a.Value, a.NextRun.Unix(), int64(a.Expire.Seconds()))
	if err != nil {
		return 0, errors.Wrap(err, "store: insert sched_message")
	}
	return res.LastInsertId()
}

// DueScheduledActions selects up to bot.SchedBatchSize rows where
// now >= next_run AND now < next_run+expire, per spec.md §4.6 step 2.
// Rows past their expiry window are left untouched here; they are swept
// separately (see PurgeExpiredScheduledActions) and must never be
// executed.
func (s *Store) DueScheduledActions(ctx context.Context, now time.Time) ([]bot.ScheduledAction, error) {
	nowUnix := now.Unix()
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, type, chat_id, message_id, value, next_run, expire_s
		FROM Sched_Message
		WHERE ? >= next_run AND ? < next_run + expire_s
		ORDER BY next_run ASC
		LIMIT ?
	`, nowUnix, nowUnix, bot.SchedBatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "store: select due sched_message")
	}
	defer rows.Close()

	var out []bot.ScheduledAction
	for rows.Next() {
		var a bot.ScheduledAction
		var typ string
		var nextRunUnix, expireS int64
		if err := rows.Scan(&a.ID, &typ, &a.ChatID, &a.MessageID, &a.Value, &nextRunUnix, &expireS); err != nil {
			return nil, errors.Wrap(err, "store: scan sched_message")
		}
		a.Type = bot.ScheduledActionType(typ)
		a.NextRun = time.Unix(nextRunUnix, 0)
		a.Expire = time.Duration(expireS) * time.Second
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteScheduledActions removes the named rows by id. Used by the
// scheduler to delete dispatched rows before/while their jobs run, per
// spec.md §9's accepted non-atomicity.
func (s *Store) DeleteScheduledActions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM Sched_Message WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.conn.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "store: delete sched_message")
}

// PurgeExpiredScheduledActions removes rows whose window has fully
// elapsed (now >= next_run+expire) without ever having been dispatched.
func (s *Store) PurgeExpiredScheduledActions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM Sched_Message WHERE ? >= next_run + expire_s`, now.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "store: purge expired sched_message")
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
