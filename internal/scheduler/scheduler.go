// Package scheduler drives time-deferred send/delete actions out of the
// persistent ScheduledAction table, per spec.md §4.6. It is the Go
// rendering of original_source/src/sched.c: a periodic tick, an atomic
// "is this tick's run already in flight" guard, a bounded batch fetch,
// and fan-out of each due action onto the worker pool. The tick itself is
// driven by robfig/cron/v3 instead of a raw timerfd, matching the
// DOMAIN STACK's cron dependency.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
	"github.com/rlapz/kvrt-bot-sub000/internal/workerpool"
)

// ChatSender is the subset of internal/telegram.Client the scheduler
// needs to dispatch due actions. *telegram.Client satisfies this
// directly.
type ChatSender interface {
	SendText(format int, chatID, replyTo int64, text string) (int64, error)
	DeleteMessage(chatID, messageID int64) error
}

// Store is the subset of internal/store.Store the scheduler needs.
// *store.Store satisfies this directly.
type Store interface {
	DueScheduledActions(ctx context.Context, now time.Time) ([]bot.ScheduledAction, error)
	DeleteScheduledActions(ctx context.Context, ids []int64) error
	PurgeExpiredScheduledActions(ctx context.Context, now time.Time) (int64, error)
}

// JobSubmitter is the subset of internal/workerpool.Pool the scheduler
// needs. *workerpool.Pool satisfies this directly.
type JobSubmitter interface {
	Submit(fn workerpool.Job, udata any) error
}

// Scheduler ticks once a second, per spec.md §4.6, pulling at most
// bot.SchedBatchSize due rows and fanning each out to the worker pool.
type Scheduler struct {
	cron    *cron.Cron
	store   Store
	pool    JobSubmitter
	chat    ChatSender
	metrics *metrics.Registry
	isReady atomic.Bool
}

// New builds a Scheduler. It does not start ticking until Start is
// called.
func New(store Store, pool JobSubmitter, chat ChatSender, m *metrics.Registry) *Scheduler {
	if m == nil {
		m = metrics.Global()
	}
	s := &Scheduler{
		cron:    cron.New(),
		store:   store,
		pool:    pool,
		chat:    chat,
		metrics: m,
	}
	s.isReady.Store(true)
	return s
}

// Start schedules the 1-second dispatch tick plus a lower-frequency purge
// of expired, never-dispatched rows, and begins the cron scheduler's own
// goroutine.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 1s", s.tick); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1m", s.purge); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts future ticks and waits for any tick already in flight to
// finish submitting its batch, honoring ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// tick is the robfig/cron job body. At most one tick runs at a time: if
// the previous tick is still draining its batch, this one is skipped
// entirely rather than queued, mirroring the original's atomic
// is_ready compare-and-swap.
func (s *Scheduler) tick() {
	if !s.isReady.CompareAndSwap(true, false) {
		return
	}
	defer s.isReady.Store(true)

	ctx := context.Background()
	actions, err := s.store.DueScheduledActions(ctx, time.Now())
	if err != nil {
		slog.Error("scheduler: fetch due actions", "err", err)
		return
	}
	if len(actions) == 0 {
		return
	}

	ids := make([]int64, 0, len(actions))
	for _, a := range actions {
		a := a
		if err := s.pool.Submit(func(ctx context.Context, _ any) { s.dispatch(ctx, a) }, nil); err != nil {
			slog.Warn("scheduler: submit dispatch job", "action_id", a.ID, "err", err)
			continue
		}
		ids = append(ids, a.ID)
	}

	// Deletion runs before the dispatch jobs necessarily finish, matching
	// spec.md §9's accepted non-atomicity between enqueue and delete.
	if err := s.store.DeleteScheduledActions(ctx, ids); err != nil {
		slog.Error("scheduler: delete dispatched actions", "err", err)
	}
}

// purge drops rows whose window elapsed without ever being picked up by
// tick, keeping Sched_Message from growing unbounded.
func (s *Scheduler) purge() {
	n, err := s.store.PurgeExpiredScheduledActions(context.Background(), time.Now())
	if err != nil {
		slog.Error("scheduler: purge expired actions", "err", err)
		return
	}
	if n > 0 {
		slog.Info("scheduler: purged expired actions", "count", n)
	}
}

func (s *Scheduler) dispatch(_ context.Context, a bot.ScheduledAction) {
	var err error
	switch a.Type {
	case bot.ScheduledSend:
		_, err = s.chat.SendText(1, a.ChatID, 0, a.Value)
	case bot.ScheduledDelete:
		err = s.chat.DeleteMessage(a.ChatID, a.MessageID)
	default:
		slog.Error("scheduler: invalid action type", "type", a.Type)
		return
	}

	if err != nil {
		s.metrics.ScheduledFailed.WithLabelValues(string(a.Type)).Inc()
		slog.Warn("scheduler: dispatch failed", "action_id", a.ID, "type", a.Type, "err", err)
		return
	}
	s.metrics.ScheduledDispatched.WithLabelValues(string(a.Type)).Inc()
}
