package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
	"github.com/rlapz/kvrt-bot-sub000/internal/workerpool"
)

type fakeStore struct {
	due        []bot.ScheduledAction
	dueErr     error
	deletedIDs []int64
	purged     int64
	purgeErr   error
	purgeCalls int
}

func (s *fakeStore) DueScheduledActions(ctx context.Context, now time.Time) ([]bot.ScheduledAction, error) {
	return s.due, s.dueErr
}
func (s *fakeStore) DeleteScheduledActions(ctx context.Context, ids []int64) error {
	s.deletedIDs = append(s.deletedIDs, ids...)
	return nil
}
func (s *fakeStore) PurgeExpiredScheduledActions(ctx context.Context, now time.Time) (int64, error) {
	s.purgeCalls++
	return s.purged, s.purgeErr
}

// syncPool runs submitted jobs inline so tests don't need to wait on
// goroutines.
type syncPool struct{}

func (syncPool) Submit(fn workerpool.Job, udata any) error {
	fn(context.Background(), udata)
	return nil
}

type fakeChat struct {
	sent    []string
	deleted []int64
}

func (f *fakeChat) SendText(format int, chatID, replyTo int64, text string) (int64, error) {
	f.sent = append(f.sent, text)
	return 1, nil
}
func (f *fakeChat) DeleteMessage(chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func newTestScheduler(store *fakeStore, chat *fakeChat) *Scheduler {
	return New(store, syncPool{}, chat, metrics.New(prometheus.NewRegistry()))
}

func TestTickDispatchesSendAndDeleteActions(t *testing.T) {
	store := &fakeStore{
		due: []bot.ScheduledAction{
			{ID: 1, Type: bot.ScheduledSend, ChatID: 10, Value: "hi"},
			{ID: 2, Type: bot.ScheduledDelete, ChatID: 10, MessageID: 5},
		},
	}
	chat := &fakeChat{}
	s := newTestScheduler(store, chat)

	s.tick()

	assert.Equal(t, []string{"hi"}, chat.sent)
	assert.Equal(t, []int64{5}, chat.deleted)
	assert.ElementsMatch(t, []int64{1, 2}, store.deletedIDs)
}

func TestTickNoopWhenNothingDue(t *testing.T) {
	store := &fakeStore{}
	chat := &fakeChat{}
	s := newTestScheduler(store, chat)

	s.tick()

	assert.Empty(t, chat.sent)
	assert.Empty(t, store.deletedIDs)
}

func TestTickSkipsReentrantRun(t *testing.T) {
	store := &fakeStore{due: []bot.ScheduledAction{{ID: 1, Type: bot.ScheduledSend}}}
	chat := &fakeChat{}
	s := newTestScheduler(store, chat)

	s.isReady.Store(false) // simulate a tick already in flight
	s.tick()

	assert.Empty(t, chat.sent, "a reentrant tick must not run while the previous one is in flight")
}

func TestPurgeCallsStorePurge(t *testing.T) {
	store := &fakeStore{purged: 3}
	chat := &fakeChat{}
	s := newTestScheduler(store, chat)

	s.purge()

	assert.Equal(t, 1, store.purgeCalls)
}

func TestStartSchedulesAndStopHalts(t *testing.T) {
	store := &fakeStore{}
	chat := &fakeChat{}
	s := newTestScheduler(store, chat)

	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}
