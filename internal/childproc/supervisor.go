// Package childproc supervises external handler executables: bounded
// fan-out, curated argv/env construction, and asynchronous reaping, per
// spec.md §4.5. It is the Go rendering of original_source/src/cmd.c's
// _spawn_child_process and its fixed-size PID slot table.
package childproc

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
)

// Env is the curated environment every spawned child inherits, matching
// spec.md §6's "Environment variables (outputs to external handlers)".
type Env struct {
	RootDir        string
	TGAPI          string
	TGAPISecretKey string
	CmdPath        string
	OwnerID        string
	BotID          string
	BotUsername    string
	DBPath         string
	ImportSysEnv   bool
}

func (e Env) toSlice() []string {
	out := []string{
		"ROOT_DIR=" + e.RootDir,
		"TG_API=" + e.TGAPI,
		"TG_API_SECRET_KEY=" + e.TGAPISecretKey,
		"CMD_PATH=" + e.CmdPath,
		"OWNER_ID=" + e.OwnerID,
		"BOT_ID=" + e.BotID,
		"BOT_USERNAME=" + e.BotUsername,
		"DB_PATH=" + e.DBPath,
	}
	if e.ImportSysEnv {
		out = append(out, os.Environ()...)
	}
	return out
}

// SpawnRequest is everything needed to build a child's argv, per spec.md
// §4.4's external-invocation argv table.
type SpawnRequest struct {
	FilePath      string
	IsCallback    bool
	CallbackID    string // only used when IsCallback
	ChatID        int64
	UserID        int64
	MessageID     int64
	TextOrData    string // message text, or callback data when IsCallback
	RawJSON       []byte // only attached when !IsCallback and profile allows it
	IncludeJSON   bool
	Env           Env
}

// Argv builds the child's argument vector exactly per spec.md §4.4:
// argv[0]=file, argv[1]="cmd"|"callback", optional callback id, then
// chat/user/message ids, then text-or-data, then optional raw JSON.
func (r SpawnRequest) Argv() []string {
	argv := []string{r.FilePath}
	if r.IsCallback {
		argv = append(argv, "callback", r.CallbackID)
	} else {
		argv = append(argv, "cmd")
	}
	argv = append(argv,
		itoa(r.ChatID),
		itoa(r.UserID),
		itoa(r.MessageID),
		r.TextOrData,
	)
	if !r.IsCallback && r.IncludeJSON && len(r.RawJSON) > 0 {
		argv = append(argv, string(r.RawJSON))
	}
	return argv
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Supervisor is a bounded active-set of spawned handler processes. The
// zero value is not usable; call New.
type Supervisor struct {
	mu       sync.Mutex
	active   map[string]*os.Process // spawnID -> process
	maxSlots int
}

// New creates a supervisor bounded to maxSlots concurrently live children
// (spec.md names this CHLD_ITEMS_SIZE).
func New(maxSlots int) *Supervisor {
	if maxSlots <= 0 {
		maxSlots = bot.ChldItemsSize
	}
	return &Supervisor{
		active:   make(map[string]*os.Process, maxSlots),
		maxSlots: maxSlots,
	}
}

// Spawn starts req's executable under a curated argv/env. It never blocks
// on the child's completion; the returned spawnID can be used to look the
// process up later but callers generally just let Reap harvest it. Spawn
// rejects with ErrPoolFull once maxSlots live children are already
// tracked, mirroring the original's fixed-size slot table.
func (s *Supervisor) Spawn(ctx context.Context, req SpawnRequest) (spawnID string, err error) {
	id := uuid.NewString()
	s.mu.Lock()
	if len(s.active) >= s.maxSlots {
		s.mu.Unlock()
		return "", errors.Wrap(bot.ErrPoolFull, "childproc: active-set exhausted")
	}
	s.active[id] = nil // reserve the slot until the process has started
	s.mu.Unlock()

	argv := req.Argv()
	cmd := exec.Command(req.FilePath, argv[1:]...)
	cmd.Env = req.Env.toSlice()
	cmd.Env = append(cmd.Env, "KVRT_SPAWN_ID="+id)

	if err := cmd.Start(); err != nil {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		return "", errors.Wrapf(err, "childproc: spawn %s", req.FilePath)
	}

	s.mu.Lock()
	s.active[id] = cmd.Process
	s.mu.Unlock()

	go s.wait(id, cmd)

	slog.Info("childproc: spawned", "id", id, "file", req.FilePath, "argv", argv[1:])
	return id, nil
}

func (s *Supervisor) wait(id string, cmd *exec.Cmd) {
	err := cmd.Wait()
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
	if err != nil {
		slog.Warn("childproc: child exited non-zero", "id", id, "err", err)
	}
}

// Reap is a no-op under this goroutine-based implementation: each spawned
// child is already reaped asynchronously by its own waiter goroutine (see
// wait). It is retained as an explicit call so callers mirroring the
// original ingress-tick cadence (spec.md §4.1, "drains zombie child
// processes on each tick") have a stable entry point, and so Shutdown's
// blocking variant has a symmetric name.
func (s *Supervisor) Reap() {}

// Shutdown blocks until every tracked child has exited, mirroring the
// original's "blocking wait on all active PIDs" on pool shutdown. It does
// not kill children; it only waits for the ones already running.
func (s *Supervisor) Shutdown(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		n := len(s.active)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-ctx.Done():
			slog.Warn("childproc: shutdown timed out with children still active", "count", n)
			return
		case <-ticker.C:
		}
	}
}

// ActiveCount reports the number of currently tracked live children.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
