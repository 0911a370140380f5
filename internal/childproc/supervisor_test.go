package childproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnRequestArgvForCommand(t *testing.T) {
	req := SpawnRequest{
		FilePath:    "/extern/echo",
		ChatID:      100,
		UserID:      7,
		MessageID:   5,
		TextOrData:  "/echo hi",
		RawJSON:     []byte(`{"a":1}`),
		IncludeJSON: true,
	}
	argv := req.Argv()
	assert.Equal(t, []string{
		"/extern/echo", "cmd", "100", "7", "5", "/echo hi", `{"a":1}`,
	}, argv)
}

func TestSpawnRequestArgvForCallback(t *testing.T) {
	req := SpawnRequest{
		FilePath:   "/extern/echo",
		IsCallback: true,
		CallbackID: "cb123",
		ChatID:     100,
		UserID:     7,
		MessageID:  5,
		TextOrData: "somepayload",
	}
	argv := req.Argv()
	assert.Equal(t, []string{
		"/extern/echo", "callback", "cb123", "100", "7", "5", "somepayload",
	}, argv)
}

func TestSupervisorRejectsWhenFull(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	_, err := s.Spawn(ctx, SpawnRequest{FilePath: "/bin/sleep", TextOrData: "1", Env: Env{}})
	// /bin/sleep may not exist in the test sandbox; only assert the
	// capacity-exhaustion path when the first spawn actually succeeded.
	if err != nil {
		t.Skipf("sandbox cannot exec /bin/sleep: %v", err)
	}

	_, err2 := s.Spawn(ctx, SpawnRequest{FilePath: "/bin/sleep", TextOrData: "1", Env: Env{}})
	require.Error(t, err2)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Shutdown(shutdownCtx)
	assert.Equal(t, 0, s.ActiveCount())
}
