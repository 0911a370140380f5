package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	cmd, ok, dropped := ParseCommand("/help arg1 arg2", "kvrtbot")
	assert.True(t, ok)
	assert.False(t, dropped)
	assert.Equal(t, "/help", cmd.Name)
	assert.Equal(t, []string{"arg1", "arg2"}, cmd.Args)
}

func TestParseCommandWithUsernameMatch(t *testing.T) {
	cmd, ok, dropped := ParseCommand("/help@KvrtBot", "kvrtbot")
	assert.True(t, ok)
	assert.False(t, dropped)
	assert.True(t, cmd.HasUsername)
	assert.Equal(t, "/help", cmd.Name)
}

func TestParseCommandWithUsernameMismatchIsDropped(t *testing.T) {
	_, ok, dropped := ParseCommand("/help@otherbot", "kvrtbot")
	assert.True(t, ok)
	assert.True(t, dropped)
}

func TestParseCommandNotACommand(t *testing.T) {
	_, ok, _ := ParseCommand("hello there", "kvrtbot")
	assert.False(t, ok)
}

func TestParseCommandArgsTruncatedAt16(t *testing.T) {
	text := "/cmd"
	for i := 0; i < 20; i++ {
		text += " a"
	}
	cmd, ok, _ := ParseCommand(text, "kvrtbot")
	assert.True(t, ok)
	assert.Len(t, cmd.Args, BotCmdArgsSize)
}

func TestParseCallbackData(t *testing.T) {
	cd, ok := ParseCallbackData("help token 2 1700000000 somepayload")
	assert.True(t, ok)
	assert.Equal(t, "help", cd.Context)
	assert.Equal(t, "token", cd.Token)
	assert.Equal(t, 2, cd.Page)
	assert.Equal(t, int64(1700000000), cd.Timestamp)
	assert.Equal(t, "somepayload", cd.UserData)
}

func TestParseCallbackDataMalformed(t *testing.T) {
	_, ok := ParseCallbackData("too few fields")
	assert.False(t, ok)
}

func TestScheduledActionDue(t *testing.T) {
	now := time.Unix(1000, 0)
	a := ScheduledAction{NextRun: time.Unix(1000, 0), Expire: 10 * time.Second}
	assert.True(t, a.Due(now))
	assert.False(t, a.Expired(now))

	assert.True(t, a.Due(time.Unix(1005, 0)))
	assert.False(t, a.Due(time.Unix(1010, 0)))
	assert.True(t, a.Expired(time.Unix(1010, 0)))
	assert.False(t, a.Due(time.Unix(990, 0)))
}
