package bot

import (
	"strconv"
	"strings"
)

// ParseCommand splits a message's leading whitespace-delimited word into a
// Command, following the original cmd.c name-parsing rules: a "@suffix"
// must match botUsername case-insensitively or the command is dropped
// (droppedForOtherBot=true with a zero Command). A matching suffix sets
// HasUsername so the caller can decide whether to reply "invalid
// command". Returns ok=false when text has no command token at all.
func ParseCommand(text, botUsername string) (cmd Command, ok bool, droppedForOtherBot bool) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '/' {
		return Command{}, false, false
	}

	fields := strings.Fields(text)
	token := fields[0]
	rest := fields[1:]

	name := token
	hasUsername := false
	if i := strings.IndexByte(token, '@'); i >= 0 {
		hasUsername = true
		name = token[:i]
		suffix := token[i+1:]
		if !strings.EqualFold(suffix, botUsername) {
			return Command{}, true, true
		}
	}

	if len(rest) > BotCmdArgsSize {
		rest = rest[:BotCmdArgsSize]
	}

	return Command{Name: name, HasUsername: hasUsername, Args: rest}, true, false
}

// ParseCallbackData splits a CallbackQuery.Data string into its five
// whitespace-delimited fields: "context token current-page timestamp
// user-data". Malformed input yields ok=false; callers treat a malformed
// callback as lacking a data string.
func ParseCallbackData(data string) (CallbackData, bool) {
	fields := strings.SplitN(data, " ", 5)
	if len(fields) < 5 {
		return CallbackData{}, false
	}
	page, err := strconv.Atoi(fields[2])
	if err != nil {
		return CallbackData{}, false
	}
	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return CallbackData{}, false
	}
	return CallbackData{
		Context:   fields[0],
		Token:     fields[1],
		Page:      page,
		Timestamp: ts,
		UserData:  fields[4],
	}, true
}
