// Package bot holds the domain model shared by every component of the
// gateway core: parsed updates, commands, chat flags, admin privileges,
// and the registries the command layer consults.
package bot

import (
	"context"
	"time"
)

// ChatType enumerates the chat kinds a Message can belong to.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// MessageKind is the variant discriminator for Message.Payload.
type MessageKind string

const (
	MessageText       MessageKind = "text"
	MessageCmd        MessageKind = "command"
	MessagePhoto      MessageKind = "photo"
	MessageAudio      MessageKind = "audio"
	MessageDocument   MessageKind = "document"
	MessageVideo      MessageKind = "video"
	MessageSticker    MessageKind = "sticker"
	MessageNewMember  MessageKind = "new_member"
	MessageLeftMember MessageKind = "left_member"
)

// Chat identifies the conversation a Message or CallbackQuery belongs to.
type Chat struct {
	ID   int64
	Type ChatType
}

// User is a platform account, either the message sender or a chat member
// referenced by a membership event.
type User struct {
	ID       int64
	Username string
	IsBot    bool
}

// Command is a parsed "/name@botname arg1 arg2" token. Args is truncated
// to BotCmdArgsSize; trailing arguments beyond that are dropped silently.
type Command struct {
	Name        string // includes leading slash, excludes "@botname"
	HasUsername bool   // true if the raw token carried "@botname"
	Args        []string
}

// Message is a decoded chat event. Kind selects which payload field is
// meaningful; ReplyTo is at most one level deep (no recursive chains).
type Message struct {
	ID      int64
	Chat    Chat
	From    User
	Date    time.Time
	Kind    MessageKind
	Text    string
	Command *Command // set when Kind == MessageCmd
	ReplyTo *Message  // one level deep only
	NewUser *User     // set when Kind == MessageNewMember
	LeftUser *User    // set when Kind == MessageLeftMember
	RawJSON []byte
}

// memberSubject returns the user a new/left member event names, or nil
// for any other message kind.
func (m *Message) memberSubject() *User {
	switch m.Kind {
	case MessageNewMember:
		return m.NewUser
	case MessageLeftMember:
		return m.LeftUser
	default:
		return nil
	}
}

// IsSelfMember reports whether the new/left member event names botID.
func (m *Message) IsSelfMember(botID int64) bool {
	u := m.memberSubject()
	return u != nil && u.ID == botID
}

// CallbackQuery is an inline-keyboard button press. Data is interpreted by
// the core as "context token current-page timestamp user-data".
type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	Data    string
}

// CallbackData is CallbackQuery.Data split into its five whitespace fields.
type CallbackData struct {
	Context   string
	Token     string
	Page      int
	Timestamp int64
	UserData  string
}

// UpdateKind discriminates Update's variant.
type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback_query"
)

// Update is one decoded webhook delivery.
type Update struct {
	ID       int64
	BotID    int64
	OwnerID  int64
	Kind     UpdateKind
	Message  *Message
	Callback *CallbackQuery
	RawJSON  []byte
}

// ChatFlags is the per-chat permission bitfield. A missing store row and
// a zero-value ChatFlags must compare equal: all flags clear.
type ChatFlags struct {
	AllowNSFW   bool
	AllowExtern bool
	AllowExtra  bool
}

// Privileges is a bitmask of platform-defined administrative capabilities.
type Privileges uint32

const (
	PrivManageChat Privileges = 1 << iota
	PrivDeleteMessages
	PrivRestrictMembers
	PrivPinMessages
	PrivPromoteMembers
)

// AdminRow is one (chat, user) admin grant as loaded by the most recent
// admin-reload for that chat.
type AdminRow struct {
	ChatID      int64
	UserID      int64
	Privileges  Privileges
	IsAnonymous bool
	CreatedAt   time.Time
}

// CmdFlag is a bitmask of BuiltinCommand behavior modifiers.
type CmdFlag uint32

const (
	CmdFlagAdmin CmdFlag = 1 << iota
	CmdFlagNSFW
	CmdFlagExtra
	CmdFlagCallback
	CmdFlagHidden
	CmdFlagDisallowPrivateChat
	CmdFlagExtern
)

// Has reports whether f contains all the bits in mask.
func (f CmdFlag) Has(mask CmdFlag) bool { return f&mask == mask }

// BuiltinHandler executes a builtin command against a parsed request.
type BuiltinHandler func(ctx context.Context, c *Context) error

// BuiltinCommand is a compile-time command descriptor registered at
// startup into an in-memory name->descriptor map.
type BuiltinCommand struct {
	Name        string
	Description string
	Flags       CmdFlag
	Handler     BuiltinHandler
}

// MessageCommand is a per-chat key->value text macro. Value == "" means
// unset.
type MessageCommand struct {
	ChatID    int64
	Name      string
	Value     string
	CreatedBy int64
	CreatedAt time.Time
	UpdatedBy int64
	UpdatedAt time.Time
}

// ExternArgProfile controls what argv/env an ExternalCommand's child
// process receives.
type ExternArgProfile uint32

const (
	ExternArgRawJSON ExternArgProfile = 1 << iota
	ExternArgImportSysEnv
)

// ExternalCommand is a global-by-name handler backed by an out-of-process
// executable. Per-chat disables live separately in the Cmd_Extern_Disabled
// table (see store.IsExternDisabled).
type ExternalCommand struct {
	Name        string
	FilePath    string
	ArgProfile  ExternArgProfile
	Flags       CmdFlag
	Description string
}

// ScheduledActionType discriminates ScheduledAction.
type ScheduledActionType string

const (
	ScheduledSend   ScheduledActionType = "send"
	ScheduledDelete ScheduledActionType = "delete"
)

// ScheduledAction is a persisted deferred chat action. An action is due
// when NextRun <= now < NextRun+Expire; past that window it must be
// discarded without execution.
type ScheduledAction struct {
	ID        int64
	Type      ScheduledActionType
	ChatID    int64
	MessageID int64
	Value     string
	NextRun   time.Time
	Expire    time.Duration
}

// Due reports whether the action should fire at instant now.
func (s ScheduledAction) Due(now time.Time) bool {
	return !now.Before(s.NextRun) && now.Before(s.NextRun.Add(s.Expire))
}

// Expired reports whether the action's window has passed without firing.
func (s ScheduledAction) Expired(now time.Time) bool {
	return !now.Before(s.NextRun.Add(s.Expire))
}

// Context carries the data a builtin/external handler needs to act,
// mirroring cmd.h's CmdParam from the original source.
type Context struct {
	BotID       int64
	OwnerID     int64
	BotUsername string
	UserID      int64
	ChatID      int64
	ChatType    ChatType
	MessageID   int64
	CallbackID  string // "" when not a callback
	Text        string
	Args        []string
	RawJSON     []byte
	Flags       ChatFlags
}

// IsCallback reports whether this invocation originated from a callback
// query rather than a text command.
func (c *Context) IsCallback() bool { return c.CallbackID != "" }

// IsPrivate reports whether the invocation happened in a private chat.
func (c *Context) IsPrivate() bool { return c.ChatType == ChatPrivate }

const (
	// BotCmdArgsSize caps the number of arguments kept after parsing a
	// command token; extras are truncated silently.
	BotCmdArgsSize = 16
	// ChldItemsSize bounds the child supervisor's live process slots.
	ChldItemsSize = 8
	// MaxClients bounds ingress concurrent connections.
	MaxClients = 128
	// ConnectionTimeoutS is the per-connection wall-clock timeout.
	ConnectionTimeoutS = 3
	// CmdMessageNameMaxLen is the max length of a MessageCommand name.
	CmdMessageNameMaxLen = 32
	// CmdMessageBodyMaxLen is the max length of a MessageCommand value.
	CmdMessageBodyMaxLen = 8192
	// SchedBatchSize is the max rows pulled per scheduler tick.
	SchedBatchSize = 32
)
