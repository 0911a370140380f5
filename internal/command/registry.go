// Package command implements the command layer described in spec.md §4.4:
// three-track resolution (message-command, builtin, external), the
// authorization predicate, admin-reload, and message-command set/unset.
// It is grounded directly on original_source/src/cmd.c and cmd.h, since
// the teacher repo has no command-router analogue; logging/error idiom
// follows the teacher's slog + pkg/errors style.
package command

import "github.com/rlapz/kvrt-bot-sub000/internal/bot"

// Registry is the in-memory builtin-name -> descriptor map, fixed at
// startup per spec.md §3.
type Registry struct {
	builtins map[string]bot.BuiltinCommand
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]bot.BuiltinCommand)}
}

// Register adds b to the registry, keyed by its name.
func (r *Registry) Register(b bot.BuiltinCommand) {
	r.builtins[b.Name] = b
}

// Lookup returns the builtin registered under name, if any.
func (r *Registry) Lookup(name string) (bot.BuiltinCommand, bool) {
	b, ok := r.builtins[name]
	return b, ok
}

// List returns every registered builtin, for /help's formatted listing.
func (r *Registry) List() []bot.BuiltinCommand {
	out := make([]bot.BuiltinCommand, 0, len(r.builtins))
	for _, b := range r.builtins {
		out = append(out, b)
	}
	return out
}
