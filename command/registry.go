// Package command keeps the registry of invokable chat commands.
package command

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Handler runs a command. sender is the normalized identity of the caller and
// args is everything after the command token, trimmed. The returned string is
// sent back to the caller; an empty string means no reply.
type Handler func(ctx context.Context, sender, args string) (string, error)

type Command struct {
	Name        string
	Description string
	// Hidden commands run normally but are left out of help listings.
	Hidden bool
	// Protected commands survive Unregister and cannot be shadowed by
	// later registrations.
	Protected bool
	Handler   Handler
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a dynamic command. It refuses to replace protected commands
// but silently replaces earlier dynamic ones of the same name.
func (r *Registry) Register(cmd Command) error {
	cmd.Protected = false
	return r.add(cmd)
}

// RegisterProtected adds a built-in command that cannot later be replaced or
// unregistered.
func (r *Registry) RegisterProtected(cmd Command) error {
	cmd.Protected = true
	return r.add(cmd)
}

func (r *Registry) add(cmd Command) error {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if cmd.Name == "" {
		return ErrEmptyName
	}
	if cmd.Handler == nil {
		return ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.commands[cmd.Name]; ok && existing.Protected {
		return ErrNameConflict
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Lookup resolves a command by its full name, including any prefix.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Unregister removes a dynamic command. Protected commands stay.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[name]
	if !ok {
		return ErrNotFound
	}
	if cmd.Protected {
		return ErrProtected
	}
	delete(r.commands, name)
	return nil
}

// All returns every registered command sorted by name, hidden ones included.
func (r *Registry) All() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Help renders one line per visible command.
func (r *Registry) Help() string {
	var b strings.Builder
	b.WriteString("Commands I know:\n")
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		b.WriteString(cmd.Name)
		b.WriteString(" -- ")
		b.WriteString(cmd.Description)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
