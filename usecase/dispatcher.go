package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fastygo/classroom/domain"
)

// Handler runs one named operation with the arguments left after its name.
type Handler func(ctx context.Context, args []string) (interface{}, error)

// Command is an operation the front-end can dispatch by name. Mutations change
// server state; everything else is a read.
type Command struct {
	Name     string
	Usage    string
	Mutation bool
	Handler  Handler
}

type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{commands: make(map[string]Command)}
}

// Register adds cmd. Names must be unique.
func (d *Dispatcher) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Handler == nil {
		return domain.NewError(domain.ErrCodeInvalid, "command needs a name and a handler")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.commands[cmd.Name]; ok {
		return domain.NewError(domain.ErrCodeConflict, fmt.Sprintf("command %s already registered", cmd.Name))
	}
	d.commands[cmd.Name] = cmd
	return nil
}

// MustRegister is Register for static wiring.
func (d *Dispatcher) MustRegister(cmds ...Command) {
	for _, cmd := range cmds {
		if err := d.Register(cmd); err != nil {
			panic(err)
		}
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []string) (interface{}, error) {
	d.mu.RLock()
	cmd, ok := d.commands[name]
	d.mu.RUnlock()
	if !ok {
		return nil, domain.NewError(domain.ErrCodeNotFound, fmt.Sprintf("unknown command %q", name))
	}
	return cmd.Handler(ctx, args)
}

// Commands lists the registered commands by name.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	out := make([]Command, 0, len(d.commands))
	for _, cmd := range d.commands {
		out = append(out, cmd)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
