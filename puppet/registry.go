package puppet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warble-im/warble/internal/logging"
)

// Factory builds a puppet instance. Factories typically close over their
// configuration.
type Factory func() (Puppet, error)

// Registry maps puppet kinds to factories so puppets can be constructed
// from configuration by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	log       *logging.Logger
}

// NewRegistry creates an empty puppet registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		log:       log.Sub("puppets"),
	}
}

// Register adds a factory for the given kind, replacing any previous one.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
	r.log.Debug().Str("kind", kind).Msg("puppet factory registered")
}

// New builds a puppet of the given kind.
func (r *Registry) New(kind string) (Puppet, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown puppet kind %q", kind)
	}
	p, err := f()
	if err != nil {
		return nil, fmt.Errorf("building %q puppet: %w", kind, err)
	}
	r.log.Info().Str("kind", kind).Msg("puppet created")
	return p, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
