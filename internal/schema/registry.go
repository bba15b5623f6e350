package schema

import (
	"errors"
	"fmt"
)

// ErrModelExists is returned when registering a name that is already taken.
var ErrModelExists = errors.New("schema: model already exists")

// Registry holds the defined models of one session, keyed by name and
// preserving definition order. It is not safe for concurrent use.
type Registry struct {
	models map[string]*Model
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register adds a model under its name. Duplicate names are rejected; there
// is no replace operation.
func (r *Registry) Register(m *Model) error {
	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("%w: %q", ErrModelExists, m.Name)
	}
	r.models[m.Name] = m
	r.order = append(r.order, m.Name)
	return nil
}

// Get returns the model registered under name.
func (r *Registry) Get(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// List returns all models in definition order.
func (r *Registry) List() []*Model {
	out := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int { return len(r.models) }
