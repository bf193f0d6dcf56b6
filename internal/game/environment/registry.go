package environment

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownEnvironment is returned when an environment ID is not registered.
var ErrUnknownEnvironment = errors.New("unknown environment")

// maxSuggestDistance bounds how far an ID may be from the query to be suggested.
const maxSuggestDistance = 3

// Registry holds environments by ID. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	envs map[string]*Environment
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{envs: make(map[string]*Environment)}
}

// NewRegistryFrom registers every environment in envs.
//
// Postcondition: Returns a populated Registry or the first Register error.
func NewRegistryFrom(envs []*Environment) (*Registry, error) {
	r := NewRegistry()
	for _, e := range envs {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds env after validating it.
//
// Precondition: env must be non-nil.
// Postcondition: Returns an error if env is invalid or its ID is already registered.
func (r *Registry) Register(env *Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.envs[env.ID]; exists {
		return fmt.Errorf("environment %q already registered", env.ID)
	}
	r.envs[env.ID] = env
	return nil
}

// Get returns the environment with id, or an error wrapping
// ErrUnknownEnvironment that names the closest known IDs.
func (r *Registry) Get(id string) (*Environment, error) {
	r.mu.RLock()
	env, ok := r.envs[id]
	r.mu.RUnlock()
	if ok {
		return env, nil
	}
	if s := r.Suggest(id); len(s) > 0 {
		return nil, fmt.Errorf("%w %q (did you mean %v?)", ErrUnknownEnvironment, id, s)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEnvironment, id)
}

// All returns every environment sorted by ID.
func (r *Registry) All() []*Environment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Environment, 0, len(r.envs))
	for _, e := range r.envs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every registered ID, sorted.
func (r *Registry) IDs() []string {
	all := r.All()
	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.ID
	}
	return ids
}

// Suggest returns registered IDs within a small edit distance of id, closest
// first, ties broken alphabetically.
func (r *Registry) Suggest(id string) []string {
	type scored struct {
		id   string
		dist int
	}
	var hits []scored
	for _, known := range r.IDs() {
		d := levenshtein.ComputeDistance(id, known)
		if d <= maxSuggestDistance {
			hits = append(hits, scored{id: known, dist: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out
}
