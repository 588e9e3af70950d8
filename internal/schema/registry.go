package schema

import "fmt"

// Introspector provides the metadata lookups the planner consumes. The
// three calls are the whole surface the engine needs; anything able to
// answer them (the in-memory Registry, a caching wrapper, a test stub)
// can back the engine.
//
// All lookups fail with *ResolutionError when the metadata cannot be
// determined.
type Introspector interface {
	// Entity returns the full metadata for an entity type.
	Entity(name string) (*Entity, error)

	// PrimaryKey returns the ordered primary-key fields and the
	// resolver strategy that discovered them.
	PrimaryKey(name string) (ResolvedKey, error)

	// Relationship returns one named relationship of an entity.
	Relationship(entity, relation string) (*Relationship, error)
}

// Registry is the in-memory metadata store populated at startup.
//
// Registration is not safe for concurrent use; register everything
// during initialization, call Validate, then share the registry freely -
// all lookups after that point are read-only.
type Registry struct {
	entities  map[string]*Entity
	order     []string
	resolvers []KeyResolver
}

// NewRegistry creates an empty registry. With no arguments the default
// resolver chain (metadata, then convention) is used.
func NewRegistry(resolvers ...KeyResolver) *Registry {
	if len(resolvers) == 0 {
		resolvers = DefaultResolvers()
	}
	return &Registry{
		entities:  make(map[string]*Entity),
		resolvers: resolvers,
	}
}

// Register adds one entity after validating its internal consistency.
// Registering the same name twice is an error.
func (r *Registry) Register(e Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, exists := r.entities[e.Name]; exists {
		return fmt.Errorf("entity %s already registered", e.Name)
	}

	stored := e
	r.entities[e.Name] = &stored
	r.order = append(r.order, e.Name)
	return nil
}

// Validate cross-checks all registered entities: every relationship
// target must be registered and its foreign column must exist on the
// target. Call once after registration completes.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		e := r.entities[name]
		for _, rel := range e.Relationships {
			target, ok := r.entities[rel.Target]
			if !ok {
				return fmt.Errorf("entity %s: relationship %s targets unregistered entity %s", e.Name, rel.Name, rel.Target)
			}
			if !target.HasField(rel.ForeignColumn) {
				return fmt.Errorf("entity %s: relationship %s references unknown column %s.%s",
					e.Name, rel.Name, rel.Target, rel.ForeignColumn)
			}
		}
	}
	return nil
}

// Entity implements Introspector.
func (r *Registry) Entity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, NewResolutionError(name, "entity is not registered")
	}
	return e, nil
}

// PrimaryKey implements Introspector by running the resolver strategy
// chain.
func (r *Registry) PrimaryKey(name string) (ResolvedKey, error) {
	e, err := r.Entity(name)
	if err != nil {
		return ResolvedKey{}, err
	}
	return resolveKey(r.resolvers, e)
}

// Relationship implements Introspector.
func (r *Registry) Relationship(entity, relation string) (*Relationship, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return nil, err
	}
	rel, ok := e.Relationship(relation)
	if !ok {
		return nil, NewPathResolutionError(entity, relation, "relationship is not declared")
	}
	return &rel, nil
}

// Entities returns all registered entities in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.order))
	for i, name := range r.order {
		out[i] = r.entities[name]
	}
	return out
}

var _ Introspector = (*Registry)(nil)
