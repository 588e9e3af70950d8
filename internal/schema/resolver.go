package schema

// KeyResolver is one strategy for discovering an entity's primary-key
// fields. Strategies are tried in order by the registry; the first one
// that succeeds wins. When every strategy fails, primary-key dependent
// behavior (sort stabilization, two-phase execution) degrades, so the
// chain order is part of the engine's observable contract.
type KeyResolver interface {
	// Name identifies the strategy in diagnostics.
	Name() string

	// Resolve returns the ordered key fields, or ok=false when this
	// strategy cannot determine them.
	Resolve(e *Entity) (fields []string, ok bool)
}

// MetadataResolver uses the key fields declared in the entity metadata.
// This is the primary strategy; it only fails for entities registered
// without a declared key.
type MetadataResolver struct{}

func (MetadataResolver) Name() string { return "metadata" }

func (MetadataResolver) Resolve(e *Entity) ([]string, bool) {
	if len(e.KeyFields) == 0 {
		return nil, false
	}
	fields := make([]string, len(e.KeyFields))
	copy(fields, e.KeyFields)
	return fields, true
}

// ConventionResolver guesses the key from well-known field names when no
// key is declared. It is the degraded fallback: correct for the common
// "id" convention, silent about anything exotic.
type ConventionResolver struct{}

func (ConventionResolver) Name() string { return "convention" }

func (c ConventionResolver) Resolve(e *Entity) ([]string, bool) {
	for _, candidate := range []string{"id", e.Name + "_id", "uuid"} {
		if f, ok := e.Field(candidate); ok && keyFieldTypes[f.Type] {
			return []string{candidate}, true
		}
	}
	return nil, false
}

// DefaultResolvers returns the standard strategy chain: declared
// metadata first, name conventions second.
func DefaultResolvers() []KeyResolver {
	return []KeyResolver{MetadataResolver{}, ConventionResolver{}}
}

// ResolvedKey is the outcome of the resolver chain: the ordered key
// fields and the name of the strategy that found them.
type ResolvedKey struct {
	Fields   []string
	Strategy string
}

// resolveKey runs the chain and reports which strategy served.
func resolveKey(resolvers []KeyResolver, e *Entity) (ResolvedKey, error) {
	for _, r := range resolvers {
		if fields, ok := r.Resolve(e); ok {
			return ResolvedKey{Fields: fields, Strategy: r.Name()}, nil
		}
	}
	return ResolvedKey{}, NewResolutionError(e.Name, "no resolver strategy could determine primary key fields")
}
