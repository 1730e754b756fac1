package reaper

import "fmt"

// Ownership says which rows of a kind belong to an account.
//
// A row is owned when any of Columns holds the account id. Nested records
// with no direct account reference set Parent and ParentColumn instead: the
// row is owned when ParentColumn references an owned row of kind Parent.
type Ownership struct {
	Columns      []string
	Parent       string
	ParentColumn string
}

// EntityKind is one category of dependent rows removed during a purge.
type EntityKind struct {
	Name  string // table name
	Key   string // primary key column referenced by child kinds; defaults to "id"
	Owner Ownership
}

// KeyColumn returns the column child kinds reference.
func (k EntityKind) KeyColumn() string {
	if k.Key == "" {
		return "id"
	}
	return k.Key
}

// Registry is the ordered list of dependent kinds. Kinds are deleted in
// order, so children must appear before the kinds they reference.
type Registry struct {
	kinds []EntityKind
	index map[string]int
}

// NewRegistry builds a registry from kinds in deletion order.
func NewRegistry(kinds ...EntityKind) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(kinds))}
	for _, k := range kinds {
		if err := r.register(k); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) register(k EntityKind) error {
	if k.Name == "" {
		return fmt.Errorf("entity kind has no name")
	}
	if _, dup := r.index[k.Name]; dup {
		return fmt.Errorf("entity kind %q registered twice", k.Name)
	}
	r.index[k.Name] = len(r.kinds)
	r.kinds = append(r.kinds, k)
	return nil
}

// Validate checks every kind has an ownership predicate and that nested kinds
// are deleted before their parents.
func (r *Registry) Validate() error {
	for i, k := range r.kinds {
		direct := len(k.Owner.Columns) > 0
		nested := k.Owner.Parent != ""
		switch {
		case direct && nested:
			return fmt.Errorf("entity kind %q has both owner columns and a parent", k.Name)
		case !direct && !nested:
			return fmt.Errorf("entity kind %q has no ownership predicate", k.Name)
		case nested:
			if k.Owner.ParentColumn == "" {
				return fmt.Errorf("entity kind %q has a parent but no parent column", k.Name)
			}
			pi, ok := r.index[k.Owner.Parent]
			if !ok {
				return fmt.Errorf("entity kind %q references unknown parent %q", k.Name, k.Owner.Parent)
			}
			if pi < i {
				return fmt.Errorf("entity kind %q must be deleted before its parent %q", k.Name, k.Owner.Parent)
			}
		}
	}
	return nil
}

// Kinds returns the kinds in deletion order.
func (r *Registry) Kinds() []EntityKind {
	out := make([]EntityKind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (EntityKind, bool) {
	i, ok := r.index[name]
	if !ok {
		return EntityKind{}, false
	}
	return r.kinds[i], true
}

// MediaKind is the kind whose rows carry a blob storage key.
const MediaKind = "media_objects"

func owned(columns ...string) Ownership { return Ownership{Columns: columns} }

func via(parent, column string) Ownership { return Ownership{Parent: parent, ParentColumn: column} }

// DefaultRegistry returns every kind of record an account owns, children
// first. Adding a dependent table is one line here plus its migration.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		EntityKind{Name: "logged_sets", Owner: via("session_exercises", "session_exercise_id")},
		EntityKind{Name: "session_exercises", Owner: via("activity_sessions", "session_id")},
		EntityKind{Name: "activity_sessions", Owner: owned("account_id")},
		EntityKind{Name: "plan_items", Owner: via("plans", "plan_id")},
		EntityKind{Name: "plans", Owner: owned("account_id")},
		EntityKind{Name: "exercises", Owner: owned("author_id")},
		EntityKind{Name: "metric_snapshots", Owner: owned("account_id")},
		EntityKind{Name: "point_ledger", Owner: owned("account_id")},
		EntityKind{Name: "badges", Owner: owned("account_id")},
		EntityKind{Name: "follows", Owner: owned("follower_id", "followed_id")},
		EntityKind{Name: "auth_tokens", Owner: owned("account_id")},
		EntityKind{Name: "refresh_tokens", Owner: owned("account_id")},
		EntityKind{Name: "auth_sessions", Owner: owned("account_id")},
		EntityKind{Name: "idempotency_keys", Owner: owned("account_id")},
		EntityKind{Name: "status_history", Owner: owned("account_id")},
		EntityKind{Name: "profiles", Key: "account_id", Owner: owned("account_id")},
		EntityKind{Name: MediaKind, Owner: owned("account_id")},
	)
	if err != nil {
		panic(fmt.Sprintf("default registry: %v", err))
	}
	return r
}
