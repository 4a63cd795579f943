package cache

import "sync"

// Change is returned by every property mutator. Changed is false when the
// new value equals the old one.
type Change struct {
	Property string
	Changed  bool
}

// Changed reports a change of the named property.
func Changed(property string) Change { return Change{Property: property, Changed: true} }

// Unchanged reports a no-op write of the named property.
func Unchanged(property string) Change { return Change{Property: property} }

type conditionKind int

const (
	anyChange conditionKind = iota
	named
	independent
)

// Condition decides which property changes purge a table.
type Condition struct {
	kind  conditionKind
	names map[string]struct{}
}

// OnAny purges on any actual change.
func OnAny() Condition { return Condition{kind: anyChange} }

// On purges when one of the named properties changes.
func On(names ...string) Condition {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return Condition{kind: named, names: set}
}

// Independent never purges on property changes; the key must carry
// every input.
func Independent() Condition { return Condition{kind: independent} }

func (c Condition) matches(ch Change) bool {
	if !ch.Changed {
		return false
	}
	switch c.kind {
	case anyChange:
		return true
	case named:
		_, ok := c.names[ch.Property]
		return ok
	default:
		return false
	}
}

// Invalidator is implemented by every table.
type Invalidator interface {
	Invalidate(changes ...Change) bool
}

// Table is a memoization map. Entries are only dropped by Invalidate or Clear.
type Table[K comparable, V any] struct {
	mu        sync.Mutex
	condition Condition
	entries   map[K]V
}

func New[K comparable, V any](condition Condition) *Table[K, V] {
	return &Table[K, V]{
		condition: condition,
		entries:   make(map[K]V),
	}
}

// Get returns the cached value for key, computing and storing it on a miss.
// Errors are not cached.
func (t *Table[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	t.mu.Lock()
	if v, ok := t.entries[key]; ok {
		t.mu.Unlock()
		return v, nil
	}
	t.mu.Unlock()

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	t.mu.Lock()
	t.entries[key] = v
	t.mu.Unlock()
	return v, nil
}

// Lookup returns the cached value without computing.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[key]
	return v, ok
}

// Invalidate drops every entry when one of the changes matches the table
// condition. It reports whether anything was dropped.
func (t *Table[K, V]) Invalidate(changes ...Change) bool {
	for _, ch := range changes {
		if t.condition.matches(ch) {
			t.mu.Lock()
			n := len(t.entries)
			t.entries = make(map[K]V)
			t.mu.Unlock()
			return n > 0
		}
	}
	return false
}

func (t *Table[K, V]) Clear() {
	t.mu.Lock()
	t.entries = make(map[K]V)
	t.mu.Unlock()
}

func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Group holds the tables owned by one component.
type Group struct {
	tables []Invalidator
}

func (g *Group) Add(tables ...Invalidator) {
	g.tables = append(g.tables, tables...)
}

// Notify forwards changes to every table of the group.
func (g *Group) Notify(changes ...Change) {
	for _, t := range g.tables {
		t.Invalidate(changes...)
	}
}
