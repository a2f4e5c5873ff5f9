// Package entity defines the identity and version types shared by the ledger,
// the change feed and the detector.
package entity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// UID is the canonical identity of a persisted object: canonical table name
// plus rendered primary key. It is comparable and usable as a map key.
type UID struct {
	Table string
	Key   string
}

const uidSep = "#"

// String renders the composite key as "table#key".
func (u UID) String() string { return u.Table + uidSep + u.Key }

func (u UID) IsZero() bool { return u.Table == "" && u.Key == "" }

var ErrInvalidUID = errors.New("entity: invalid uid")

// ParseUID splits "table#key" on the first separator. Keys may contain '#'.
func ParseUID(s string) (UID, error) {
	table, key, ok := strings.Cut(s, uidSep)
	if !ok || table == "" {
		return UID{}, fmt.Errorf("%w: %q", ErrInvalidUID, s)
	}
	return UID{Table: table, Key: key}, nil
}

// Canonicalizer maps a raw table/type name to its canonical form.
type Canonicalizer func(string) string

// LowerCase trims surrounding space and folds to lower case. It matches how
// database triggers usually render table names in notifications.
func LowerCase(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Type is a registered entity type. Its canonical table name is computed once
// at registration; UID only renders the key.
type Type struct {
	name  string
	table string
}

func (t Type) Name() string  { return t.name }
func (t Type) Table() string { return t.table }

// UID builds the identity of the instance with primary key pk.
func (t Type) UID(pk any) UID {
	return UID{Table: t.table, Key: renderKey(pk)}
}

func renderKey(pk any) string {
	switch v := pk.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Registry holds entity types keyed by type name.
// Safe for concurrent use; registration normally happens once at startup.
type Registry struct {
	canon Canonicalizer

	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry returns a registry using canon (nil => LowerCase).
func NewRegistry(canon Canonicalizer) *Registry {
	if canon == nil {
		canon = LowerCase
	}
	return &Registry{canon: canon, types: make(map[string]Type)}
}

// Register records the type name -> table mapping. Registering the same name
// twice with a different table is an error.
func (r *Registry) Register(name, table string) (Type, error) {
	if name == "" || table == "" {
		return Type{}, fmt.Errorf("entity: register %q: name and table are required", name)
	}
	t := Type{name: name, table: r.canon(table)}
	if t.table == "" {
		return Type{}, fmt.Errorf("entity: register %q: table %q canonicalizes to empty", name, table)
	}
	if strings.Contains(t.table, uidSep) {
		return Type{}, fmt.Errorf("entity: register %q: table %q contains %q", name, t.table, uidSep)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.types[name]; ok {
		if prev.table != t.table {
			return Type{}, fmt.Errorf("entity: %q already registered for table %q", name, prev.table)
		}
		return prev, nil
	}
	r.types[name] = t
	return t, nil
}

// MustRegister is like Register but panics on error. Intended for package-level setup.
func (r *Registry) MustRegister(name, table string) Type {
	t, err := r.Register(name, table)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the registered type for name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	return t, ok
}

// Canonical applies the registry's canonicalization to a raw table name.
func (r *Registry) Canonical(table string) string { return r.canon(table) }
