// Package namespace provides a local registry of pet names for encoded
// streams, so gateways and tools can address content by name instead of
// URN.
package namespace

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"eris/internal/eris"
)

var (
	ErrNameNotFound = errors.New("name not found")
	ErrBadName      = errors.New("invalid name")
)

// Entry names one encoded stream. Length is the content length in
// bytes, recorded at tag time so gateways can report sizes without
// touching the block store.
type Entry struct {
	URN     string    `json:"urn"`
	Length  int64     `json:"length"`
	Updated time.Time `json:"updated"`
}

// Capability parses the entry's URN.
func (e Entry) Capability() (eris.Capability, error) {
	return eris.ParseURN(e.URN)
}

// Named is an entry together with its name, as returned by List.
type Named struct {
	Name string
	Entry
}

// Namespace is a mutable name registry. Implementations are safe for
// concurrent use.
type Namespace interface {
	// Get returns the entry for name.
	Get(name string) (Entry, error)

	// Set creates or replaces the entry for name.
	Set(name string, entry Entry) error

	// Remove deletes the entry for name.
	Remove(name string) error

	// List returns all entries ordered by name.
	List() ([]Named, error)

	Close() error
}

// checkName rejects names that cannot appear as a single path element
// in the filesystem gateways.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%q: %w", name, ErrBadName)
	}
	return nil
}

var _ Namespace = (*InMemoryNamespace)(nil)

// InMemoryNamespace keeps the registry in process memory, primarily
// for tests and ephemeral tooling.
type InMemoryNamespace struct {
	mu    sync.RWMutex
	store map[string]Entry
}

func NewInMemoryNamespace() *InMemoryNamespace {
	return &InMemoryNamespace{store: make(map[string]Entry)}
}

func (n *InMemoryNamespace) Get(name string) (Entry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	entry, ok := n.store[name]
	if !ok {
		return Entry{}, fmt.Errorf("%q: %w", name, ErrNameNotFound)
	}
	return entry, nil
}

func (n *InMemoryNamespace) Set(name string, entry Entry) error {
	if err := checkName(name); err != nil {
		return err
	}
	n.mu.Lock()
	n.store[name] = entry
	n.mu.Unlock()
	return nil
}

func (n *InMemoryNamespace) Remove(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.store[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNameNotFound)
	}
	delete(n.store, name)
	return nil
}

func (n *InMemoryNamespace) List() ([]Named, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return sortedEntries(n.store), nil
}

func (n *InMemoryNamespace) Close() error { return nil }

func sortedEntries(store map[string]Entry) []Named {
	named := make([]Named, 0, len(store))
	for name, entry := range store {
		named = append(named, Named{Name: name, Entry: entry})
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })
	return named
}
