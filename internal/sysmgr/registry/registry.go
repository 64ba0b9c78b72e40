// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     registry
// Description: Thread-safe ordered collections of running services and
//              applications
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package registry

import (
	"sync"

	mserror "github.com/msto63/mSYS/foundation/core/error"
)

// Handle is anything registered by name
type Handle interface {
	Name() string
}

// Collection is an ordered set of handles with unique names. Every
// operation holds the collection's mutex for its whole duration, so
// visitors passed to ForEach and Sweep must not call back into the same
// collection.
type Collection[T Handle] struct {
	name     string
	mu       sync.Mutex
	items    []T
	reversed bool
}

// NewCollection creates an empty collection
func NewCollection[T Handle](name string) *Collection[T] {
	return &Collection[T]{name: name}
}

// Name returns the collection name
func (c *Collection[T]) Name() string {
	return c.name
}

// Register adds a handle. Once the order has been reversed for teardown
// new handles are placed first, so iteration stays last-started-first.
func (c *Collection[T]) Register(h T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOf(h.Name()) >= 0 {
		return mserror.New("name already registered").
			WithCode(mserror.CodeDuplicateService).
			WithDetail("collection", c.name).
			WithDetail("name", h.Name())
	}
	if c.reversed {
		c.items = append([]T{h}, c.items...)
	} else {
		c.items = append(c.items, h)
	}
	return nil
}

// Unregister removes a handle by name
func (c *Collection[T]) Unregister(name string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	i := c.indexOf(name)
	if i < 0 {
		return zero, false
	}
	h := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	return h, true
}

// Find returns the handle registered under name
func (c *Collection[T]) Find(name string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	i := c.indexOf(name)
	if i < 0 {
		return zero, false
	}
	return c.items[i], true
}

// ForEach visits every handle in iteration order
func (c *Collection[T]) ForEach(visit func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.items {
		visit(h)
	}
}

// Sweep visits every handle in iteration order and removes those for
// which remove returns true. It returns the removed handles.
func (c *Collection[T]) Sweep(remove func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []T
	kept := c.items[:0]
	for _, h := range c.items {
		if remove(h) {
			removed = append(removed, h)
			continue
		}
		kept = append(kept, h)
	}
	var zero T
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = zero
	}
	c.items = kept
	return removed
}

// ReverseOrder reverses the iteration order in place
func (c *Collection[T]) ReverseOrder() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, j := 0, len(c.items)-1; i < j; i, j = i+1, j-1 {
		c.items[i], c.items[j] = c.items[j], c.items[i]
	}
	c.reversed = !c.reversed
}

// Reversed reports whether the collection iterates last-started-first
func (c *Collection[T]) Reversed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reversed
}

// Snapshot returns a copy of the handles in iteration order
func (c *Collection[T]) Snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Names returns the registered names in iteration order
func (c *Collection[T]) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, len(c.items))
	for i, h := range c.items {
		names[i] = h.Name()
	}
	return names
}

// Len returns the number of handles
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Collection[T]) indexOf(name string) int {
	for i, h := range c.items {
		if h.Name() == name {
			return i
		}
	}
	return -1
}

// Registry groups the running services and the running applications.
// The two collections are guarded independently.
type Registry[T Handle] struct {
	Services     *Collection[T]
	Applications *Collection[T]
}

// New creates an empty registry
func New[T Handle]() *Registry[T] {
	return &Registry[T]{
		Services:     NewCollection[T]("services"),
		Applications: NewCollection[T]("applications"),
	}
}
