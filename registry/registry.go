// Package registry implements the named-service container the pipeline
// resolves endpoint dependencies through. Construction is lazy, cached, and
// deduplicated: for any name the factory runs at most once no matter how
// many requests race on first use, and a failed construction is never
// cached, so a transient outage does not poison the process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Togather-Foundation/conduit/config"
)

// Descriptor names a service and knows how to build it. Descriptors are
// pure values created once at module load; two distinct descriptors
// sharing a name is a programming error the registry reports on resolve.
type Descriptor struct {
	Name  string
	Build func(ctx context.Context, env *config.Env) (any, error)
}

// NewService returns a descriptor for a named service.
func NewService(name string, build func(ctx context.Context, env *config.Env) (any, error)) *Descriptor {
	return &Descriptor{Name: name, Build: build}
}

// Instances maps service names to resolved instances for one request.
type Instances map[string]any

// Get returns the instance registered under name, asserted to T.
func Get[T any](in Instances, name string) (T, error) {
	var zero T
	raw, ok := in[name]
	if !ok {
		return zero, fmt.Errorf("registry: service %q not resolved", name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("registry: service %q is %T, not %T", name, raw, zero)
	}
	return typed, nil
}

// Registry caches named service instances for the life of the process.
// Construct one explicitly at startup and pass it by reference; it is safe
// for concurrent use.
type Registry struct {
	mu        sync.Mutex
	instances map[string]any
	owners    map[string]*Descriptor
	group     singleflight.Group
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		instances: make(map[string]any),
		owners:    make(map[string]*Descriptor),
	}
}

// Resolve returns an instance for every descriptor, constructing each
// missing one through its factory. Concurrent resolvers of the same name
// share a single in-flight construction; a factory error propagates to all
// of them and leaves the name unconstructed for the next attempt.
func (r *Registry) Resolve(ctx context.Context, env *config.Env, descriptors []*Descriptor) (Instances, error) {
	resolved := make(Instances, len(descriptors))
	for _, desc := range descriptors {
		if desc == nil {
			continue
		}
		instance, err := r.resolveOne(ctx, env, desc)
		if err != nil {
			return nil, err
		}
		resolved[desc.Name] = instance
	}
	return resolved, nil
}

func (r *Registry) resolveOne(ctx context.Context, env *config.Env, desc *Descriptor) (any, error) {
	if desc.Name == "" {
		return nil, fmt.Errorf("registry: descriptor has no name")
	}
	if desc.Build == nil {
		return nil, fmt.Errorf("registry: service %q has no factory", desc.Name)
	}

	r.mu.Lock()
	if owner, ok := r.owners[desc.Name]; ok && owner != desc {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: service name %q registered by two distinct descriptors", desc.Name)
	}
	r.owners[desc.Name] = desc
	if instance, ok := r.instances[desc.Name]; ok {
		r.mu.Unlock()
		return instance, nil
	}
	r.mu.Unlock()

	instance, err, _ := r.group.Do(desc.Name, func() (any, error) {
		built, err := desc.Build(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("registry: build service %q: %w", desc.Name, err)
		}
		r.mu.Lock()
		r.instances[desc.Name] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// Cached reports whether an instance exists for name, without constructing
// one.
func (r *Registry) Cached(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[name]
	return ok
}

// Close releases every cached instance exposing a close method, whether it
// takes a context or not, and empties the cache. Instances without one are
// dropped silently. Meant for process shutdown, after the server stops
// accepting requests.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]any)
	r.mu.Unlock()

	var errs []error
	for name, instance := range instances {
		switch c := instance.(type) {
		case interface{ Close(context.Context) error }:
			if err := c.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("registry: close service %q: %w", name, err))
			}
		case interface{ Close() }:
			c.Close()
		}
	}
	return errors.Join(errs...)
}
