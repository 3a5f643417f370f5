package provider

import (
	"errors"
	"fmt"
	"sync"

	"github.com/3leaps/goferry/pkg/locator"
)

// Registry routes remote URLs to the provider registered for their scheme.
//
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byScheme map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byScheme: make(map[string]Provider)}
}

// Register binds p to each of the given schemes, replacing earlier bindings.
func (r *Registry) Register(p Provider, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.byScheme[s] = p
	}
}

// Resolve returns the provider for rawURL's scheme.
func (r *Registry) Resolve(rawURL string) (Provider, error) {
	scheme := locator.Scheme(rawURL)
	if scheme == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, rawURL)
	}

	r.mu.RLock()
	p, ok := r.byScheme[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	return p, nil
}

// Schemes returns the registered schemes in no particular order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byScheme))
	for s := range r.byScheme {
		out = append(out, s)
	}
	return out
}

// Close closes every distinct registered provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[Provider]struct{}, len(r.byScheme))
	var errs []error
	for _, p := range r.byScheme {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
