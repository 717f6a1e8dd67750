package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// registryEntry pairs a capability profile with the factory that builds
// its adapter.
type registryEntry struct {
	profile ProviderProfile
	factory AdapterFactory
}

// registrySnapshot is an immutable view of the registered provider set.
// Readers load it atomically and never observe a partial update.
type registrySnapshot struct {
	entries map[string]registryEntry
	order   []string // names in registration order
}

// Registry holds provider capability profiles and adapter factories.
// Registration is the only mutation path besides Reload, which swaps in a
// whole new profile set in one atomic store.
type Registry struct {
	mu       sync.Mutex // serializes writers only
	snapshot atomic.Pointer[registrySnapshot]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(&registrySnapshot{entries: map[string]registryEntry{}})
	return r
}

// Register adds a provider profile and its adapter factory. It fails with
// DUPLICATE_PROVIDER when the name is already registered and with
// INVALID_PROFILE when the profile is structurally incomplete.
func (r *Registry) Register(profile ProviderProfile, factory AdapterFactory) error {
	if err := profile.CheckComplete(); err != nil {
		return err
	}
	if factory == nil {
		return NewError(ErrInvalidProfile, "nil adapter factory").WithProvider(profile.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot.Load()
	if _, exists := cur.entries[profile.Name]; exists {
		return NewError(ErrDuplicateProvider,
			fmt.Sprintf("provider %q already registered", profile.Name)).WithProvider(profile.Name)
	}

	next := cur.clone()
	next.entries[profile.Name] = registryEntry{profile: profile, factory: factory}
	next.order = append(next.order, profile.Name)
	r.snapshot.Store(next)
	return nil
}

// Lookup returns the profile registered under name, or UNKNOWN_PROVIDER.
func (r *Registry) Lookup(name string) (ProviderProfile, error) {
	entry, ok := r.snapshot.Load().entries[name]
	if !ok {
		return ProviderProfile{}, NewError(ErrUnknownProvider,
			fmt.Sprintf("provider %q not registered", name)).WithProvider(name)
	}
	return entry.profile, nil
}

// Factory returns the adapter factory registered under name.
func (r *Registry) Factory(name string) (AdapterFactory, error) {
	entry, ok := r.snapshot.Load().entries[name]
	if !ok {
		return nil, NewError(ErrUnknownProvider,
			fmt.Sprintf("provider %q not registered", name)).WithProvider(name)
	}
	return entry.factory, nil
}

// List returns provider names in registration order.
func (r *Registry) List() []string {
	cur := r.snapshot.Load()
	names := make([]string, len(cur.order))
	copy(names, cur.order)
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.snapshot.Load().order)
}

// Reload replaces the whole provider set with the given profiles, reusing
// the factory already registered for each name. Profiles for names that
// were never registered are rejected so a reload cannot invent a provider
// without an adapter. In-flight readers keep the old snapshot until the
// single atomic swap.
func (r *Registry) Reload(profiles []ProviderProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot.Load()
	next := &registrySnapshot{entries: make(map[string]registryEntry, len(profiles))}
	for _, p := range profiles {
		if err := p.CheckComplete(); err != nil {
			return err
		}
		old, ok := cur.entries[p.Name]
		if !ok {
			return NewError(ErrUnknownProvider,
				fmt.Sprintf("reload references unregistered provider %q", p.Name)).WithProvider(p.Name)
		}
		if _, dup := next.entries[p.Name]; dup {
			return NewError(ErrDuplicateProvider,
				fmt.Sprintf("provider %q appears twice in reload set", p.Name)).WithProvider(p.Name)
		}
		next.entries[p.Name] = registryEntry{profile: p, factory: old.factory}
		next.order = append(next.order, p.Name)
	}
	r.snapshot.Store(next)
	return nil
}

func (s *registrySnapshot) clone() *registrySnapshot {
	next := &registrySnapshot{
		entries: make(map[string]registryEntry, len(s.entries)+1),
		order:   make([]string, len(s.order), len(s.order)+1),
	}
	for k, v := range s.entries {
		next.entries[k] = v
	}
	copy(next.order, s.order)
	return next
}
