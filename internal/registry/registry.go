package registry

import (
	"errors"
	"sync"

	"github.com/systemx-switch/systemx/internal/transport"
)

// ErrAddressInUse is returned by BindAddress when a different live
// connection already owns the address.
var ErrAddressInUse = errors.New("registry: address in use")

// Registry tracks every live connection, by session and by bound address.
// It is the sole owner of the address-uniqueness invariant (spec §3, §4.1).
// All methods are safe for concurrent use, though in practice the router
// mutates it only from its single dispatch path (spec §5); the lock here
// guards reads made from outside that path (e.g. Len via
// Router.Registry()) running concurrently with dispatch.
type Registry struct {
	mu          sync.RWMutex
	bySession   map[string]*Connection
	byAddress   map[string]*Connection
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		bySession: make(map[string]*Connection),
		byAddress: make(map[string]*Connection),
	}
}

// Create registers a brand-new, unbound connection wrapping conn.
func (r *Registry) Create(conn transport.Conn) *Connection {
	c := NewConnection(conn)
	r.mu.Lock()
	r.bySession[c.SessionID] = c
	r.mu.Unlock()
	return c
}

// BindAddress binds address to c. Rebinding the same connection to the
// address it already owns is a no-op metadata refresh. Binding to an
// address owned by a different live connection fails with ErrAddressInUse.
// When c previously owned a different address, the prior mapping is
// removed atomically before the new one is inserted.
func (r *Registry) BindAddress(c *Connection, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byAddress[address]; ok && existing != c {
		return ErrAddressInUse
	}

	if c.Address != "" && c.Address != address {
		delete(r.byAddress, c.Address)
	}
	c.Address = address
	r.byAddress[address] = c
	return nil
}

// Unbind removes c's address mapping, leaving its session mapping intact.
// Disconnect additionally removes the session mapping via Remove.
func (r *Registry) Unbind(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Address == "" {
		return
	}
	if r.byAddress[c.Address] == c {
		delete(r.byAddress, c.Address)
	}
	c.Address = ""
}

// Remove deletes c entirely: its session mapping and, if present, its
// address mapping.
func (r *Registry) Remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, c.SessionID)
	if c.Address != "" && r.byAddress[c.Address] == c {
		delete(r.byAddress, c.Address)
	}
}

// ByAddress looks up the live connection bound to address, if any.
func (r *Registry) ByAddress(address string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byAddress[address]
	return c, ok
}

// BySession looks up a connection by its session id.
func (r *Registry) BySession(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySession[sessionID]
	return c, ok
}

// Each calls fn for every live, address-bound connection. fn must not
// mutate the registry.
func (r *Registry) Each(fn func(*Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byAddress {
		fn(c)
	}
}

// AllSessions calls fn for every live connection, bound or not, used by the
// heartbeat sweeper which must also catch connections that registered but
// never bound an address.
func (r *Registry) AllSessions(fn func(*Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.bySession {
		fn(c)
	}
}

// Len reports the number of live sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}
