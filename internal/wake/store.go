package wake

import (
	"container/list"

	"github.com/systemx-switch/systemx/internal/registry"
)

// Store holds the process-wide address -> Profile map and a per-address
// FIFO of PendingCall entries, mirroring the teacher's address-keyed
// map-plus-mutex Store but mutated only from the router's single dispatch
// path, like every other table in this package tree.
type Store struct {
	profiles map[string]Profile
	queues   map[string]*list.List // value type: *PendingCall
}

// NewStore builds an empty wake store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]Profile),
		queues:   make(map[string]*list.List),
	}
}

// Put persists a Profile for address, created on SLEEP_ACK, UNREGISTER, or
// a heartbeat-timeout disconnect of a wake-configured connection.
func (s *Store) Put(p Profile) {
	s.profiles[p.Address] = p
}

// Take removes and returns the Profile for address, if any. REGISTER calls
// this to reinstate and clear a stored profile in the same handler (spec
// §8 invariant).
func (s *Store) Take(address string) (Profile, bool) {
	p, ok := s.profiles[address]
	if ok {
		delete(s.profiles, address)
	}
	return p, ok
}

// Peek returns the Profile for address without removing it.
func (s *Store) Peek(address string) (Profile, bool) {
	p, ok := s.profiles[address]
	return p, ok
}

// Enqueue appends call to the FIFO for its callee address.
func (s *Store) Enqueue(call *PendingCall) {
	q, ok := s.queues[call.CalleeAddress]
	if !ok {
		q = list.New()
		s.queues[call.CalleeAddress] = q
	}
	q.PushBack(call)
}

// Dequeue removes and returns the oldest PendingCall for address, or nil if
// the queue is empty or absent.
func (s *Store) Dequeue(address string) *PendingCall {
	q, ok := s.queues[address]
	if !ok || q.Len() == 0 {
		return nil
	}
	front := q.Front()
	q.Remove(front)
	if q.Len() == 0 {
		delete(s.queues, address)
	}
	return front.Value.(*PendingCall)
}

// RemoveCall removes one specific PendingCall from its address queue by
// identity, used when a wake attempt fails or times out independently of
// caller-wide cleanup.
func (s *Store) RemoveCall(call *PendingCall) {
	q, ok := s.queues[call.CalleeAddress]
	if !ok {
		return
	}
	for e := q.Front(); e != nil; e = e.Next() {
		if e.Value.(*PendingCall) == call {
			q.Remove(e)
			break
		}
	}
	if q.Len() == 0 {
		delete(s.queues, call.CalleeAddress)
	}
}

// RemoveByCaller removes and returns every PendingCall across all queues
// whose Caller is conn, used by disconnect handling (spec §4.9 step 5).
func (s *Store) RemoveByCaller(conn *registry.Connection) []*PendingCall {
	var removed []*PendingCall
	for address, q := range s.queues {
		for e := q.Front(); e != nil; {
			next := e.Next()
			call := e.Value.(*PendingCall)
			if call.Caller == conn {
				q.Remove(e)
				removed = append(removed, call)
			}
			e = next
		}
		if q.Len() == 0 {
			delete(s.queues, address)
		}
	}
	return removed
}
