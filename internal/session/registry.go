package session

import (
	"fmt"
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	items map[string]*Session
}

// Registry is the concurrent session table. Operations on ids in different
// shards never contend; mutations of a single id are serialized by its
// shard lock. Callers only ever see copies.
type Registry struct {
	shards [shardCount]*shard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{items: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Insert adds s and reports false if the id is already taken.
func (r *Registry) Insert(s Session) bool {
	sh := r.shardFor(s.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[s.ID]; ok {
		return false
	}
	c := s.clone()
	sh.items[s.ID] = &c
	return true
}

func (r *Registry) Get(id string) (Session, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.items[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Update applies fn to the stored session under its shard lock. If fn
// returns an error the session is left untouched and the error returned.
func (r *Registry) Update(id string, fn func(s *Session) error) (Session, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.items[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := s.clone()
	if err := fn(&next); err != nil {
		return s.clone(), err
	}
	*s = next
	return next.clone(), nil
}

// Remove deletes the session and returns what was stored.
func (r *Registry) Remove(id string) (Session, bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.items[id]
	if !ok {
		return Session{}, false
	}
	delete(sh.items, id)
	return s.clone(), true
}

// RemoveIf deletes the session only if pred reports true for the stored
// value, checked under the shard lock.
func (r *Registry) RemoveIf(id string, pred func(Session) bool) (Session, bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.items[id]
	if !ok || !pred(s.clone()) {
		return Session{}, false
	}
	delete(sh.items, id)
	return s.clone(), true
}

// Snapshot copies every session. It is not atomic across shards.
func (r *Registry) Snapshot() []Session {
	var out []Session
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.items {
			out = append(out, s.clone())
		}
		sh.mu.RUnlock()
	}
	return out
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}
