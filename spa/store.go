package spa

import "sync"

// Store holds the latest entity states pushed by the host.
// Readers always get a copy so the host can keep updating underneath them.
type Store struct {
	datalock *sync.RWMutex
	states   Snapshot

	subslock *sync.Mutex
	subs     map[int]chan EntityState
	nextSub  int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		datalock: &sync.RWMutex{},
		states:   Snapshot{},
		subslock: &sync.Mutex{},
		subs:     map[int]chan EntityState{},
	}
}

// Snapshot returns a copy of all current states.
func (s *Store) Snapshot() Snapshot {
	s.datalock.RLock()
	cp := make(Snapshot, len(s.states))
	for k, v := range s.states {
		cp[k] = v
	}
	s.datalock.RUnlock()
	return cp
}

// Get returns the state of a single entity.
func (s *Store) Get(id string) (EntityState, bool) {
	s.datalock.RLock()
	st, ok := s.states[id]
	s.datalock.RUnlock()
	return st, ok
}

// Update sets the state of one entity and notifies subscribers if it changed.
func (s *Store) Update(st EntityState) {
	s.datalock.Lock()
	old, ok := s.states[st.ID]
	s.states[st.ID] = st
	s.datalock.Unlock()
	if ok && old == st {
		return
	}
	s.notify(st)
}

// Remove drops an entity, subscribers see it as unavailable.
func (s *Store) Remove(id string) {
	s.datalock.Lock()
	_, ok := s.states[id]
	delete(s.states, id)
	s.datalock.Unlock()
	if ok {
		s.notify(EntityState{ID: id, Value: StateUnavailable})
	}
}

// Replace swaps the whole state set, used after a full resync with the host.
func (s *Store) Replace(snap Snapshot) {
	s.datalock.Lock()
	old := s.states
	s.states = make(Snapshot, len(snap))
	for k, v := range snap {
		s.states[k] = v
	}
	s.datalock.Unlock()

	for id, st := range snap {
		if prev, ok := old[id]; !ok || prev != st {
			s.notify(st)
		}
	}
	for id := range old {
		if _, ok := snap[id]; !ok {
			s.notify(EntityState{ID: id, Value: StateUnavailable})
		}
	}
}

// Subscribe returns a stream of changed states and a func to stop the stream.
// Slow subscribers miss updates rather than block the host.
func (s *Store) Subscribe(buffer int) (<-chan EntityState, func()) {
	ch := make(chan EntityState, buffer)
	s.subslock.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subslock.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subslock.Lock()
			delete(s.subs, id)
			s.subslock.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(st EntityState) {
	s.subslock.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
	s.subslock.Unlock()
}
