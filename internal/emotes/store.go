// Package emotes keeps the emote sets available to the local identity.
package emotes

import "sync"

// Emote is a single emote a user may type
type Emote struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
}

// Sets maps an emote set id to the emotes it contains
type Sets map[string][]Emote

// Store holds the most recently fetched emote sets.
// It has its own lock and is independent of the blocklist.
type Store struct {
	mu     sync.RWMutex
	sets   Sets
	byCode map[string]Emote
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sets:   Sets{},
		byCode: make(map[string]Emote),
	}
}

// Replace swaps in a freshly fetched set of emotes
func (s *Store) Replace(sets Sets) {
	copied := make(Sets, len(sets))
	byCode := make(map[string]Emote)
	for id, list := range sets {
		copied[id] = append([]Emote(nil), list...)
		for _, e := range list {
			byCode[e.Code] = e
		}
	}

	s.mu.Lock()
	s.sets = copied
	s.byCode = byCode
	s.mu.Unlock()
}

// Lookup finds an emote by its exact code
func (s *Store) Lookup(code string) (Emote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byCode[code]
	return e, ok
}

// Count returns the number of distinct emote codes
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCode)
}

// SetIDs returns the ids of the loaded emote sets
func (s *Store) SetIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sets))
	for id := range s.sets {
		ids = append(ids, id)
	}
	return ids
}
