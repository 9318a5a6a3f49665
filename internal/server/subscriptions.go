package server

import (
	"sort"
	"sync"

	"main/pkg/exception"
)

// SubscriptionIndex is the bidirectional mapping between symbols and the
// sessions interested in them, plus the symbol_id ↔ name table. All methods
// are safe for concurrent use; readers get copies so no lock outlives the
// call.
type SubscriptionIndex struct {
	mu          sync.RWMutex
	idsByName   map[string]uint32
	namesByID   map[uint32]string
	subscribers map[uint32]map[SessionID]struct{}
	nextID      uint32
}

// NewSubscriptionIndex creates an empty index.
func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{
		idsByName:   make(map[string]uint32),
		namesByID:   make(map[uint32]string),
		subscribers: make(map[uint32]map[SessionID]struct{}),
	}
}

// RegisterSymbol adds a symbol to the table, allocating the next free ID.
// Registering an existing name returns its current ID.
func (idx *SubscriptionIndex) RegisterSymbol(name string) (uint32, error) {
	if name == "" {
		return 0, exception.ErrInvalidArgument
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if id, ok := idx.idsByName[name]; ok {
		return id, nil
	}
	for {
		idx.nextID++
		if idx.nextID == 0 {
			return 0, exception.ErrSymbolTableFull
		}
		if _, taken := idx.namesByID[idx.nextID]; !taken {
			break
		}
	}
	idx.idsByName[name] = idx.nextID
	idx.namesByID[idx.nextID] = name
	return idx.nextID, nil
}

// BindSymbol records a client-chosen symbol_id for a name, as carried in a
// market data request. Re-binding the same pair is a no-op; a conflict with
// an existing binding on either side is an error.
func (idx *SubscriptionIndex) BindSymbol(name string, id uint32) error {
	if name == "" || id == 0 {
		return exception.ErrInvalidArgument
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if existing, ok := idx.idsByName[name]; ok {
		if existing != id {
			return exception.ErrInvalidArgument
		}
		return nil
	}
	if _, taken := idx.namesByID[id]; taken {
		return exception.ErrInvalidArgument
	}
	idx.idsByName[name] = id
	idx.namesByID[id] = name
	if id > idx.nextID {
		idx.nextID = id
	}
	return nil
}

// LookupSymbol resolves a symbol name to its ID.
func (idx *SubscriptionIndex) LookupSymbol(name string) (uint32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.idsByName[name]
	return id, ok
}

// SymbolName resolves an ID back to its symbol name.
func (idx *SubscriptionIndex) SymbolName(id uint32) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	name, ok := idx.namesByID[id]
	return name, ok
}

// Symbols returns all registered symbol names, sorted.
func (idx *SubscriptionIndex) Symbols() []string {
	idx.mu.RLock()
	names := make([]string, 0, len(idx.idsByName))
	for name := range idx.idsByName {
		names = append(names, name)
	}
	idx.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Subscribe adds a session to a symbol's subscriber set. Idempotent. The
// symbol must already be registered.
func (idx *SubscriptionIndex) Subscribe(sessionID SessionID, symbolID uint32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.namesByID[symbolID]; !ok {
		return exception.ErrUnknownSymbol
	}
	set := idx.subscribers[symbolID]
	if set == nil {
		set = make(map[SessionID]struct{})
		idx.subscribers[symbolID] = set
	}
	set[sessionID] = struct{}{}
	return nil
}

// Unsubscribe removes a session from a symbol's subscriber set. No-op when
// absent.
func (idx *SubscriptionIndex) Unsubscribe(sessionID SessionID, symbolID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set := idx.subscribers[symbolID]
	if set == nil {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(idx.subscribers, symbolID)
	}
}

// PurgeSession removes every entry referencing the session in one atomic
// step. Called exactly once when a session terminates, so no orphaned
// subscriber reference survives a disconnect.
func (idx *SubscriptionIndex) PurgeSession(sessionID SessionID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for symbolID, set := range idx.subscribers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(idx.subscribers, symbolID)
		}
	}
}

// SubscribersOf returns a copy of the subscriber set for a symbol, so the
// caller can fan out without holding the index lock.
func (idx *SubscriptionIndex) SubscribersOf(symbolID uint32) []SessionID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.subscribers[symbolID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]SessionID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// SubscriberCount returns the number of sessions subscribed to a symbol.
func (idx *SubscriptionIndex) SubscriberCount(symbolID uint32) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.subscribers[symbolID])
}
