package reconciler

import (
	"sync"

	"chamber/internal/adapters/remote"
)

// IDMap translates between member numbers and remote surrogate ids.
// Lookups that miss are reported, never defaulted.
type IDMap struct {
	mu   sync.RWMutex
	byNo map[int]int64
	byID map[int64]int
}

// NewIDMap returns an empty map.
func NewIDMap() *IDMap {
	return &IDMap{byNo: make(map[int]int64), byID: make(map[int64]int)}
}

// Put records the pairing no <-> id, replacing any earlier pairing of either side.
func (m *IDMap) Put(no int, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(no, id)
}

func (m *IDMap) put(no int, id int64) {
	if old, ok := m.byNo[no]; ok {
		delete(m.byID, old)
	}
	if old, ok := m.byID[id]; ok {
		delete(m.byNo, old)
	}
	m.byNo[no] = id
	m.byID[id] = no
}

// Resolve returns the remote id of member no.
func (m *IDMap) Resolve(no int) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byNo[no]
	return id, ok
}

// ReverseResolve returns the member number behind remote id.
func (m *IDMap) ReverseResolve(id int64) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	no, ok := m.byID[id]
	return no, ok
}

// Forget drops member no.
func (m *IDMap) Forget(no int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byNo[no]; ok {
		delete(m.byID, id)
		delete(m.byNo, no)
	}
}

// Replace rebuilds the map from a full remote member listing.
func (m *IDMap) Replace(rows []remote.MemberRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byNo = make(map[int]int64, len(rows))
	m.byID = make(map[int64]int, len(rows))
	for _, r := range rows {
		m.put(r.No, r.ID)
	}
}

// Len returns the number of pairings.
func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byNo)
}
