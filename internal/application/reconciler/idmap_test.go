package reconciler

import (
	"testing"

	"chamber/internal/adapters/remote"
)

func TestIDMap_Bidirectional(t *testing.T) {
	m := NewIDMap()
	if _, ok := m.Resolve(1); ok {
		t.Fatal("empty map resolved")
	}

	m.Put(1, 101)
	m.Put(2, 102)
	if id, ok := m.Resolve(1); !ok || id != 101 {
		t.Errorf("Resolve(1) = %d, %v", id, ok)
	}
	if no, ok := m.ReverseResolve(102); !ok || no != 2 {
		t.Errorf("ReverseResolve(102) = %d, %v", no, ok)
	}

	// Re-pairing drops the stale reverse entry.
	m.Put(1, 201)
	if _, ok := m.ReverseResolve(101); ok {
		t.Error("stale id 101 still resolves")
	}

	m.Forget(2)
	if _, ok := m.ReverseResolve(102); ok {
		t.Error("forgotten id still resolves")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestIDMap_Replace(t *testing.T) {
	m := NewIDMap()
	m.Put(9, 900)
	m.Replace([]remote.MemberRow{{ID: 11, No: 1}, {ID: 12, No: 2}})

	if _, ok := m.Resolve(9); ok {
		t.Error("Replace kept an old pairing")
	}
	if no, ok := m.ReverseResolve(12); !ok || no != 2 {
		t.Errorf("ReverseResolve(12) = %d, %v", no, ok)
	}
}
