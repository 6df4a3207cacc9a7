package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chamber/internal/adapters/storage/cache"
)

// Sync states of a resource.
const (
	StateDisconnected = "disconnected"
	StateIdle         = "idle"
	StateSyncing      = "syncing"
)

// SyncStatus is the indicator shown for one resource.
type SyncStatus struct {
	Resource  string    `json:"resource"`
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	LastSync  time.Time `json:"lastSync,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

// Resource is one synchronized value: held in memory, persisted under a
// cache key and mirrored to the remote store.
// INVARIANT: value always equals the last successfully persisted blob.
type Resource[T any] struct {
	name  string
	key   string
	empty func() T
	clone func(T) T
	equal func(a, b T) bool
	// overlay copies the local state of records with queued pushes onto a
	// remote snapshot. It must not modify local.
	overlay func(local, snapshot T, pending pendingKeys) T

	mu    sync.Mutex
	value T
	gen   uint64 // bumped on every local mutation

	statusMu sync.Mutex
	status   SyncStatus
}

func newResource[T any](name, key string, empty func() T, clone func(T) T, equal func(a, b T) bool,
	overlay func(local, snapshot T, pending pendingKeys) T) *Resource[T] {
	return &Resource[T]{
		name:    name,
		key:     key,
		empty:   empty,
		clone:   clone,
		equal:   equal,
		overlay: overlay,
		value:   empty(),
		status:  SyncStatus{Resource: name, State: StateDisconnected},
	}
}

// Name returns the resource name.
func (r *Resource[T]) Name() string {
	return r.name
}

// Get returns a copy of the current value.
func (r *Resource[T]) Get() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clone(r.value)
}

func (r *Resource[T]) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// load reads the persisted value. A missing key leaves the empty value; an
// undecodable blob is logged and replaced by the empty value.
func (r *Resource[T]) load(ctx context.Context, store cache.Store) error {
	raw, err := store.Load(ctx, r.key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrLocalPersistence, r.name, err)
	}

	v := r.empty()
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("local_cache_corrupt", "resource", r.name, "key", r.key, "error", err)
		v = r.empty()
	}

	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
	return nil
}

func (r *Resource[T]) persist(ctx context.Context, store cache.Store, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrLocalPersistence, r.name, err)
	}
	if err := store.Save(ctx, r.key, raw); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrLocalPersistence, r.name, err)
	}
	return nil
}

// mutate applies fn to a copy of the value, persists the result and then
// runs after while still holding the lock. When after fails the previous
// value is persisted again.
// PRE: fn does not retain its argument after returning
// POST: on success the value is replaced and the generation bumped; on any
// error the value is unchanged unless restoring it fails too
func (r *Resource[T]) mutate(ctx context.Context, store cache.Store, fn func(T) (T, error), after func() error) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	next, err := fn(r.clone(r.value))
	if err != nil {
		return zero, err
	}
	if err := r.persist(ctx, store, next); err != nil {
		return zero, err
	}

	if after != nil {
		if err := after(); err != nil {
			if rbErr := r.persist(ctx, store, r.value); rbErr != nil {
				// The stored blob now holds next; keep memory in step with it.
				slog.Error("local_rollback_failed", "resource", r.name, "error", rbErr)
				r.value = next
				r.gen++
			}
			return zero, err
		}
	}
	r.value = next
	r.gen++
	return r.clone(next), nil
}

// adopt runs the reconcile step against a remote snapshot taken when the
// generation was gen. pending is evaluated under the lock; records it names
// keep their local state.
// POST: returns true when the local value was replaced
func (r *Resource[T]) adopt(ctx context.Context, store cache.Store, snapshot T, gen uint64, pending func() (pendingKeys, error)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := pending()
	if err != nil {
		return false, err
	}
	n, unkeyed := keys.total()
	if n > 0 && !unkeyed {
		snapshot = r.overlay(r.value, snapshot, keys)
	}
	switch reconcile(r.value, snapshot, r.equal, unkeyed, r.gen != gen) {
	case decisionDefer:
		slog.Info("sync_pull_deferred", "resource", r.name, "pending", n)
		return false, nil
	case decisionKeep:
		return false, nil
	}

	if err := r.persist(ctx, store, snapshot); err != nil {
		return false, err
	}
	r.value = snapshot
	return true, nil
}

// Status returns the sync indicator.
func (r *Resource[T]) Status() SyncStatus {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return r.status
}

func (r *Resource[T]) setState(state, message string) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.status.State = state
	r.status.Message = message
}

// finishSync records the outcome of a pull.
func (r *Resource[T]) finishSync(at time.Time, err error) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	if err != nil {
		r.status.State = StateDisconnected
		r.status.Message = "sync failed"
		r.status.LastError = err.Error()
		return
	}
	r.status.State = StateIdle
	r.status.Message = ""
	r.status.LastError = ""
	r.status.LastSync = at
}
