// Package reconciler keeps every club resource in the always-available local
// cache and mirrors it to the optional remote store.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chamber/internal/adapters/realtime"
	"chamber/internal/adapters/remote"
	"chamber/internal/adapters/storage/cache"
	outboxStore "chamber/internal/adapters/storage/outbox"
	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	domain "chamber/internal/domain/outbox"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/session"
	"chamber/internal/domain/sheetmusic"
)

// Resource names, shared with outbox entries.
const (
	ResourceAttendance    = domain.ResourceAttendance
	ResourceMembers       = domain.ResourceMembers
	ResourceSheetMusic    = domain.ResourceSheetMusic
	ResourcePracticeSongs = domain.ResourcePracticeSongs
	ResourceSessionSongs  = domain.ResourceSessionSongs
)

// Resources lists every synchronized resource in pull order. Members come
// first so attendance rows resolve against a fresh id map.
var Resources = []string{
	ResourceMembers,
	ResourceAttendance,
	ResourceSheetMusic,
	ResourcePracticeSongs,
	ResourceSessionSongs,
}

// RemoteOutcome reports what happened to the remote half of a write.
type RemoteOutcome string

const (
	// RemoteSynced means the remote store has the write.
	RemoteSynced RemoteOutcome = "synced"
	// RemoteLocalOnly means no remote store is configured.
	RemoteLocalOnly RemoteOutcome = "local_only"
	// RemoteQueued means the write waits in the outbox.
	RemoteQueued RemoteOutcome = "queued"
)

// WriteResult is returned by every local write.
type WriteResult struct {
	Remote RemoteOutcome `json:"remote"`
}

// Publisher delivers change notifications to connected clients.
type Publisher interface {
	Publish(channel string, msg realtime.Message) int
}

// Config holds timing and calendar settings.
type Config struct {
	Calendar               session.Calendar
	InitialPullDelay       time.Duration
	AttendancePollInterval time.Duration
	PollInterval           time.Duration
	ProbeInterval          time.Duration
	RetryInterval          time.Duration
	Now                    func() time.Time
}

func (c *Config) defaults() {
	if c.InitialPullDelay <= 0 {
		c.InitialPullDelay = 2 * time.Second
	}
	if c.AttendancePollInterval <= 0 {
		c.AttendancePollInterval = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 15 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Deps are the collaborators of a Service. Remote, Blobs and Publisher may be nil.
type Deps struct {
	Cache     cache.Store
	Outbox    outboxStore.Store
	Remote    remote.Client
	Blobs     remote.BlobStore
	Publisher Publisher
}

// Service owns all synchronized state of the process.
type Service struct {
	cfg    Config
	cache  cache.Store
	outbox outboxStore.Store
	remote remote.Client
	blobs  remote.BlobStore
	pub    Publisher

	ids       *IDMap
	processor *OutboxProcessor
	online    atomic.Bool

	// flushMu serializes outbox replay so no entry runs twice concurrently.
	flushMu sync.Mutex

	bootstrapMu  sync.Mutex
	bootstrapped bool

	attendance  *Resource[attendance.Sheet]
	members     *Resource[member.Roster]
	sheets      *Resource[sheetmusic.Catalog]
	songs       *Resource[practicesong.Songs]
	assignments *Resource[practicesong.Assignments]

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds the service and loads every resource from the local cache.
// PRE: deps.Cache and deps.Outbox are non-nil; cfg.Calendar is valid
// POST: all resources hold their persisted values; the service is online
// iff a remote client is configured
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Cache == nil || deps.Outbox == nil {
		return nil, errors.New("reconciler: cache and outbox stores are required")
	}
	if err := cfg.Calendar.Validate(); err != nil {
		return nil, fmt.Errorf("reconciler: calendar: %w", err)
	}
	cfg.defaults()

	s := &Service{
		cfg:    cfg,
		cache:  deps.Cache,
		outbox: deps.Outbox,
		remote: deps.Remote,
		blobs:  deps.Blobs,
		pub:    deps.Publisher,
		ids:    NewIDMap(),
		stopCh: make(chan struct{}),

		attendance: newResource(ResourceAttendance, cache.KeyAttendance,
			func() attendance.Sheet { return attendance.Sheet{} },
			attendance.Sheet.Clone, attendance.Sheet.Equal, overlayAttendance),
		members: newResource(ResourceMembers, cache.KeyMembers,
			func() member.Roster { return member.Roster{} },
			member.Roster.Clone, member.Roster.Equal, overlayRoster),
		sheets: newResource(ResourceSheetMusic, cache.KeySheetMusic,
			func() sheetmusic.Catalog { return sheetmusic.Catalog{} },
			sheetmusic.Catalog.Clone, sheetmusic.Catalog.Equal, overlayCatalog),
		songs: newResource(ResourcePracticeSongs, cache.KeyPracticeSongs,
			func() practicesong.Songs { return practicesong.Songs{} },
			practicesong.Songs.Clone, practicesong.Songs.Equal, overlaySongs),
		assignments: newResource(ResourceSessionSongs, cache.KeySessionSongs,
			func() practicesong.Assignments { return practicesong.Assignments{} },
			practicesong.Assignments.Clone, practicesong.Assignments.Equal, overlayAssignments),
	}
	s.processor = NewOutboxProcessor(deps.Outbox, s.executors())
	s.processor.now = cfg.Now

	ctx := context.Background()
	loaders := []func(context.Context, cache.Store) error{
		s.attendance.load, s.members.load, s.sheets.load, s.songs.load, s.assignments.load,
	}
	for _, load := range loaders {
		if err := load(ctx, s.cache); err != nil {
			return nil, err
		}
	}

	if s.remote != nil {
		s.online.Store(true)
		s.eachStatus(func(set func(state, msg string)) { set(StateIdle, "") })
	} else {
		s.eachStatus(func(set func(state, msg string)) { set(StateDisconnected, "remote not configured") })
	}

	slog.Info("reconciler_loaded",
		"members", len(s.members.Get()),
		"sheet_music", len(s.sheets.Get()),
		"practice_songs", len(s.songs.Get()),
		"remote", s.remote != nil,
	)
	return s, nil
}

// Calendar returns the term calendar.
func (s *Service) Calendar() session.Calendar {
	return s.cfg.Calendar
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.cfg.Now()
}

// RemoteConfigured reports whether a remote store is wired.
func (s *Service) RemoteConfigured() bool {
	return s.remote != nil
}

// Online reports whether remote pushes and pulls are attempted.
func (s *Service) Online() bool {
	return s.remote != nil && s.online.Load()
}

// Start launches the background pull, probe and retry loops. Without a
// remote store it does nothing.
// POST: loops run until Stop is called or ctx is done
func (s *Service) Start(ctx context.Context) {
	if s.remote == nil {
		slog.Info("sync_disabled", "reason", "remote not configured")
		return
	}

	s.goLoop(func() {
		select {
		case <-time.After(s.cfg.InitialPullDelay):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
		s.probe(ctx)
		if s.Online() {
			if err := s.PullAll(ctx); err != nil {
				slog.Warn("sync_initial_pull_failed", "error", err)
			}
		}
	})
	s.goLoop(func() {
		runEvery(ctx, s.cfg.AttendancePollInterval, s.stopCh, func(ctx context.Context) {
			s.pollResources(ctx, ResourceAttendance)
		})
	})
	s.goLoop(func() {
		runEvery(ctx, s.cfg.PollInterval, s.stopCh, func(ctx context.Context) {
			s.pollResources(ctx, ResourceMembers, ResourceSheetMusic, ResourcePracticeSongs, ResourceSessionSongs)
		})
	})
	s.goLoop(func() {
		runEvery(ctx, s.cfg.ProbeInterval, s.stopCh, s.probe)
	})
	s.goLoop(func() {
		runEvery(ctx, s.cfg.RetryInterval, s.stopCh, func(ctx context.Context) {
			if !s.Online() {
				return
			}
			if _, err := s.flush(ctx, "", false); err != nil {
				slog.Error("outbox_background_process_failed", "error", err.Error())
			}
		})
	})
	slog.Info("sync_started",
		"initial_delay", s.cfg.InitialPullDelay.String(),
		"attendance_interval", s.cfg.AttendancePollInterval.String(),
		"poll_interval", s.cfg.PollInterval.String(),
	)
}

// Stop halts the background loops and waits for them to return. Remote
// calls already in flight complete first.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("sync_stopped")
}

func (s *Service) goLoop(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Service) pollResources(ctx context.Context, names ...string) {
	if !s.Online() {
		return
	}
	for _, name := range names {
		if err := s.Pull(ctx, name); err != nil {
			slog.Warn("sync_pull_failed", "resource", name, "error", err)
		}
	}
}

// probe pings the remote store and updates connectivity.
func (s *Service) probe(ctx context.Context) {
	err := s.remote.Ping(ctx)
	if err != nil && s.Online() {
		slog.Warn("remote_unreachable", "error", err)
	}
	if err := s.SetOnline(ctx, err == nil); err != nil {
		slog.Warn("sync_reconnect_failed", "error", err)
	}
}

// SetOnline records connectivity. An offline to online transition flushes
// the outbox and pulls every resource.
// POST: returns the pull error of the transition, nil otherwise
func (s *Service) SetOnline(ctx context.Context, online bool) error {
	if s.remote == nil {
		return ErrRemoteUnavailable
	}
	was := s.online.Swap(online)
	if !online {
		if was {
			slog.Info("sync_offline")
		}
		s.eachStatus(func(set func(state, msg string)) { set(StateDisconnected, "offline") })
		return nil
	}
	if was {
		return nil
	}

	slog.Info("sync_online")
	s.eachStatus(func(set func(state, msg string)) { set(StateIdle, "") })
	if _, err := s.flush(ctx, "", true); err != nil {
		return err
	}
	return s.PullAll(ctx)
}

// SyncNow is the manual save-and-sync action: replay the whole outbox
// ignoring backoff, then pull every resource.
func (s *Service) SyncNow(ctx context.Context) (ProcessStats, error) {
	if !s.Online() {
		return ProcessStats{}, ErrRemoteUnavailable
	}
	stats, err := s.flush(ctx, "", true)
	if err != nil {
		return stats, err
	}
	return stats, s.PullAll(ctx)
}

// PullAll pulls every resource. Members are pulled first; the rest run concurrently.
func (s *Service) PullAll(ctx context.Context) error {
	if !s.Online() {
		return ErrRemoteUnavailable
	}
	if err := s.Pull(ctx, ResourceMembers); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range Resources[1:] {
		g.Go(func() error {
			return s.Pull(ctx, name)
		})
	}
	return g.Wait()
}

// Pull replays the queued pushes of one resource, fetches its remote
// snapshot and reconciles it with the local value. Pulling twice in a row
// with no remote change leaves local state untouched.
// PRE: name is one of Resources
// POST: on success the resource status is idle with a fresh LastSync
func (s *Service) Pull(ctx context.Context, name string) error {
	if !s.Online() {
		return ErrRemoteUnavailable
	}
	setState, finish, err := s.statusHooks(name)
	if err != nil {
		return err
	}

	setState(StateSyncing, "")
	var changed bool
	if _, err = s.flush(ctx, name, false); err == nil {
		changed, err = s.pull(ctx, name)
	}
	finish(s.cfg.Now(), err)
	if err != nil {
		return err
	}

	if changed {
		slog.Info("sync_pull_applied", "resource", name)
		s.notifyUpdated(name)
	}
	return nil
}

func (s *Service) pull(ctx context.Context, name string) (bool, error) {
	switch name {
	case ResourceMembers:
		return s.pullMembers(ctx)
	case ResourceAttendance:
		return s.pullAttendance(ctx)
	case ResourceSheetMusic:
		return s.pullSheetMusic(ctx)
	case ResourcePracticeSongs:
		return s.pullPracticeSongs(ctx)
	case ResourceSessionSongs:
		return s.pullSessionSongs(ctx)
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownResource, name)
}

// pendingFor collects the keys of unpushed entries of the given resources.
func (s *Service) pendingFor(ctx context.Context, names ...string) func() (pendingKeys, error) {
	return func() (pendingKeys, error) {
		out := make(pendingKeys, len(names))
		for _, name := range names {
			keys, err := s.outbox.PendingKeys(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("pending keys %s: %w", name, err)
			}
			if len(keys) > 0 {
				out[name] = keys
			}
		}
		return out, nil
	}
}

// flush replays queued entries of resource ("" for all).
func (s *Service) flush(ctx context.Context, resource string, force bool) (ProcessStats, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	stats, err := s.processor.ProcessPending(ctx, resource, force)
	if stats.Succeeded > 0 || stats.Failed > 0 {
		slog.Info("outbox_flushed",
			"resource", resource,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
		)
	}
	return stats, err
}

// SyncStatuses returns the indicator of every resource.
func (s *Service) SyncStatuses() []SyncStatus {
	return []SyncStatus{
		s.members.Status(),
		s.attendance.Status(),
		s.sheets.Status(),
		s.songs.Status(),
		s.assignments.Status(),
	}
}

func (s *Service) statusHooks(name string) (func(string, string), func(time.Time, error), error) {
	switch name {
	case ResourceMembers:
		return s.members.setState, s.members.finishSync, nil
	case ResourceAttendance:
		return s.attendance.setState, s.attendance.finishSync, nil
	case ResourceSheetMusic:
		return s.sheets.setState, s.sheets.finishSync, nil
	case ResourcePracticeSongs:
		return s.songs.setState, s.songs.finishSync, nil
	case ResourceSessionSongs:
		return s.assignments.setState, s.assignments.finishSync, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
}

func (s *Service) eachStatus(fn func(set func(state, msg string))) {
	fn(s.members.setState)
	fn(s.attendance.setState)
	fn(s.sheets.setState)
	fn(s.songs.setState)
	fn(s.assignments.setState)
}

func (s *Service) notifyUpdated(resource string) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(realtime.ChannelSync, realtime.Message{
		Type:      realtime.TypeDataUpdated,
		Resource:  resource,
		Timestamp: s.cfg.Now().UTC(),
	})
}

// stamp returns the current time at the precision the remote store keeps.
func (s *Service) stamp() time.Time {
	return s.cfg.Now().UTC().Truncate(time.Microsecond)
}

// action is a remote mutation queued by a local write. Key names the
// record it touches; actions with the same resource and key replay in order.
type action struct {
	Resource string
	Key      string
	Type     string
	Payload  any
}

// enqueue records the actions in the outbox. Without a remote store nothing
// is queued. Either every action is queued or none is.
func (s *Service) enqueue(ctx context.Context, actions []action) error {
	if s.remote == nil {
		return nil
	}
	entries := make([]domain.Entry, 0, len(actions))
	for _, a := range actions {
		raw, err := json.Marshal(a.Payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", a.Type, err)
		}
		entry := domain.Entry{
			ID:          uuid.NewString(),
			Resource:    a.Resource,
			Key:         a.Key,
			ActionType:  a.Type,
			Payload:     string(raw),
			Status:      domain.StatusPending,
			MaxAttempts: domain.DefaultMaxAttempts,
			CreatedAt:   s.cfg.Now().UTC(),
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	for i, entry := range entries {
		if err := s.outbox.Save(ctx, entry); err != nil {
			for _, saved := range entries[:i] {
				if delErr := s.outbox.Delete(ctx, saved.ID); delErr != nil {
					slog.Error("outbox_unqueue_failed", "entry_id", saved.ID, "error", delErr)
				}
			}
			return fmt.Errorf("%w: enqueue %s: %v", ErrLocalPersistence, entry.ActionType, err)
		}
	}
	return nil
}

// write runs fn against r, queues the resulting remote actions under the
// same lock and then pushes them if online.
func write[T any](ctx context.Context, s *Service, r *Resource[T], fn func(T) (T, []action, error)) (T, WriteResult, error) {
	var actions []action
	next, err := r.mutate(ctx, s.cache, func(v T) (T, error) {
		out, acts, err := fn(v)
		actions = acts
		return out, err
	}, func() error {
		return s.enqueue(ctx, actions)
	})
	if err != nil {
		if errors.Is(err, ErrLocalPersistence) && len(actions) > 0 {
			slog.Error("outbox_enqueue_failed", "resource", r.name, "error", err)
		}
		return next, WriteResult{}, err
	}
	if r.name != ResourceAttendance {
		s.notifyUpdated(r.name)
	}
	return next, s.pushNow(ctx, r.name, actions), nil
}

// pushNow replays the resource's queue immediately when online. The write
// counts as synced once none of its own records is still queued.
func (s *Service) pushNow(ctx context.Context, resource string, actions []action) WriteResult {
	if s.remote == nil {
		return WriteResult{Remote: RemoteLocalOnly}
	}
	if !s.Online() {
		return WriteResult{Remote: RemoteQueued}
	}
	if _, err := s.flush(ctx, resource, true); err != nil {
		slog.Error("outbox_flush_failed", "resource", resource, "error", err)
		return WriteResult{Remote: RemoteQueued}
	}

	keys, err := s.outbox.PendingKeys(ctx, resource)
	if err != nil {
		return WriteResult{Remote: RemoteQueued}
	}
	queued := make(map[string]bool, len(keys))
	for _, k := range keys {
		queued[k] = true
	}
	for _, a := range actions {
		if queued[a.Key] || queued[""] {
			return WriteResult{Remote: RemoteQueued}
		}
	}
	return WriteResult{Remote: RemoteSynced}
}

// FailedPushes lists permanently failed outbox entries.
func (s *Service) FailedPushes(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.outbox.ListFailed(ctx, limit)
}

// RetryPush retries one outbox entry now.
func (s *Service) RetryPush(ctx context.Context, id string) error {
	if !s.Online() {
		return ErrRemoteUnavailable
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.processor.ProcessSingle(ctx, id)
}

// AbandonPush gives up on one outbox entry.
func (s *Service) AbandonPush(ctx context.Context, id string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.processor.AbandonEntry(ctx, id)
}
