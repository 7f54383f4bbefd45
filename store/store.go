// Package store implements the cache-and-fetch primitive behind every content
// collection: one read per mount, sample data on read failure, and mutations
// that keep the local view consistent with the data service.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"finedu/content"
	"finedu/errs"
	"finedu/logger"
	"finedu/notify"
)

// Backend is the data service for one resource kind.
type Backend[T content.Resource, I any] interface {
	List(ctx context.Context, f content.Filter) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, in I) (T, error)
	Update(ctx context.Context, id string, patch content.Patch) (T, error)
	Delete(ctx context.Context, id string) error
}

// ViewCounter is implemented by backends that track view counts.
type ViewCounter interface {
	IncrementViews(ctx context.Context, id string) error
}

// State of a store's read cycle.
type State int

const (
	Idle State = iota
	Fetching
	Ready
	Degraded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a copy of the store's cache at one instant.
type Snapshot[T any] struct {
	Items      []T    `json:"items"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error,omitempty"`
	Attempted  bool   `json:"attempted"`
	State      State  `json:"state"`
	Generation uint64 `json:"-"`
}

// Degraded reports whether Items is sample data.
func (s Snapshot[T]) Degraded() bool { return s.State == Degraded }

type Option[T content.Resource] func(*options[T])

type options[T content.Resource] struct {
	fallback []T
	filter   content.Filter
	notify   notify.Func
	log      *zap.Logger
}

// WithFallback sets the sample records used when a read fails.
func WithFallback[T content.Resource](items []T) Option[T] {
	return func(o *options[T]) { o.fallback = items }
}

// WithFilter fixes the filter passed to the backend on every read.
func WithFilter[T content.Resource](f content.Filter) Option[T] {
	return func(o *options[T]) { o.filter = f }
}

// WithNotify installs the callback used to surface terminal outcomes.
func WithNotify[T content.Resource](fn notify.Func) Option[T] {
	return func(o *options[T]) { o.notify = fn }
}

func WithLogger[T content.Resource](l *zap.Logger) Option[T] {
	return func(o *options[T]) { o.log = l }
}

// Store caches one filtered view of a resource collection.
//
// Reads move the store Idle -> Fetching -> Ready|Degraded. Every read gets a
// generation number and only the newest generation may write the cache.
type Store[T content.Resource, I any] struct {
	name     string
	backend  Backend[T, I]
	fallback []T
	filter   content.Filter
	notify   notify.Func
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	items     []T
	errMsg    string
	attempted bool
	gen       uint64
	cur       *fetch[T]
	closed    bool
	reads     int
}

// fetch is one read cycle. result is set before done is closed.
type fetch[T any] struct {
	gen    uint64
	done   chan struct{}
	result Snapshot[T]
}

// New creates an Idle store. Nothing is fetched until Load.
func New[T content.Resource, I any](name string, backend Backend[T, I], opts ...Option[T]) *Store[T, I] {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T, I]{
		name:     name,
		backend:  backend,
		fallback: o.fallback,
		filter:   o.filter,
		notify:   o.notify,
		log:      logger.OrNop(o.log).With(zap.String("store", name), zap.String("filter", o.filter.Key())),
	}
}

func (s *Store[T, I]) Name() string           { return s.name }
func (s *Store[T, I]) Filter() content.Filter { return s.filter }

// Load returns the cache, issuing a read only if none was attempted yet.
// It waits for an outstanding read to finish or for ctx to end.
func (s *Store[T, I]) Load(ctx context.Context) Snapshot[T] {
	s.mu.Lock()
	if s.state == Idle && !s.closed {
		s.startLocked(ctx)
	}
	s.mu.Unlock()
	return s.wait(ctx)
}

// Refetch clears the attempted flag and issues exactly one new read.
// A read still in flight is superseded and its response dropped.
func (s *Store[T, I]) Refetch(ctx context.Context) Snapshot[T] {
	s.mu.Lock()
	if !s.closed {
		s.attempted = false
		s.startLocked(ctx)
	}
	s.mu.Unlock()
	return s.wait(ctx)
}

// Snapshot returns the cache without triggering a read.
func (s *Store[T, I]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Reads counts the backend reads issued so far.
func (s *Store[T, I]) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close unmounts the store. Responses arriving afterwards never reach the
// cache, though a Load already waiting still receives them.
func (s *Store[T, I]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Store[T, I]) startLocked(ctx context.Context) {
	s.gen++
	s.reads++
	s.state = Fetching
	f := &fetch[T]{gen: s.gen, done: make(chan struct{})}
	s.cur = f
	// The read outlives the caller; a late result is checked against gen and closed.
	go s.read(context.WithoutCancel(ctx), f)
}

func (s *Store[T, I]) read(ctx context.Context, f *fetch[T]) {
	defer close(f.done)

	items, err := s.backend.List(ctx, s.filter)

	res := Snapshot[T]{Attempted: true, Generation: f.gen}
	if err != nil {
		res.Items = content.Apply(s.filter, s.fallback)
		res.Error = readFailureMessage(s.name, err)
		res.State = Degraded
	} else {
		if items == nil {
			items = []T{}
		}
		res.Items = items
		res.State = Ready
	}

	s.mu.Lock()
	f.result = res
	if s.closed || f.gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("discarding stale read", zap.Uint64("generation", f.gen), zap.Error(err))
		return
	}
	s.items = res.Items
	s.errMsg = res.Error
	s.state = res.State
	s.attempted = true
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("read failed, using fallback data", zap.Error(err), zap.Int("items", len(res.Items)))
		notify.Send(s.notify, notify.Event{Level: notify.Info, Title: "Showing sample " + s.name, Message: res.Error, Source: s.name})
		return
	}
	s.log.Debug("read complete", zap.Int("items", len(items)))
}

// wait blocks until the current read settles. A waiter on a store closed
// mid-read gets that read's result even though the cache never sees it.
func (s *Store[T, I]) wait(ctx context.Context) Snapshot[T] {
	for {
		s.mu.Lock()
		if s.state != Fetching {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap
		}
		f := s.cur
		s.mu.Unlock()

		select {
		case <-f.done:
		case <-ctx.Done():
			return s.Snapshot()
		}

		s.mu.Lock()
		orphaned := s.closed && s.cur == f && s.state == Fetching
		s.mu.Unlock()
		if orphaned {
			return f.result.clone()
		}
	}
}

func (s Snapshot[T]) clone() Snapshot[T] {
	items := make([]T, len(s.Items))
	copy(items, s.Items)
	s.Items = items
	return s
}

func (s *Store[T, I]) snapshotLocked() Snapshot[T] {
	items := make([]T, len(s.items))
	copy(items, s.items)
	return Snapshot[T]{
		Items:      items,
		Loading:    s.state == Fetching,
		Error:      s.errMsg,
		Attempted:  s.attempted,
		State:      s.state,
		Generation: s.gen,
	}
}

// Get reads one record. When the data service is unreachable the record is
// looked up in the cache and then in the sample data.
func (s *Store[T, I]) Get(ctx context.Context, id string) (T, error) {
	item, err := s.backend.Get(ctx, id)
	if err == nil || errs.IsNotFound(err) {
		return item, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range [][]T{s.items, s.fallback} {
		for _, it := range set {
			if it.ResourceID() == id {
				s.log.Warn("get failed, served from local data", zap.String("id", id), zap.Error(err))
				return it, nil
			}
		}
	}
	return item, err
}

// Create forwards in to the backend and prepends the result. Failures are returned.
func (s *Store[T, I]) Create(ctx context.Context, in I) (T, error) {
	item, err := s.backend.Create(ctx, in)
	if err != nil {
		var zero T
		return zero, s.mutationFailed("create", err)
	}
	s.mu.Lock()
	s.items = append([]T{item}, s.items...)
	s.supersedeLocked(ctx)
	s.mu.Unlock()
	s.mutationSucceeded("Created", item.ResourceID())
	return item, nil
}

// Update forwards patch and replaces the matching cached item.
func (s *Store[T, I]) Update(ctx context.Context, id string, patch content.Patch) (T, error) {
	item, err := s.backend.Update(ctx, id, patch)
	if err != nil {
		var zero T
		return zero, s.mutationFailed("update", err)
	}
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ResourceID() == id {
			s.items[i] = item
			break
		}
	}
	s.supersedeLocked(ctx)
	s.mu.Unlock()
	s.mutationSucceeded("Updated", id)
	return item, nil
}

// Delete forwards id and removes the matching cached item.
func (s *Store[T, I]) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return s.mutationFailed("delete", err)
	}
	s.mu.Lock()
	kept := s.items[:0:0]
	for _, it := range s.items {
		if it.ResourceID() != id {
			kept = append(kept, it)
		}
	}
	s.items = kept
	s.supersedeLocked(ctx)
	s.mu.Unlock()
	s.mutationSucceeded("Deleted", id)
	return nil
}

// IncrementViews bumps the view counter when the backend supports it.
func (s *Store[T, I]) IncrementViews(ctx context.Context, id string) error {
	vc, ok := s.backend.(ViewCounter)
	if !ok {
		return errs.Errorf(errs.Validation, "views", s.name, "view counter not supported")
	}
	return vc.IncrementViews(ctx, id)
}

// supersedeLocked restarts a read that was issued before the mutation
// reached the backend, so its response cannot overwrite the mutated cache.
func (s *Store[T, I]) supersedeLocked(ctx context.Context) {
	if s.state != Fetching || s.closed {
		return
	}
	s.log.Debug("mutation during read, reissuing", zap.Uint64("generation", s.gen))
	s.startLocked(ctx)
}

func (s *Store[T, I]) mutationFailed(op string, err error) error {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
	s.log.Warn("mutation failed", zap.String("op", op), zap.Error(err))
	notify.Send(s.notify, notify.Event{
		Level:   notify.Error,
		Title:   fmt.Sprintf("Could not %s %s", op, s.name),
		Message: err.Error(),
		Source:  s.name,
	})
	return err
}

func (s *Store[T, I]) mutationSucceeded(verb, id string) {
	s.log.Info("mutation applied", zap.String("verb", verb), zap.String("id", id))
	notify.Send(s.notify, notify.Event{
		Level:   notify.Success,
		Title:   fmt.Sprintf("%s %s", verb, s.name),
		Message: id,
		Source:  s.name,
	})
}

func readFailureMessage(name string, err error) string {
	if errors.Is(err, errs.ErrNotConfigured) {
		return fmt.Sprintf("data service not configured; showing sample %s", name)
	}
	return fmt.Sprintf("could not load %s (%v); showing sample data", name, err)
}
