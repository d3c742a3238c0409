// Package thread runs kernel threads as goroutines and carries the user
// execution context saved at a trap.
package thread

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"os161/pkg/kern/errno"
)

// Thread is one kernel thread of execution.
type Thread struct {
	// ID is unique among threads forked by the same scheduler.
	ID int
	// Name is the thread name, usually the owning process name.
	Name string

	ctx   context.Context
	done  chan struct{}
	mu    sync.Mutex
	owner any
}

// Context returns the context the thread was forked with.
func (t *Thread) Context() context.Context {
	return t.ctx
}

// Done is closed once the thread has exited.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// SetOwner attaches the thread to the process that runs it. A nil owner
// detaches it.
func (t *Thread) SetOwner(owner any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owner = owner
}

// Owner returns the value given to SetOwner.
func (t *Thread) Owner() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner
}

// Exit terminates the calling thread. It must be called from the thread
// itself and does not return.
func (t *Thread) Exit() {
	runtime.Goexit()
}

// Scheduler starts new threads.
type Scheduler interface {
	// Fork starts entry on a new thread.
	Fork(ctx context.Context, name string, entry func(t *Thread)) (*Thread, error)
}

// GoScheduler runs each thread on its own goroutine.
type GoScheduler struct {
	mu     sync.Mutex
	max    int
	live   int
	nextID int
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler creates a scheduler that allows at most maxThreads live
// threads. Zero means no limit.
func NewScheduler(maxThreads int, logger *slog.Logger) *GoScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoScheduler{
		max:    maxThreads,
		logger: logger.With(slog.String("component", "thread")),
	}
}

// Fork implements Scheduler. It fails with errno.ErrNoMemory when the
// thread budget is spent.
func (s *GoScheduler) Fork(ctx context.Context, name string, entry func(t *Thread)) (*Thread, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.max > 0 && s.live >= s.max {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: thread limit %d reached", errno.ErrNoMemory, s.max)
	}
	s.live++
	s.nextID++
	t := &Thread{
		ID:   s.nextID,
		Name: name,
		ctx:  ctx,
		done: make(chan struct{}),
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer func() {
			s.mu.Lock()
			s.live--
			s.mu.Unlock()
		}()
		entry(t)
	}()

	s.logger.Debug("thread forked", slog.Int("tid", t.ID), slog.String("name", name))
	return t, nil
}

// Live returns the number of threads that have not exited.
func (s *GoScheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Wait blocks until every forked thread has exited.
func (s *GoScheduler) Wait() {
	s.wg.Wait()
}
