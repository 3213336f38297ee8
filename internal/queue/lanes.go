package queue

import (
	"container/list"
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Push after Close has been called.
	ErrClosed = errors.New("queue: lanes closed")

	// ErrLaneFull is returned when a key already has MaxPending jobs waiting.
	ErrLaneFull = errors.New("queue: lane is full")
)

// Job is a unit of work run on a lane. ctx is cancelled when Close gives up waiting.
type Job func(ctx context.Context)

type lane struct {
	jobs *list.List
}

// Lanes runs jobs keyed by a string. Jobs sharing a key run one at a time
// in push order; different keys run concurrently. A lane's goroutine exits
// as soon as its queue is empty.
type Lanes struct {
	mu         sync.Mutex
	lanes      map[string]*lane
	closed     bool
	maxPending int
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewLanes creates an executor. maxPending bounds the jobs waiting per key;
// zero means unbounded.
func NewLanes(maxPending int, logger *zap.Logger) *Lanes {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lanes{
		lanes:      make(map[string]*lane),
		maxPending: maxPending,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Push appends job to the lane for key.
func (l *Lanes) Push(key string, job Job) error {
	if job == nil {
		return errors.New("queue: nil job")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	ln, exists := l.lanes[key]
	if !exists {
		ln = &lane{jobs: list.New()}
		l.lanes[key] = ln
	}
	if l.maxPending > 0 && ln.jobs.Len() >= l.maxPending {
		return ErrLaneFull
	}
	ln.jobs.PushBack(job)

	if !exists {
		l.wg.Add(1)
		go l.drain(key, ln)
	}
	return nil
}

func (l *Lanes) drain(key string, ln *lane) {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		front := ln.jobs.Front()
		if front == nil {
			delete(l.lanes, key)
			l.mu.Unlock()
			return
		}
		ln.jobs.Remove(front)
		l.mu.Unlock()

		l.run(key, front.Value.(Job))
	}
}

func (l *Lanes) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered panic in lane job",
				zap.String("key", key),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	job(l.ctx)
}

// Active returns the number of keys with queued or running jobs.
func (l *Lanes) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Close stops accepting jobs and waits for queued jobs to finish. If ctx
// expires first, running jobs see their context cancelled.
func (l *Lanes) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}
