// Package session holds the single batch a running server works on, its
// progress and its finished payload.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var (
	ErrBusy     = errors.New("a batch is already running")
	ErrNoResult = errors.New("no finished batch to download")
)

// BatchRunner captures a whole batch. *thumbnailer.Runner satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, batch thumbnailer.Batch, reporter thumbnailer.Reporter) (*thumbnailer.Payload, error)
}

// Snapshot is a copy of the session state that is safe to hand out.
type Snapshot struct {
	State       State                 `json:"state"`
	BatchID     string                `json:"batch_id,omitempty"`
	ArchiveName string                `json:"archive_name,omitempty"`
	Done        int                   `json:"done"`
	Total       int                   `json:"total"`
	Progress    float64               `json:"progress"`
	Status      string                `json:"status,omitempty"`
	Succeeded   int                   `json:"succeeded"`
	Failures    []thumbnailer.Failure `json:"failures,omitempty"`
	Similar     map[string]string     `json:"similar,omitempty"`
	Manifest    string                `json:"manifest,omitempty"`
	Error       string                `json:"error,omitempty"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	FinishedAt  *time.Time            `json:"finished_at,omitempty"`
}

// Session moves through idle -> running -> completed|failed and back to idle
// on Reset. At most one batch runs at a time.
type Session struct {
	runner BatchRunner

	mu         sync.RWMutex
	state      State
	batch      thumbnailer.Batch
	done       int
	succeeded  int
	status     string
	failures   []thumbnailer.Failure
	similar    map[string]string
	payload    *thumbnailer.Payload
	lastError  string
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc

	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int

	wg sync.WaitGroup
}

func New(runner BatchRunner) *Session {
	return &Session{
		runner:    runner,
		state:     StateIdle,
		listeners: make(map[int]func(Snapshot)),
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle, StateCompleted, StateFailed:
		return to == StateRunning || to == StateIdle
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Start begins batch in the background. It returns ErrBusy while another batch
// is running; a finished result from an earlier batch is replaced.
func (s *Session) Start(ctx context.Context, batch thumbnailer.Batch) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.wg.Add(1)
	if err := s.begin(batch, cancel); err != nil {
		s.wg.Done()
		cancel()
		return err
	}

	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.Fail(fmt.Errorf("batch stopped unexpectedly: %v", r))
			}
		}()

		payload, err := s.runner.Run(runCtx, batch, s)
		if err != nil {
			s.Fail(err)
			return
		}
		s.Complete(payload)
	}()

	return nil
}

// Begin marks batch as running without starting any work.
func (s *Session) Begin(batch thumbnailer.Batch) error {
	return s.begin(batch, nil)
}

func (s *Session) begin(batch thumbnailer.Batch, cancel context.CancelFunc) error {
	s.mu.Lock()
	if !isAllowedTransition(s.state, StateRunning) {
		s.mu.Unlock()
		return ErrBusy
	}

	s.state = StateRunning
	s.batch = batch
	s.done = 0
	s.succeeded = 0
	s.status = ""
	s.failures = nil
	s.similar = nil
	s.payload = nil
	s.lastError = ""
	s.startedAt = time.Now().UTC()
	s.finishedAt = time.Time{}
	s.cancel = cancel
	s.mu.Unlock()

	log.Infof("Started batch %s with %d items", batch.ID, len(batch.Items))
	s.notify()
	return nil
}

// ItemStarted implements thumbnailer.Reporter.
func (s *Session) ItemStarted(index, total int, item thumbnailer.WorkItem) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.status = thumbnailer.StatusLine(index, total, item)
	s.mu.Unlock()

	s.notify()
}

// ItemFinished implements thumbnailer.Reporter.
func (s *Session) ItemFinished(index, total int, result thumbnailer.CaptureResult) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}

	s.done = index + 1
	if result.OK() {
		s.succeeded++
		if result.SimilarTo != "" {
			if s.similar == nil {
				s.similar = make(map[string]string)
			}
			s.similar[result.Item.Filename] = result.SimilarTo
		}
	} else {
		s.failures = append(s.failures, thumbnailer.Failure{
			Index:    index,
			Filename: result.Item.Filename,
			URL:      result.Item.URL,
			Message:  thumbnailer.ErrorMessage(result.Err),
		})
	}
	s.mu.Unlock()

	s.notify()
}

// Complete stores the payload of the running batch.
func (s *Session) Complete(payload *thumbnailer.Payload) {
	if payload == nil {
		s.Fail(errors.New("batch finished without a result"))
		return
	}

	s.mu.Lock()
	if !isAllowedTransition(s.state, StateCompleted) {
		s.mu.Unlock()
		log.Warnf("Ignoring result of batch %s in state %s", payload.BatchID, s.state)
		return
	}

	s.state = StateCompleted
	s.payload = payload
	s.done = payload.Total
	s.succeeded = payload.Entries
	s.failures = payload.Failures
	s.similar = payload.Similar
	s.status = ""
	s.finishedAt = payload.FinishedAt
	s.cancel = nil
	s.mu.Unlock()

	log.Infof("Batch %s completed: %d/%d thumbnails", payload.BatchID, payload.Entries, payload.Total)
	s.notify()
}

// Fail records err as the reason the running batch stopped. No payload is kept.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if !isAllowedTransition(s.state, StateFailed) {
		s.mu.Unlock()
		log.Warnf("Ignoring failure in state %s: %v", s.state, err)
		return
	}

	s.state = StateFailed
	s.payload = nil
	s.status = ""
	s.lastError = thumbnailer.ErrorMessage(err)
	s.finishedAt = time.Now().UTC()
	s.cancel = nil
	id := s.batch.ID
	s.mu.Unlock()

	log.Errorf("Batch %s failed: %v", id, err)
	s.notify()
}

// Reset discards the finished batch and any result. It is refused while a
// batch is running.
func (s *Session) Reset() error {
	s.mu.Lock()
	if !isAllowedTransition(s.state, StateIdle) {
		s.mu.Unlock()
		return ErrBusy
	}

	s.state = StateIdle
	s.batch = thumbnailer.Batch{}
	s.done = 0
	s.succeeded = 0
	s.status = ""
	s.failures = nil
	s.similar = nil
	s.payload = nil
	s.lastError = ""
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
	s.mu.Unlock()

	log.Debug("Session reset")
	s.notify()
	return nil
}

// Payload returns the result of the last completed batch.
func (s *Session) Payload() (*thumbnailer.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateCompleted || s.payload == nil {
		return nil, ErrNoResult
	}
	return s.payload, nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := Snapshot{
		State:     s.state,
		Done:      s.done,
		Succeeded: s.succeeded,
		Status:    s.status,
		Error:     s.lastError,
	}

	if s.state != StateIdle {
		snapshot.BatchID = s.batch.ID
		snapshot.ArchiveName = s.batch.ArchiveName
		snapshot.Total = len(s.batch.Items)
		snapshot.Progress = thumbnailer.Progress(s.done, snapshot.Total)
		snapshot.Failures = append([]thumbnailer.Failure(nil), s.failures...)
	}

	if len(s.similar) > 0 {
		snapshot.Similar = make(map[string]string, len(s.similar))
		for k, v := range s.similar {
			snapshot.Similar[k] = v
		}
	}
	if s.payload != nil {
		snapshot.Manifest = s.payload.Manifest
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		snapshot.StartedAt = &startedAt
	}
	if !s.finishedAt.IsZero() {
		finishedAt := s.finishedAt
		snapshot.FinishedAt = &finishedAt
	}

	return snapshot
}

// Subscribe calls fn with a fresh snapshot after every change until the
// returned function is called. fn runs on the goroutine making the change and
// must not block.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Session) notify() {
	snapshot := s.Snapshot()

	s.listenersMu.Lock()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Cancel interrupts the running batch, if any.
func (s *Session) Cancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the background batch, if any, has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}
