package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/root4loot/thumbnailer"
)

// fakeRunner reports every item as captured, except the ones listed in fail,
// and blocks before returning until release is closed.
type fakeRunner struct {
	release chan struct{}
	fail    map[string]error
	err     error
	panics  bool
}

func (f *fakeRunner) Run(ctx context.Context, batch thumbnailer.Batch, reporter thumbnailer.Reporter) (*thumbnailer.Payload, error) {
	if f.panics {
		panic("boom")
	}

	payload := &thumbnailer.Payload{
		BatchID:     batch.ID,
		ArchiveName: batch.ArchiveName,
		Archive:     []byte("zip"),
		Manifest:    "manifest",
		Total:       len(batch.Items),
	}

	for i, item := range batch.Items {
		reporter.ItemStarted(i, len(batch.Items), item)
		result := thumbnailer.CaptureResult{Index: i, Item: item, Err: f.fail[item.Filename]}
		if result.OK() {
			payload.Entries++
		} else {
			payload.Failures = append(payload.Failures, thumbnailer.Failure{Index: i, Filename: item.Filename})
		}
		reporter.ItemFinished(i, len(batch.Items), result)
	}

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	payload.FinishedAt = time.Now().UTC()
	return payload, nil
}

func newBatch(t *testing.T, names ...string) thumbnailer.Batch {
	t.Helper()

	items := make([]thumbnailer.WorkItem, len(names))
	for i, name := range names {
		items[i] = thumbnailer.WorkItem{Filename: name, URL: "http://" + name + ".com"}
	}
	batch, err := thumbnailer.NewBatch(items, 0, "")
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	return batch
}

func TestInitialState(t *testing.T) {
	s := New(&fakeRunner{})

	snapshot := s.Snapshot()
	if snapshot.State != StateIdle || snapshot.Total != 0 || snapshot.Progress != 0 {
		t.Errorf("Unexpected initial snapshot %+v", snapshot)
	}
	if _, err := s.Payload(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult, got %v", err)
	}
}

func TestStartCompletes(t *testing.T) {
	s := New(&fakeRunner{fail: map[string]error{"b_2": errors.New("timeout")}})

	if err := s.Start(context.Background(), newBatch(t, "b_1", "b_2", "b_3")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Wait()

	snapshot := s.Snapshot()
	if snapshot.State != StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", snapshot.State, snapshot.Error)
	}
	if snapshot.Done != 3 || snapshot.Total != 3 || snapshot.Progress != 1 {
		t.Errorf("Unexpected progress %+v", snapshot)
	}
	if snapshot.Succeeded != 2 || len(snapshot.Failures) != 1 {
		t.Errorf("Expected 2 successes and 1 failure, got %d and %d", snapshot.Succeeded, len(snapshot.Failures))
	}
	if snapshot.Manifest != "manifest" || snapshot.FinishedAt == nil {
		t.Errorf("Expected manifest and finish time, got %+v", snapshot)
	}

	payload, err := s.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if string(payload.Archive) != "zip" {
		t.Errorf("Unexpected payload archive %q", payload.Archive)
	}
}

func TestStartWhileRunning(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := New(runner)

	if err := s.Start(context.Background(), newBatch(t, "r_1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background(), newBatch(t, "r_2")); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for a second batch, got %v", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for reset while running, got %v", err)
	}
	if _, err := s.Payload(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected no payload while running, got %v", err)
	}

	close(runner.release)
	s.Wait()

	if s.State() != StateCompleted {
		t.Errorf("Expected completed, got %s", s.State())
	}
}

func TestStartReplacesFinishedResult(t *testing.T) {
	s := New(&fakeRunner{})

	first := newBatch(t, "f_1")
	if err := s.Start(context.Background(), first); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Wait()

	second := newBatch(t, "s_1", "s_2")
	if err := s.Start(context.Background(), second); err != nil {
		t.Fatalf("Start() after completion error = %v", err)
	}
	s.Wait()

	payload, err := s.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if payload.BatchID != second.ID || payload.Total != 2 {
		t.Errorf("Expected payload of the second batch, got %s with %d items", payload.BatchID, payload.Total)
	}
}

func TestRunnerError(t *testing.T) {
	s := New(&fakeRunner{err: errors.New("could not start browser: exec: chromium not found")})

	if err := s.Start(context.Background(), newBatch(t, "e_1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Wait()

	snapshot := s.Snapshot()
	if snapshot.State != StateFailed {
		t.Fatalf("Expected failed, got %s", snapshot.State)
	}
	if snapshot.Error == "" {
		t.Errorf("Expected an error message")
	}
	if _, err := s.Payload(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected no payload after failure, got %v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if s.State() != StateIdle || s.Snapshot().Error != "" {
		t.Errorf("Expected a clean idle session after reset, got %+v", s.Snapshot())
	}
}

func TestRunnerPanic(t *testing.T) {
	s := New(&fakeRunner{panics: true})

	if err := s.Start(context.Background(), newBatch(t, "p_1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Wait()

	if s.State() != StateFailed {
		t.Errorf("Expected failed after a panic, got %s", s.State())
	}
}

func TestCancel(t *testing.T) {
	s := New(&fakeRunner{release: make(chan struct{})})

	if err := s.Start(context.Background(), newBatch(t, "c_1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Cancel()
	s.Wait()

	if s.State() != StateFailed {
		t.Errorf("Expected failed after cancel, got %s", s.State())
	}
}

func TestResetAfterCompletion(t *testing.T) {
	s := New(&fakeRunner{})

	if err := s.Start(context.Background(), newBatch(t, "x_1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Wait()

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	snapshot := s.Snapshot()
	if snapshot.State != StateIdle || snapshot.BatchID != "" || snapshot.Manifest != "" || snapshot.Done != 0 {
		t.Errorf("Expected idle snapshot, got %+v", snapshot)
	}
	if _, err := s.Payload(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected payload to be discarded, got %v", err)
	}

	// resetting an idle session is a no-op
	if err := s.Reset(); err != nil {
		t.Errorf("Reset() on idle error = %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	s := New(&fakeRunner{})

	var states []State
	var statuses []string
	unsubscribe := s.Subscribe(func(snapshot Snapshot) {
		states = append(states, snapshot.State)
		if snapshot.Status != "" {
			statuses = append(statuses, snapshot.Status)
		}
	})

	if err := s.Start(context.Background(), newBatch(t, "n_1", "n_2")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Wait()
	unsubscribe()

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if len(states) == 0 || states[0] != StateRunning || states[len(states)-1] != StateCompleted {
		t.Errorf("Unexpected state sequence %v", states)
	}
	want := []string{"processing n_1 (1/2)", "processing n_1 (1/2)", "processing n_2 (2/2)", "processing n_2 (2/2)"}
	if len(statuses) != len(want) {
		t.Fatalf("Expected %d status updates, got %v", len(want), statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses[%d] = %q, want %q", i, statuses[i], want[i])
		}
	}
}

func TestIsAllowedTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateRunning, true},
		{StateIdle, StateCompleted, false},
		{StateRunning, StateRunning, false},
		{StateRunning, StateIdle, false},
		{StateRunning, StateCompleted, true},
		{StateRunning, StateFailed, true},
		{StateCompleted, StateRunning, true},
		{StateCompleted, StateIdle, true},
		{StateFailed, StateIdle, true},
		{StateFailed, StateCompleted, false},
	}

	for _, tc := range tests {
		if got := isAllowedTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("isAllowedTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
