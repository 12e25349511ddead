package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	writes map[string][]string
}

func (r *recorder) task(key, val string, err error) Task {
	return Task{Key: key, Write: func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.writes == nil {
			r.writes = make(map[string][]string)
		}
		r.writes[key] = append(r.writes[key], val)
		return err
	}}
}

func (r *recorder) get(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes[key]...)
}

func runAndStop(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
}

func TestPipelineCoalescesByKey(t *testing.T) {
	r := &recorder{}
	p := NewPipeline(PipelineConfig{FlushInterval: time.Hour})

	p.Push(r.task("robot/r1", "v1", nil))
	p.Push(r.task("robot/r1", "v2", nil))
	p.Push(r.task("robot/r1", "v3", nil))
	p.Push(r.task("robot/r2", "only", nil))

	runAndStop(t, p)

	if got := r.get("robot/r1"); len(got) != 1 || got[0] != "v3" {
		t.Errorf("robot/r1 writes = %v, want [v3]", got)
	}
	if got := r.get("robot/r2"); len(got) != 1 || got[0] != "only" {
		t.Errorf("robot/r2 writes = %v, want [only]", got)
	}
}

func TestPipelineDropsWhenFull(t *testing.T) {
	r := &recorder{}
	p := NewPipeline(PipelineConfig{BufferSize: 1, FlushInterval: time.Hour})

	p.Push(r.task("a", "kept", nil))
	p.Push(r.task("b", "dropped", nil))

	runAndStop(t, p)

	if got := r.get("a"); len(got) != 1 {
		t.Errorf("a writes = %v", got)
	}
	if got := r.get("b"); len(got) != 0 {
		t.Errorf("b should have been dropped, got %v", got)
	}
}

func TestPipelineFailureIsIsolated(t *testing.T) {
	r := &recorder{}
	p := NewPipeline(PipelineConfig{FlushInterval: time.Hour})

	p.Push(r.task("bad", "x", errors.New("db down")))
	p.Push(r.task("good", "y", nil))
	p.Push(Task{Key: "panics", Write: func(ctx context.Context) error { panic("boom") }})

	runAndStop(t, p)

	if got := r.get("good"); len(got) != 1 {
		t.Errorf("good writes = %v", got)
	}
}

func TestPipelineFlushThreshold(t *testing.T) {
	r := &recorder{}
	p := NewPipeline(PipelineConfig{FlushInterval: time.Hour, FlushThreshold: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Start(ctx)
		close(done)
	}()

	p.Push(r.task("a", "1", nil))
	p.Push(r.task("b", "1", nil))

	deadline := time.Now().Add(2 * time.Second)
	for len(r.get("a")) == 0 || len(r.get("b")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("threshold did not trigger a flush")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}

func TestPipelineDrainIsBounded(t *testing.T) {
	p := NewPipeline(PipelineConfig{FlushInterval: time.Hour, DrainTimeout: 50 * time.Millisecond, WriteTimeout: time.Minute})

	p.Push(Task{Key: "slow", Write: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	start := time.Now()
	runAndStop(t, p)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("drain took %v", elapsed)
	}
}

func TestPipelineStopDuringFlushCompletesWrite(t *testing.T) {
	p := NewPipeline(PipelineConfig{FlushInterval: time.Hour, FlushThreshold: 1, WriteTimeout: time.Minute})

	started := make(chan struct{})
	result := make(chan error, 1)
	p.Push(Task{Key: "robot/r1", Write: func(ctx context.Context) error {
		close(started)
		select {
		case <-time.After(200 * time.Millisecond):
			result <- nil
			return nil
		case <-ctx.Done():
			result <- ctx.Err()
			return ctx.Err()
		}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("threshold flush never started")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	if err := <-result; err != nil {
		t.Fatalf("in-flight write saw %v, want it to complete", err)
	}
}
