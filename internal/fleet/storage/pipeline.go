// Package storage projects cached robot state onto durable storage.
package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// Task is one durable write. Tasks sharing a Key coalesce: only the newest
// pending one is executed.
type Task struct {
	Key   string
	Write func(ctx context.Context) error
}

// Scheduler accepts write-through tasks without blocking.
type Scheduler interface {
	Push(task Task)
}

// PipelineConfig tunes the write-through pipeline.
type PipelineConfig struct {
	BufferSize    int
	FlushInterval time.Duration
	// FlushThreshold forces a flush once this many distinct keys are pending.
	FlushThreshold int
	Workers        int
	WriteTimeout   time.Duration
	DrainTimeout   time.Duration
	Clock          clock.WithTicker
}

func (c *PipelineConfig) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 5000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
}

// Pipeline is a write-merging buffer in front of the durable store. It keeps
// the store from being hammered by high-frequency telemetry: within one flush
// interval only the latest write per key reaches storage.
type Pipeline struct {
	cfg PipelineConfig

	inputCh chan Task

	// buffer holds the latest pending task per key. Owned by the Start loop.
	buffer map[string]Task
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	cfg.setDefaults()
	return &Pipeline{
		cfg:     cfg,
		inputCh: make(chan Task, cfg.BufferSize),
		buffer:  make(map[string]Task),
	}
}

// Push enqueues a task. It never blocks: when the input buffer is full the
// task is dropped.
func (p *Pipeline) Push(task Task) {
	select {
	case p.inputCh <- task:
	default:
		metrics.WriteThroughTotal.WithLabelValues("dropped").Inc()
		log.Warn("Write-through pipeline full, dropping task", "key", task.Key)
	}
}

// Start runs the merge loop until ctx is cancelled, then drains what is
// pending within DrainTimeout and returns. A flush already running when ctx
// is cancelled completes under WriteTimeout before the drain starts.
func (p *Pipeline) Start(ctx context.Context) error {
	ticker := p.cfg.Clock.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	flushCtx := context.WithoutCancel(ctx)

	log.Info("Write-through pipeline started", "interval", p.cfg.FlushInterval, "workers", p.cfg.Workers)

	for {
		select {
		case task := <-p.inputCh:
			p.buffer[task.Key] = task
			if len(p.buffer) >= p.cfg.FlushThreshold {
				p.flush(flushCtx)
			}

		case <-ticker.C():
			if len(p.buffer) > 0 {
				p.flush(flushCtx)
			}

		case <-ctx.Done():
			return p.drain()
		}
	}
}

// drain flushes everything still queued with a bounded deadline. Writes still
// running at the deadline see their context cancelled.
func (p *Pipeline) drain() error {
loop:
	for {
		select {
		case task := <-p.inputCh:
			p.buffer[task.Key] = task
		default:
			break loop
		}
	}

	pending := len(p.buffer)
	if pending == 0 {
		log.Info("Write-through pipeline stopped")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()
	p.flush(ctx)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("Write-through drain timed out", "pending", pending, "timeout", p.cfg.DrainTimeout)
		return nil
	}
	log.Info("Write-through pipeline drained", "flushed", pending)
	return nil
}

// flush writes every buffered task over a bounded worker group and resets the buffer.
func (p *Pipeline) flush(ctx context.Context) {
	batch := p.buffer
	p.buffer = make(map[string]Task, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for key, task := range batch {
		g.Go(func() error {
			p.write(ctx, key, task)
			return nil
		})
	}
	_ = g.Wait()

	log.Debug("Write-through pipeline flushed", "count", len(batch))
}

func (p *Pipeline) write(ctx context.Context, key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WriteThroughTotal.WithLabelValues("failed").Inc()
			log.Error(nil, "Write-through task panicked", "key", key, "panic", r)
		}
	}()

	wctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()

	if err := task.Write(wctx); err != nil {
		metrics.WriteThroughTotal.WithLabelValues("failed").Inc()
		log.Error(err, "Write-through failed", "key", key)
		return
	}
	metrics.WriteThroughTotal.WithLabelValues("success").Inc()
}
