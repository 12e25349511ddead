package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/robofleet/pkg/log"
)

// Runnable is anything the manager runs until its context ends: protocol
// servers, schedulers and the write-through pipeline alike.
type Runnable interface {
	Start(ctx context.Context) error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(ctx context.Context) error

func (f RunnableFunc) Start(ctx context.Context) error { return f(ctx) }

// Manager manages the lifecycle of all runnables.
type Manager struct {
	runnables []Runnable
}

func NewManager(runnables ...Runnable) *Manager {
	return &Manager{runnables: runnables}
}

// Add registers r. It must be called before Start.
func (m *Manager) Add(r Runnable) {
	m.runnables = append(m.runnables, r)
}

// Start launches all runnables in parallel and waits for them to return.
// The first error cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, r := range m.runnables {
		g.Go(func() error {
			return r.Start(ctx)
		})
	}

	log.Info("All runnables starting...", "count", len(m.runnables))
	return g.Wait()
}
