// Package jobmgr runs named background jobs with cancellation and tracks
// the ones still running.
//
//	jm := jobmgr.NewManager(ctx, log)
//	_ = jm.Start("autosave", func(ctx context.Context) error {
//	    return jobmgr.Every(ctx, time.Minute, save)
//	})
//	defer jm.StopAll()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrRunning is returned by Start for a name that is already running.
var ErrRunning = errors.New("job already running")

// ErrNotRunning is returned by Stop for an unknown name.
var ErrNotRunning = errors.New("job not running")

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	parent context.Context
	log    zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager creates a Manager whose jobs are cancelled when parent is.
func NewManager(parent context.Context, log zerolog.Logger) *Manager {
	return &Manager{
		parent: parent,
		log:    log,
		jobs:   make(map[string]*job),
	}
}

// Start runs fn in its own goroutine. The job is forgotten once fn returns.
func (m *Manager) Start(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}

	ctx, cancel := context.WithCancel(m.parent)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()

		m.log.Debug().Str("job", name).Msg("running")
		err := fn(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.log.Error().Err(err).Str("job", name).Msg("failed")
		default:
			m.log.Debug().Str("job", name).Msg("done")
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels a job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every job and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Every calls fn each interval until ctx is done.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx)
		}
	}
}
