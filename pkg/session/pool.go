package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultMaxWorkers caps the number of managers a Pool hands out.
const DefaultMaxWorkers = 32

// Pool hands out one Manager per worker identifier. Managers share the
// driver, login flow and options the pool was created with.
type Pool struct {
	mu         sync.Mutex
	driver     Driver
	flow       LoginFlow
	opts       []Option
	now        func() time.Time
	managers   map[string]*Manager
	maxWorkers int
}

// NewPool creates an empty pool.
func NewPool(driver Driver, flow LoginFlow, opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool{
		driver:     driver,
		flow:       flow,
		opts:       opts,
		now:        o.now,
		managers:   make(map[string]*Manager),
		maxWorkers: DefaultMaxWorkers,
	}
}

// ForWorker returns the manager for workerID, creating it on first use. A
// manager that has been released is replaced by a fresh one. Handing out a
// manager counts as activity for ReleaseIdle.
func (p *Pool) ForWorker(workerID string) (*Manager, error) {
	if workerID == "" {
		return nil, configError("pool", "worker id is required")
	}

	p.mu.Lock()
	m, ok := p.managers[workerID]
	p.mu.Unlock()
	if ok && m.checkout() {
		return m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ok {
		p.forgetLocked(workerID, m)
	}
	if cur, exists := p.managers[workerID]; exists {
		return cur, nil
	}

	if len(p.managers) >= p.maxWorkers {
		return nil, configError("pool", fmt.Sprintf("maximum number of workers (%d) reached", p.maxWorkers))
	}

	m = NewManager(workerID, p.driver, p.flow, p.opts...)
	p.managers[workerID] = m
	return m, nil
}

// Release releases and forgets the manager for workerID. Unknown workers are
// a no-op.
func (p *Pool) Release(workerID string) error {
	p.mu.Lock()
	m, ok := p.managers[workerID]
	delete(p.managers, workerID)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return m.Release()
}

// ReleaseAll releases every manager. It is called at shutdown.
func (p *Pool) ReleaseAll() error {
	p.mu.Lock()
	managers := p.managers
	p.managers = make(map[string]*Manager)
	p.mu.Unlock()

	var errs []error
	for _, m := range managers {
		if err := m.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReleaseIdle releases managers that have been neither handed out nor
// acquired for longer than idle, and returns their final info ordered by
// worker id. Managers that hold no session are kept.
func (p *Pool) ReleaseIdle(idle time.Duration) ([]WorkerInfo, error) {
	cutoff := p.now().Add(-idle)

	var released []WorkerInfo
	var errs []error
	for _, m := range p.snapshot() {
		info, ok, err := m.releaseIfIdle(cutoff)
		if !ok {
			continue
		}
		p.mu.Lock()
		p.forgetLocked(m.WorkerID(), m)
		p.mu.Unlock()

		released = append(released, info)
		if err != nil {
			errs = append(errs, err)
		}
	}
	sortInfos(released)
	return released, errors.Join(errs...)
}

// forgetLocked drops the entry for workerID if it still points at m.
func (p *Pool) forgetLocked(workerID string, m *Manager) {
	if p.managers[workerID] == m {
		delete(p.managers, workerID)
	}
}

// snapshot copies the managers so they can be inspected without p.mu.
func (p *Pool) snapshot() []*Manager {
	p.mu.Lock()
	defer p.mu.Unlock()
	managers := make([]*Manager, 0, len(p.managers))
	for _, m := range p.managers {
		managers = append(managers, m)
	}
	return managers
}

// SetMaxWorkers sets the maximum number of concurrent managers.
func (p *Pool) SetMaxWorkers(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.maxWorkers = n
	}
}

// Workers returns information about every manager, ordered by worker id.
func (p *Pool) Workers() []WorkerInfo {
	managers := p.snapshot()
	infos := make([]WorkerInfo, 0, len(managers))
	for _, m := range managers {
		infos = append(infos, m.info())
	}
	sortInfos(infos)
	return infos
}

func sortInfos(infos []WorkerInfo) {
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].WorkerID < infos[j].WorkerID
	})
}

// WorkerInfo contains metadata about one worker's manager.
type WorkerInfo struct {
	WorkerID       string
	State          State
	Establishments int
	CurrentURL     string
	CreatedAt      time.Time
	LastUsedAt     time.Time
}
