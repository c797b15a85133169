package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Worker is a job consumer the manager starts and stops with its tasks.
type Worker interface {
	Start()
	Stop()
}

// PeriodicFunc is one run of a periodic task. Errors are logged and the
// task runs again on the next tick.
type PeriodicFunc func(ctx context.Context) error

type periodicTask struct {
	name     string
	interval time.Duration
	fn       PeriodicFunc
}

// Manager manages the job queue and background tasks
type Manager struct {
	queue   Worker
	tasks   []periodicTask
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager around queue. queue may be nil when the
// process only runs periodic tasks.
func NewManager(queue Worker) *Manager {
	return &Manager{queue: queue}
}

// SchedulePeriodic registers fn to run every interval once the manager is
// started. Registering after Start takes effect on the next Start.
func (m *Manager) SchedulePeriodic(name string, interval time.Duration, fn PeriodicFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, periodicTask{name: name, interval: interval, fn: fn})
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	if m.queue != nil {
		m.queue.Start()
	}

	for _, task := range m.tasks {
		if task.interval <= 0 {
			log.Warnf("[JobQueue Manager] Skipping task %s with interval %s", task.name, task.interval)
			continue
		}
		m.wg.Add(1)
		go m.runPeriodic(ctx, task, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	close(m.stopCh)
	m.cancel()
	m.running = false

	m.wg.Wait()

	if m.queue != nil {
		m.queue.Stop()
	}

	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) runPeriodic(ctx context.Context, task periodicTask, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started %s (interval: %s)", task.name, task.interval)

	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s stopping", task.name)
			return
		case <-ticker.C:
			log.Debugf("[JobQueue Manager] Running %s", task.name)
			if err := task.fn(ctx); err != nil {
				log.Errorf("[JobQueue Manager] %s error: %v", task.name, err)
			}
		}
	}
}

// RunTaskOnce runs a registered task immediately (admin and CLI use).
func (m *Manager) RunTaskOnce(ctx context.Context, name string) error {
	m.mu.Lock()
	var fn PeriodicFunc
	for _, task := range m.tasks {
		if task.name == name {
			fn = task.fn
			break
		}
	}
	m.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("no periodic task named %q", name)
	}
	return fn(ctx)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
