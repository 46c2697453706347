// Package workerpool provides a bounded worker pool for background work
// that must never block the request path.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("task queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("pool is shutting down")
)

// Task represents a unit of work to be processed
type Task struct {
	ID      string
	Payload interface{}
	Context context.Context
}

// Result represents the outcome of task processing
type Result struct {
	TaskID   string
	Success  bool
	Error    error
	Data     interface{}
	Attempts int
}

// WorkerFunc is the function signature for task processing
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// MaxRetries is the maximum number of retries for failed tasks
	MaxRetries int
	// RetryDelay is the base delay between retries; attempt n waits n*RetryDelay
	RetryDelay time.Duration
	// GracefulShutdownTimeout bounds how long Stop waits for queued tasks
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for audit writes
func DefaultConfig() Config {
	return Config{
		Workers:                 4,
		QueueSize:               1024,
		MaxRetries:              2,
		RetryDelay:              200 * time.Millisecond,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

// Pool manages a pool of workers for concurrent task processing
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	mu       sync.RWMutex
	stopped  bool
	taskChan chan *Task
	results  chan *Result
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	tasksRetried   int64
	activeWorkers  int64
	queueDepth     int64
}

// New creates a new worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		results:    make(chan *Result, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task without blocking.
func (p *Pool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.taskChan <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		atomic.AddInt64(&p.queueDepth, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Results delivers one Result per finished task. Results are dropped when
// nobody drains the channel. It is closed by Stop.
func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Stop refuses new tasks, lets workers drain the queue, and waits up to
// GracefulShutdownTimeout before cancelling in-flight work.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.taskChan)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
		p.cancel()
		<-done
		err = fmt.Errorf("worker pool shutdown timed out after %s", p.config.GracefulShutdownTimeout)
	}
	p.cancel()

	close(p.results)
	return err
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	for task := range p.taskChan {
		atomic.AddInt64(&p.queueDepth, -1)
		p.finish(id, task, p.run(task))
	}
}

// run executes a task, retrying failures up to MaxRetries times.
func (p *Pool) run(task *Task) *Result {
	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&p.tasksRetried, 1)
			select {
			case <-ctx.Done():
				return &Result{TaskID: task.ID, Error: ctx.Err(), Attempts: attempt}
			case <-p.ctx.Done():
				return &Result{TaskID: task.ID, Error: p.ctx.Err(), Attempts: attempt}
			case <-time.After(p.config.RetryDelay * time.Duration(attempt)):
			}
		}

		result := p.workerFunc(ctx, task)
		if result == nil {
			result = &Result{TaskID: task.ID, Success: true}
		}
		result.TaskID = task.ID
		result.Attempts = attempt + 1
		if result.Success {
			return result
		}
		lastErr = result.Error
		if attempt < p.config.MaxRetries {
			p.logger.Debug("retrying task",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			continue
		}
		if p.config.MaxRetries > 0 {
			result.Error = fmt.Errorf("task failed after %d retries: %w", p.config.MaxRetries, lastErr)
		}
		return result
	}
	return &Result{TaskID: task.ID, Error: lastErr}
}

func (p *Pool) finish(workerID int, task *Task, result *Result) {
	if result.Success {
		atomic.AddInt64(&p.tasksCompleted, 1)
	} else {
		atomic.AddInt64(&p.tasksFailed, 1)
		p.logger.Error("task failed",
			zap.String("task_id", task.ID),
			zap.Int("worker_id", workerID),
			zap.Error(result.Error))
	}

	select {
	case p.results <- result:
	default:
		p.logger.Debug("result channel full, dropping result",
			zap.String("task_id", task.ID))
	}
}

// Stats holds pool counters
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksRetried   int64
	ActiveWorkers  int64
	QueueDepth     int64
	QueueCapacity  int
	Workers        int
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		TasksRetried:   atomic.LoadInt64(&p.tasksRetried),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		QueueDepth:     atomic.LoadInt64(&p.queueDepth),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy returns true while the queue is below 90% full
func (p *Pool) IsHealthy() bool {
	stats := p.Stats()
	return float64(stats.QueueDepth)/float64(stats.QueueCapacity) < 0.9
}
