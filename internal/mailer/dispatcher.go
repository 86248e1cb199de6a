package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aolus-software/rbac-api/internal/metrics"
)

var (
	ErrQueueFull = errors.New("mail queue full")
	ErrStopped   = errors.New("mail dispatcher stopped")
)

type Job struct {
	Message Message
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(context.Context, Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing mail", "worker_id", w.ID, "kind", job.Message.Kind)
				processFunc(ctx, job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff     time.Duration
	SendTimeout time.Duration
}

// Dispatcher fans queued messages out to a fixed set of workers. Each message
// is attempted up to MaxAttempts times with linear backoff.
type Dispatcher struct {
	sender  Sender
	cfg     DispatcherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	jobQueue   chan Job
	workerPool chan chan Job
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	mu         sync.RWMutex
	stopped    bool
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender:     sender,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		jobQueue:   make(chan Job, cfg.QueueSize),
		workerPool: make(chan chan Job, cfg.Workers),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (d *Dispatcher) Start() {
	d.once.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			worker := NewWorker(i, d.workerPool, d.logger)
			worker.Start(d.ctx, &d.wg, d.process)
		}

		d.wg.Add(1)
		go d.dispatch()

		d.logger.Info("mail worker pool started",
			"workers", d.cfg.Workers,
			"queue_size", cap(d.jobQueue))
	})
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				select {
				case jobChannel <- job:
				case <-d.ctx.Done():
					return
				}
			case <-d.ctx.Done():
				return
			}
		case <-d.ctx.Done():
			return
		}
	}
}

// Enqueue never blocks; a full queue is reported to the caller.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.jobQueue <- Job{Message: msg}:
		return nil
	default:
		d.metrics.ObserveMailDelivery(msg.Kind, "dropped")
		return ErrQueueFull
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	msg := job.Message
	var err error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err = d.sender.Send(sendCtx, msg)
		cancel()
		if err == nil {
			d.metrics.ObserveMailDelivery(msg.Kind, "sent")
			d.logger.Info("mail sent", "kind", msg.Kind, "attempt", attempt)
			return
		}

		d.logger.Warn("mail delivery failed", "kind", msg.Kind, "attempt", attempt, "error", err)
		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt) * d.cfg.Backoff):
		case <-ctx.Done():
			d.metrics.ObserveMailDelivery(msg.Kind, "aborted")
			return
		}
	}

	d.metrics.ObserveMailDelivery(msg.Kind, "failed")
	d.logger.Error("mail delivery gave up", "kind", msg.Kind, "attempts", d.cfg.MaxAttempts, "error", err)
}

// Shutdown stops accepting mail, cancels the workers and waits for them to
// exit until ctx expires. Messages still queued are dropped.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.logger.Info("shutting down mail dispatcher", "pending", len(d.jobQueue))
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("mail dispatcher shutdown complete")
	case <-ctx.Done():
		d.logger.Warn("mail dispatcher shutdown timed out")
	}
}
