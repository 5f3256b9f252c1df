package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/application/metric"
)

type persistTask struct {
	name string
	run  func(ctx context.Context) error
}

// Persister выполняет запись в хранилище в фоне, в порядке постановки.
// Ошибки логируются и не влияют на состояние в памяти: следующее изменение
// комнаты снова запишет полный состав.
type Persister struct {
	tasks   chan persistTask
	timeout time.Duration
}

func NewPersister(queueSize int, timeout time.Duration) *Persister {
	if queueSize <= 0 {
		queueSize = 1024
	}

	return &Persister{
		tasks:   make(chan persistTask, queueSize),
		timeout: timeout,
	}
}

// Enqueue не блокируется; при переполненной очереди задача отбрасывается
func (p *Persister) Enqueue(name string, run func(ctx context.Context) error) {
	select {
	case p.tasks <- persistTask{name: name, run: run}:
	default:
		slog.Warn("persist queue is full, task dropped", slog.String(constant.Task, name))
		metric.IncrementPersistFailures(name)
	}
}

// Run обрабатывает очередь до отмены ctx, затем дописывает то, что уже поставлено
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case task := <-p.tasks:
			p.execute(ctx, task)
		case <-ctx.Done():
			p.drain()
			return nil
		}
	}
}

func (p *Persister) drain() {
	ctx := context.Background()

	for {
		select {
		case task := <-p.tasks:
			p.execute(ctx, task)
		default:
			return
		}
	}
}

func (p *Persister) execute(ctx context.Context, task persistTask) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := task.run(taskCtx); err != nil {
		slog.Error("persist task failed", slog.String(constant.Task, task.name), slog.Any(constant.Error, err))
		metric.IncrementPersistFailures(task.name)
	}
}
