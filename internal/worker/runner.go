package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/docflow-system/internal/model"
	"github.com/mmeshcher/docflow-system/internal/processor"
	"github.com/mmeshcher/docflow-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый воркером.
type Repository interface {
	WithDocumentLock(ctx context.Context, documentID int64, fn func(ctx context.Context, store repository.Store, doc *model.Document) error) error
}

// Processor описывает контракт обработки одного документа.
type Processor interface {
	Process(ctx context.Context, store processor.Store, doc model.Document) (*model.Document, error)
}

// Runner выполняет задания очереди: каждая попытка идёт под блокировкой
// строки документа, неудачи повторяются по расписанию, после исчерпания
// попыток документ помечается abandoned.
type Runner struct {
	queue       *Queue
	repo        Repository
	processor   Processor
	logger      *zap.Logger
	maxAttempts int
	backoff     []time.Duration
}

// NewRunner создаёт обработчик очереди заданий.
func NewRunner(queue *Queue, repo Repository, proc Processor, logger *zap.Logger, maxAttempts int, backoff []time.Duration) *Runner {
	return &Runner{
		queue:       queue,
		repo:        repo,
		processor:   proc,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Run запускает пул воркеров и блокируется до отмены контекста.
func (r *Runner) Run(ctx context.Context, workers int) {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			r.work(ctx)
			return nil
		})
	}

	_ = g.Wait()
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue.Jobs():
			if !r.waitUntil(ctx, job.NextRetryAt) {
				return
			}
			r.handle(ctx, job)
		}
	}
}

// waitUntil дожидается момента запуска задания. Возвращает false, если
// контекст отменили раньше.
func (r *Runner) waitUntil(ctx context.Context, at time.Time) bool {
	delay := time.Until(at)
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Runner) handle(ctx context.Context, job model.ProcessingJob) {
	err := r.runAttempt(ctx, job)
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	if job.Attempt >= r.maxAttempts {
		r.abandon(ctx, job, err)
		return
	}

	delay := r.backoffDelay(job.Attempt)
	next := model.ProcessingJob{
		DocumentID:  job.DocumentID,
		Attempt:     job.Attempt + 1,
		NextRetryAt: time.Now().Add(delay),
	}

	r.logger.Info("processing attempt failed, retry scheduled",
		zap.Int64("documentID", job.DocumentID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)

	if err := r.queue.Enqueue(ctx, next); err != nil {
		r.logger.Error("enqueue retry", zap.Int64("documentID", job.DocumentID), zap.Error(err))
	}
}

// runAttempt выполняет одну попытку обработки документа под блокировкой
// строки. Статус перечитывается уже под блокировкой: финализированный
// документ не трогается, поэтому повторная доставка задания и гонка с поздним
// синхронным завершением безопасны.
func (r *Runner) runAttempt(ctx context.Context, job model.ProcessingJob) error {
	err := r.repo.WithDocumentLock(ctx, job.DocumentID, func(ctx context.Context, store repository.Store, doc *model.Document) error {
		if doc.Status.IsTerminal() {
			r.logger.Info("document already finalized, skipping attempt",
				zap.Int64("documentID", doc.ID),
				zap.String("status", string(doc.Status)),
				zap.Int("attempt", job.Attempt),
			)
			return nil
		}

		_, err := r.processor.Process(ctx, store, *doc)
		return err
	})
	if errors.Is(err, repository.ErrDocumentNotFound) {
		r.logger.Warn("document vanished, dropping job", zap.Int64("documentID", job.DocumentID))
		return nil
	}
	return err
}

func (r *Runner) backoffDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.backoff) {
		idx = len(r.backoff) - 1
	}
	return r.backoff[idx]
}

// abandon помечает документ abandoned после исчерпания попыток. Финальный
// статус ставится под блокировкой; выигравшая гонку удачная попытка не
// затирается.
func (r *Runner) abandon(ctx context.Context, job model.ProcessingJob, cause error) {
	err := r.repo.WithDocumentLock(ctx, job.DocumentID, func(ctx context.Context, store repository.Store, doc *model.Document) error {
		if doc.Status.IsTerminal() {
			return nil
		}
		return store.MarkDocumentAbandoned(ctx, doc.ID)
	})
	if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
		r.logger.Error("mark document abandoned",
			zap.Int64("documentID", job.DocumentID),
			zap.Error(err),
		)
		return
	}

	r.logger.Error("document abandoned after retries exhausted",
		zap.Int64("documentID", job.DocumentID),
		zap.Int("attempts", job.Attempt),
		zap.Error(cause),
	)
}
