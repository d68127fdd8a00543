// Package worker содержит очередь заданий и пул воркеров фоновой обработки
// документов.
package worker

import (
	"context"

	"github.com/mmeshcher/docflow-system/internal/model"
)

// Queue — именованная очередь заданий обработки документов внутри процесса.
// Доставка как минимум однократная: задание, поставленное повторно, безвредно
// благодаря проверке финального статуса в воркере.
type Queue struct {
	name string
	jobs chan model.ProcessingJob
}

// NewQueue создаёт очередь с указанной ёмкостью.
func NewQueue(name string, capacity int) *Queue {
	return &Queue{
		name: name,
		jobs: make(chan model.ProcessingJob, capacity),
	}
}

// Name возвращает имя очереди.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue ставит задание в очередь. При заполненной очереди блокируется до
// освобождения места или отмены контекста.
func (q *Queue) Enqueue(ctx context.Context, job model.ProcessingJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs возвращает канал для чтения заданий воркерами.
func (q *Queue) Jobs() <-chan model.ProcessingJob {
	return q.jobs
}
