// Package dispatch реализует гибридную стратегию обработки загруженного
// документа: синхронная попытка в пределах дедлайна, при неуспехе — фоновое
// задание и оптимистичный ответ вызывающему.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/docflow-system/internal/model"
	"github.com/mmeshcher/docflow-system/internal/processor"
)

// ErrSyncDeadlineExceeded фиксирует превышение синхронного дедлайна. Работа
// при этом могла успеть завершиться — условие всё равно уводит ответ на
// асинхронный путь.
var ErrSyncDeadlineExceeded = errors.New("synchronous processing deadline exceeded")

// Processor описывает контракт обработки одного документа.
type Processor interface {
	Process(ctx context.Context, store processor.Store, doc model.Document) (*model.Document, error)
}

// Queue описывает контракт постановки фонового задания.
type Queue interface {
	Enqueue(ctx context.Context, job model.ProcessingJob) error
}

// Result — итог диспетчеризации: либо обработанный документ (Completed),
// либо подтверждение фоновой обработки с текущим состоянием документа.
type Result struct {
	Document  *model.Document
	Completed bool
}

// Dispatcher выполняет синхронную попытку обработки с дедлайном и фоновым
// запасным путём.
type Dispatcher struct {
	store     processor.Store
	processor Processor
	queue     Queue
	deadline  time.Duration
	logger    *zap.Logger
}

// New создаёт диспетчер с указанным синхронным дедлайном.
func New(store processor.Store, proc Processor, queue Queue, deadline time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		processor: proc,
		queue:     queue,
		deadline:  deadline,
		logger:    logger,
	}
}

// Dispatch обрабатывает документ синхронно. Успех в пределах дедлайна даёт
// немедленный результат. Поздний успех, деловой отказ и любой сбой равнозначны:
// ставится фоновое задание и возвращается текущее состояние документа.
// Деловой отказ намеренно не считается окончательным — подходящий заказ может
// появиться позже, и повторная попытка завершится успехом.
func (d *Dispatcher) Dispatch(ctx context.Context, doc model.Document) (*Result, error) {
	start := time.Now()

	processed, procErr := d.processor.Process(ctx, d.store, doc)
	elapsed := time.Since(start)

	if procErr == nil && elapsed <= d.deadline {
		return &Result{Document: processed, Completed: true}, nil
	}

	if procErr == nil {
		procErr = ErrSyncDeadlineExceeded
		d.logger.Warn("synchronous deadline exceeded, falling back to background",
			zap.Int64("documentID", doc.ID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("deadline", d.deadline),
		)
	} else {
		d.logger.Warn("synchronous processing failed, falling back to background",
			zap.Int64("documentID", doc.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(procErr),
		)
	}

	job := model.ProcessingJob{
		DocumentID:  doc.ID,
		Attempt:     1,
		NextRetryAt: time.Now(),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue document %d: %w", doc.ID, err)
	}

	current, err := d.store.GetDocument(ctx, doc.ID)
	if err != nil {
		d.logger.Error("reread document after fallback", zap.Int64("documentID", doc.ID), zap.Error(err))
		current = &doc
	}

	return &Result{Document: current, Completed: false}, nil
}
