// Package processor реализует центральный алгоритм обработки документа:
// чтение файла, извлечение реквизитов, поиск заказа на поставку и запись
// итогового статуса.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/docflow-system/internal/extractor"
	"github.com/mmeshcher/docflow-system/internal/model"
	"github.com/mmeshcher/docflow-system/internal/repository"
)

// Reason классифицирует причину отказа обработки документа.
type Reason string

const (
	ReasonExtractionFailed      Reason = "extraction_failed"
	ReasonMissingInvoiceNumber  Reason = "missing_invoice_number"
	ReasonPurchaseOrderNotFound Reason = "purchase_order_not_found"
)

// ProcessingError описывает отказ обработки документа. К моменту возврата
// ошибки статус failed уже записан в БД.
type ProcessingError struct {
	DocumentID int64
	Reason     Reason
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process document %d: %s: %v", e.DocumentID, e.Reason, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Store описывает операции с хранилищем, нужные процессору. Фоновая попытка
// передаёт сюда репозиторий, привязанный к транзакции с блокировкой строки.
type Store interface {
	GetDocument(ctx context.Context, documentID int64) (*model.Document, error)
	FindPurchaseOrder(ctx context.Context, vendor string, amountCents int64) (*model.PurchaseOrder, error)
	MarkDocumentFailed(ctx context.Context, documentID int64) error
	CompleteDocument(ctx context.Context, documentID int64, details model.InvoiceDetails, poNumber string) (*model.Document, error)
}

// FileReader читает содержимое сохранённого документа по ключу объекта.
type FileReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Extractor извлекает проверенные реквизиты счёта из сырого документа.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (*model.InvoiceDetails, error)
}

// Processor выполняет обработку одного документа.
type Processor struct {
	files     FileReader
	extractor Extractor
	logger    *zap.Logger
}

// New создаёт процессор документов.
func New(files FileReader, ext Extractor, logger *zap.Logger) *Processor {
	return &Processor{
		files:     files,
		extractor: ext,
		logger:    logger,
	}
}

// Process обрабатывает документ: извлекает реквизиты, ищет точное совпадение
// заказа по (vendor, amount) и записывает результат. Любой деловой отказ
// сначала фиксируется статусом failed и только потом возвращается как
// *ProcessingError. Неожиданные ошибки инфраструктуры (недоступное хранилище,
// отказ БД) пробрасываются как есть.
func (p *Processor) Process(ctx context.Context, store Store, doc model.Document) (*model.Document, error) {
	raw, err := p.files.Read(ctx, doc.FileKey)
	if err != nil {
		return nil, fmt.Errorf("read document file %s: %w", doc.FileKey, err)
	}

	details, err := p.extractor.Extract(ctx, raw)
	if err != nil {
		reason := ReasonExtractionFailed
		if errors.Is(err, extractor.ErrMissingInvoiceNumber) {
			reason = ReasonMissingInvoiceNumber
		}
		return nil, p.fail(ctx, store, doc.ID, reason, err)
	}

	po, err := store.FindPurchaseOrder(ctx, details.Vendor, details.AmountCents)
	if err != nil {
		if errors.Is(err, repository.ErrPurchaseOrderNotFound) {
			p.logger.Info("no purchase order for invoice",
				zap.Int64("documentID", doc.ID),
				zap.String("vendor", details.Vendor),
				zap.Int64("amountCents", details.AmountCents),
			)
			return nil, p.fail(ctx, store, doc.ID, ReasonPurchaseOrderNotFound, err)
		}
		return nil, fmt.Errorf("find purchase order: %w", err)
	}

	updated, err := store.CompleteDocument(ctx, doc.ID, *details, po.PONumber)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentFinalized) {
			// Гонку выиграла параллельная попытка. Отдаём её результат.
			return p.finalized(ctx, store, doc.ID)
		}
		return nil, fmt.Errorf("complete document %d: %w", doc.ID, err)
	}

	p.logger.Info("document processed",
		zap.Int64("documentID", doc.ID),
		zap.String("invoiceNumber", details.InvoiceNumber),
		zap.String("vendor", details.Vendor),
		zap.Int64("amountCents", details.AmountCents),
		zap.String("poNumber", po.PONumber),
	)

	return updated, nil
}

func (p *Processor) finalized(ctx context.Context, store Store, documentID int64) (*model.Document, error) {
	current, err := store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("reread finalized document %d: %w", documentID, err)
	}
	if current.Status != model.DocumentStatusProcessed {
		return nil, fmt.Errorf("document %d finalized as %s: %w", documentID, current.Status, repository.ErrDocumentFinalized)
	}
	return current, nil
}

func (p *Processor) fail(ctx context.Context, store Store, documentID int64, reason Reason, cause error) error {
	if err := store.MarkDocumentFailed(ctx, documentID); err != nil {
		p.logger.Error("mark document failed",
			zap.Int64("documentID", documentID),
			zap.Error(err),
		)
	}

	p.logger.Warn("document processing failed",
		zap.Int64("documentID", documentID),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)

	return &ProcessingError{DocumentID: documentID, Reason: reason, Err: cause}
}
