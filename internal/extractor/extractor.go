// Package extractor извлекает реквизиты счёта из содержимого документа:
// текстовый слой PDF передаётся сервису распознавания, а его нестрого
// типизированный ответ валидируется в model.InvoiceDetails.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/docflow-system/internal/model"
)

// ErrExtractionFailed возвращается, когда реквизиты извлечь не удалось:
// нечитаемый документ, недоступный сервис распознавания или невалидный ответ.
var (
	ErrExtractionFailed = errors.New("invoice extraction failed")
	// ErrMissingInvoiceNumber возвращается, когда в распознанном ответе нет номера счёта.
	ErrMissingInvoiceNumber = errors.New("invoice number not found in recognition response")
)

// Recognizer описывает контракт сервиса распознавания реквизитов.
type Recognizer interface {
	Recognize(ctx context.Context, text string) (map[string]any, error)
}

// Extractor извлекает и валидирует реквизиты счёта из сырого документа.
type Extractor struct {
	recognizer  Recognizer
	extractText func(data []byte) (string, error)
	logger      *zap.Logger
}

// New создаёт экстрактор поверх указанного сервиса распознавания.
func New(recognizer Recognizer, logger *zap.Logger) *Extractor {
	return &Extractor{
		recognizer:  recognizer,
		extractText: ExtractText,
		logger:      logger,
	}
}

// Extract возвращает полностью заполненные реквизиты счёта либо ошибку.
// Частично заполненных реквизитов не бывает: любой дефект ответа
// распознавания означает отказ целиком.
func (e *Extractor) Extract(ctx context.Context, raw []byte) (*model.InvoiceDetails, error) {
	text, err := e.extractText(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	payload, err := e.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	details, fieldErrs := model.InvoiceDetailsFromRaw(payload)
	if details == nil {
		e.logger.Error("recognition response rejected",
			zap.Any("raw", payload),
			zap.Any("field_errors", fieldErrs),
		)

		if _, ok := fieldErrs["invoice_number"]; ok {
			return nil, fmt.Errorf("%w: %v", ErrMissingInvoiceNumber, fieldErrs)
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, fieldErrs)
	}

	return details, nil
}
