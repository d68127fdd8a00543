// Package model содержит доменные сущности сервиса докфлоу.
package model

import (
	"regexp"
	"strings"
	"time"
)

// DocumentStatus описывает статус обработки документа.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusProcessed DocumentStatus = "processed"
	DocumentStatusFailed    DocumentStatus = "failed"
	DocumentStatusAbandoned DocumentStatus = "abandoned"
)

// IsTerminal сообщает, является ли статус финальным: из processed и abandoned
// переходы запрещены. Статус failed финальным не считается — следующая попытка
// может довести документ до processed.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusProcessed || s == DocumentStatusAbandoned
}

// Document описывает загруженный счёт, извлечённые реквизиты и статус обработки.
// Необязательные поля заполняются только при переходе в processed.
type Document struct {
	ID            int64
	FileKey       string
	InvoiceNumber *string
	Vendor        *string
	AmountCents   *int64
	PONumber      *string
	Status        DocumentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var uploadSuffixRe = regexp.MustCompile(`_[0-9a-f-]+(\.[^.]+)$`)

// DisplayFileName возвращает имя файла для отображения: без префикса каталога
// и без уникального суффикса, добавленного при сохранении.
func (d Document) DisplayFileName() string {
	name := strings.TrimPrefix(d.FileKey, "documents/")
	return uploadSuffixRe.ReplaceAllString(name, "$1")
}

// PurchaseOrder описывает заказ на поставку — справочную запись,
// с которой сверяется счёт. Сервис докфлоу заказы не изменяет.
type PurchaseOrder struct {
	ID          int64
	PONumber    string
	Vendor      string
	AmountCents int64
}

// ProcessingJob описывает задание фоновой обработки документа,
// передаваемое через очередь.
type ProcessingJob struct {
	DocumentID  int64
	Attempt     int
	NextRetryAt time.Time
}
