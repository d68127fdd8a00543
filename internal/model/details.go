package model

import (
	"sort"
	"strings"
)

// InvoiceDetails содержит проверенные реквизиты счёта, извлечённые из документа.
// Экземпляр существует только если все три поля прошли валидацию; частично
// заполненных реквизитов не бывает.
type InvoiceDetails struct {
	InvoiceNumber string
	AmountCents   int64
	Vendor        string
}

// FieldErrors перечисляет поля сырого ответа распознавания, не прошедшие
// валидацию, и причины отказа.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("invalid invoice details: ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(e[f])
	}
	return b.String()
}

// InvoiceDetailsFromRaw валидирует нестрого типизированный ответ сервиса
// распознавания и приводит его к InvoiceDetails. При любой ошибке валидации
// возвращается nil и перечень отвергнутых полей.
func InvoiceDetailsFromRaw(raw map[string]any) (*InvoiceDetails, FieldErrors) {
	errs := FieldErrors{}

	invoiceNumber := stringField(raw, "invoice_number", errs)
	vendor := stringField(raw, "vendor", errs)

	var amountCents int64
	if v, ok := raw["total_amount"]; !ok || v == nil {
		errs["total_amount"] = "missing"
	} else if cents, err := ParseAmountCents(v); err != nil {
		errs["total_amount"] = err.Error()
	} else {
		amountCents = cents
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &InvoiceDetails{
		InvoiceNumber: invoiceNumber,
		AmountCents:   amountCents,
		Vendor:        vendor,
	}, nil
}

func stringField(raw map[string]any, key string, errs FieldErrors) string {
	v, ok := raw[key]
	if !ok || v == nil {
		errs[key] = "missing"
		return ""
	}

	s, ok := v.(string)
	if !ok {
		errs[key] = "not a string"
		return ""
	}

	s = strings.TrimSpace(s)
	if s == "" {
		errs[key] = "empty"
		return ""
	}

	return s
}
