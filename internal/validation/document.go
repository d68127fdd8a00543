// Package validation содержит проверки загружаемых документов.
package validation

import (
	"bytes"
	"strings"
)

// MaxDocumentSize — предельный размер загружаемого документа, 10 МБ.
const MaxDocumentSize = 10 << 20

var pdfMagic = []byte("%PDF")

// IsValidDocument проверяет, что файл выглядит как PDF: расширение .pdf и
// сигнатура %PDF в начале содержимого. Гарантий корректности формата проверка
// не даёт — нечитаемый файл отсеет экстрактор.
func IsValidDocument(fileName string, data []byte) bool {
	if !strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return false
	}
	return bytes.HasPrefix(data, pdfMagic)
}

// IsAllowedSize проверяет, что размер файла не превышает предельный.
func IsAllowedSize(size int64) bool {
	return size > 0 && size <= MaxDocumentSize
}
