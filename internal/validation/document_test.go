package validation

import (
	"bytes"
	"testing"
)

func TestIsValidDocument(t *testing.T) {
	pdfContent := []byte("%PDF-1.4\nfake body")

	tests := []struct {
		name     string
		fileName string
		data     []byte
		want     bool
	}{
		{name: "pdf", fileName: "invoice.pdf", data: pdfContent, want: true},
		{name: "upper case extension", fileName: "INVOICE.PDF", data: pdfContent, want: true},
		{name: "txt extension", fileName: "file.txt", data: pdfContent, want: false},
		{name: "pdf extension, plain content", fileName: "invoice.pdf", data: []byte("hello"), want: false},
		{name: "empty content", fileName: "invoice.pdf", data: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidDocument(tt.fileName, tt.data); got != tt.want {
				t.Errorf("IsValidDocument(%q) = %v, want %v", tt.fileName, got, tt.want)
			}
		})
	}
}

func TestIsAllowedSize(t *testing.T) {
	if !IsAllowedSize(int64(len(bytes.Repeat([]byte("a"), 100)))) {
		t.Error("small file must be allowed")
	}
	if !IsAllowedSize(MaxDocumentSize) {
		t.Error("file of exactly the limit must be allowed")
	}
	if IsAllowedSize(MaxDocumentSize + 1) {
		t.Error("file above the limit must be rejected")
	}
	if IsAllowedSize(0) {
		t.Error("empty file must be rejected")
	}
}
