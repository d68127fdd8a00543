package handler

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// Регулярные выражения имитируют распознавание реквизитов моделью.
var (
	invoiceNumberRe = regexp.MustCompile(`(?i)Invoice Number:\s*([^\s,]+)`)
	totalAmountRe   = regexp.MustCompile(`(?i)Total:\s*([\d.]+)`)
	vendorRe        = regexp.MustCompile(`(?im)Vendor:\s*(.+)$`)
)

type recognizeRequest struct {
	Text string `json:"text"`
}

// MockRecognize — заглушка сервиса распознавания. Принимает извлечённый текст
// документа и возвращает нестрого типизированный ответ в формате реальной
// модели: строки либо null, сумма — строкой вида "584.00".
func (h *Handler) MockRecognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	resp := map[string]any{
		"invoice_number": nil,
		"total_amount":   nil,
		"vendor":         nil,
	}

	if m := invoiceNumberRe.FindStringSubmatch(req.Text); m != nil {
		resp["invoice_number"] = m[1]
	}
	if m := totalAmountRe.FindStringSubmatch(req.Text); m != nil {
		resp["total_amount"] = m[1]
	}
	if m := vendorRe.FindStringSubmatch(req.Text); m != nil {
		resp["vendor"] = strings.TrimSpace(m[1])
	}

	writeJSON(w, http.StatusOK, resp)
}
