package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecognize_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/mock-ai-extract" {
			t.Fatalf("path = %s, want /api/mock-ai-extract", r.URL.Path)
		}

		var req recognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text == "" {
			t.Fatalf("expected non-empty text")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"invoice_number":"INV-5587","total_amount":"584.00","vendor":"Vendor 5"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	raw, err := client.Recognize(ctx, "Invoice Number: INV-5587, Total: 584.00, Vendor: Vendor 5")
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}

	if raw["invoice_number"] != "INV-5587" {
		t.Fatalf("invoice_number = %v, want INV-5587", raw["invoice_number"])
	}
	if raw["total_amount"] != "584.00" {
		t.Fatalf("total_amount = %v, want 584.00", raw["total_amount"])
	}
	if raw["vendor"] != "Vendor 5" {
		t.Fatalf("vendor = %v, want Vendor 5", raw["vendor"])
	}
}

func TestRecognize_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.Recognize(ctx, "some text"); err == nil {
		t.Fatalf("expected error for status 404")
	}
}

func TestRecognize_NotConfigured(t *testing.T) {
	client := NewClient("")

	if _, err := client.Recognize(context.Background(), "text"); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
