package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/docflow-system/internal/dispatch"
	"github.com/mmeshcher/docflow-system/internal/model"
	"github.com/mmeshcher/docflow-system/internal/repository"
	"github.com/mmeshcher/docflow-system/internal/validation"
)

type stubRepo struct {
	docs   map[int64]*model.Document
	nextID int64
	orders []model.PurchaseOrder
}

func newStubRepo() *stubRepo {
	return &stubRepo{docs: make(map[int64]*model.Document)}
}

func (s *stubRepo) CreateDocument(ctx context.Context, fileKey string) (*model.Document, error) {
	s.nextID++
	doc := &model.Document{
		ID:        s.nextID,
		FileKey:   fileKey,
		Status:    model.DocumentStatusPending,
		CreatedAt: time.Now(),
	}
	s.docs[doc.ID] = doc
	return doc, nil
}

func (s *stubRepo) GetDocument(ctx context.Context, documentID int64) (*model.Document, error) {
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *stubRepo) ListDocuments(ctx context.Context) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (s *stubRepo) ListPurchaseOrders(ctx context.Context) ([]model.PurchaseOrder, error) {
	return s.orders, nil
}

type stubFiles struct {
	stored []string
	err    error
}

func (s *stubFiles) Store(ctx context.Context, fileName string, r io.Reader, size int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	key := "documents/" + fileName
	s.stored = append(s.stored, key)
	return key, nil
}

type stubDispatcher struct {
	result *dispatch.Result
	err    error
	calls  int
}

func (s *stubDispatcher) Dispatch(ctx context.Context, doc model.Document) (*dispatch.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &dispatch.Result{Document: &doc}, nil
}

type stubJobQueue struct {
	jobs []model.ProcessingJob
	err  error
}

func (s *stubJobQueue) Enqueue(ctx context.Context, job model.ProcessingJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type fixture struct {
	repo       *stubRepo
	files      *stubFiles
	dispatcher *stubDispatcher
	queue      *stubJobQueue
	server     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:       newStubRepo(),
		files:      &stubFiles{},
		dispatcher: &stubDispatcher{},
		queue:      &stubJobQueue{},
	}

	h := NewHandler(f.repo, f.files, f.dispatcher, f.queue, zap.NewNop())
	f.server = httptest.NewServer(h.SetupRouter())
	t.Cleanup(f.server.Close)

	return f
}

func pdfContent() []byte {
	return []byte("%PDF-1.4 test invoice body")
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func TestUploadDocument_ProcessedSynchronously(t *testing.T) {
	f := newFixture(t)

	invoiceNumber := "INV-5587"
	vendor := "Vendor 5"
	amountCents := int64(58400)
	poNumber := "PO-12345"
	f.dispatcher.result = &dispatch.Result{
		Document: &model.Document{
			ID:            1,
			FileKey:       "documents/invoice_a1b2.pdf",
			InvoiceNumber: &invoiceNumber,
			Vendor:        &vendor,
			AmountCents:   &amountCents,
			PONumber:      &poNumber,
			Status:        model.DocumentStatusProcessed,
			CreatedAt:     time.Now(),
		},
		Completed: true,
	}

	body, contentType := multipartBody(t, "document", map[string][]byte{"invoice.pdf": pdfContent()})
	resp, err := http.Post(f.server.URL+"/api/documents", contentType, body)
	if err != nil {
		t.Fatalf("post document: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got.Status != string(model.DocumentStatusProcessed) {
		t.Errorf("status = %s, want processed", got.Status)
	}
	if got.InvoiceNumber == nil || *got.InvoiceNumber != invoiceNumber {
		t.Errorf("invoice_number = %v, want %s", got.InvoiceNumber, invoiceNumber)
	}
	if got.TotalAmount == nil || *got.TotalAmount != 584.00 {
		t.Errorf("total_amount = %v, want 584.00", got.TotalAmount)
	}
	if got.PONumber == nil || *got.PONumber != poNumber {
		t.Errorf("po_number = %v, want %s", got.PONumber, poNumber)
	}
	if f.dispatcher.calls != 1 {
		t.Errorf("dispatcher called %d times, want 1", f.dispatcher.calls)
	}
}

func TestUploadDocument_RejectsNonPDF(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		fileName string
		data     []byte
	}{
		{name: "wrong extension", fileName: "invoice.txt", data: pdfContent()},
		{name: "wrong magic bytes", fileName: "invoice.pdf", data: []byte("plain text pretending to be pdf")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, "document", map[string][]byte{tt.fileName: tt.data})
			resp, err := http.Post(f.server.URL+"/api/documents", contentType, body)
			if err != nil {
				t.Fatalf("post document: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
			}
		})
	}

	if len(f.files.stored) != 0 {
		t.Errorf("rejected uploads must not be stored, stored %d", len(f.files.stored))
	}
	if f.dispatcher.calls != 0 {
		t.Errorf("dispatcher called %d times, want 0", f.dispatcher.calls)
	}
}

func TestUploadDocument_RejectsOversized(t *testing.T) {
	f := newFixture(t)

	data := append([]byte("%PDF-1.4"), bytes.Repeat([]byte("a"), int(validation.MaxDocumentSize))...)
	body, contentType := multipartBody(t, "document", map[string][]byte{"invoice.pdf": data})
	resp, err := http.Post(f.server.URL+"/api/documents", contentType, body)
	if err != nil {
		t.Fatalf("post document: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestUploadDocuments_BulkEnqueuesEachDocument(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, "documents", map[string][]byte{
		"first.pdf":  pdfContent(),
		"second.pdf": pdfContent(),
	})
	resp, err := http.Post(f.server.URL+"/api/documents/bulk", contentType, body)
	if err != nil {
		t.Fatalf("post documents: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got []documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("documents in response = %d, want 2", len(got))
	}
	for _, doc := range got {
		if doc.Status != string(model.DocumentStatusPending) {
			t.Errorf("document %d status = %s, want pending", doc.ID, doc.Status)
		}
	}

	if len(f.queue.jobs) != 2 {
		t.Fatalf("enqueued jobs = %d, want 2", len(f.queue.jobs))
	}
	for _, job := range f.queue.jobs {
		if job.Attempt != 1 {
			t.Errorf("job attempt = %d, want 1", job.Attempt)
		}
	}
	if f.dispatcher.calls != 0 {
		t.Errorf("bulk upload must not dispatch synchronously, dispatcher called %d times", f.dispatcher.calls)
	}
}

func TestUploadDocuments_RejectsBatchWithInvalidFile(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, "documents", map[string][]byte{
		"good.pdf": pdfContent(),
		"bad.txt":  []byte("not a pdf"),
	})
	resp, err := http.Post(f.server.URL+"/api/documents/bulk", contentType, body)
	if err != nil {
		t.Fatalf("post documents: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if len(f.files.stored) != 0 {
		t.Errorf("invalid batch must not be stored, stored %d", len(f.files.stored))
	}
	if len(f.queue.jobs) != 0 {
		t.Errorf("invalid batch must not be enqueued, enqueued %d", len(f.queue.jobs))
	}
}

func TestGetDocument(t *testing.T) {
	f := newFixture(t)

	doc, err := f.repo.CreateDocument(context.Background(), "documents/invoice_a1b2c3.pdf")
	if err != nil {
		t.Fatalf("create document: %v", err)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "existing document", path: fmt.Sprintf("/api/documents/%d", doc.ID), wantStatus: http.StatusOK},
		{name: "missing document", path: "/api/documents/999", wantStatus: http.StatusNotFound},
		{name: "malformed id", path: "/api/documents/abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + tt.path)
			if err != nil {
				t.Fatalf("get document: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			if tt.wantStatus == http.StatusOK {
				var got documentResponse
				if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if got.FileName != "invoice.pdf" {
					t.Errorf("file_name = %s, want invoice.pdf", got.FileName)
				}
			}
		})
	}
}

func TestListDocuments(t *testing.T) {
	f := newFixture(t)

	for _, key := range []string{"documents/first.pdf", "documents/second.pdf"} {
		if _, err := f.repo.CreateDocument(context.Background(), key); err != nil {
			t.Fatalf("create document: %v", err)
		}
	}

	resp, err := http.Get(f.server.URL + "/api/documents")
	if err != nil {
		t.Fatalf("get documents: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got []documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("documents in response = %d, want 2", len(got))
	}
}

func TestListPurchaseOrders(t *testing.T) {
	f := newFixture(t)
	f.repo.orders = []model.PurchaseOrder{
		{ID: 1, PONumber: "PO-1001", Vendor: "Vendor 1", AmountCents: 50000},
		{ID: 2, PONumber: "PO-1004", Vendor: "Vendor 5", AmountCents: 58400},
	}

	resp, err := http.Get(f.server.URL + "/api/purchase-orders")
	if err != nil {
		t.Fatalf("get purchase orders: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got []purchaseOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("orders in response = %d, want 2", len(got))
	}
	if got[1].Amount != 584.00 {
		t.Errorf("amount = %v, want 584.00", got[1].Amount)
	}
}

func TestMockRecognize(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{
			name: "all fields present",
			text: "Invoice Number: INV-5587, Total: 584.00\nVendor: Vendor 5\n",
			want: map[string]any{"invoice_number": "INV-5587", "total_amount": "584.00", "vendor": "Vendor 5"},
		},
		{
			name: "missing fields come back as null",
			text: "quarterly report without invoice markers",
			want: map[string]any{"invoice_number": nil, "total_amount": nil, "vendor": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(map[string]string{"text": tt.text})
			if err != nil {
				t.Fatalf("marshal request: %v", err)
			}

			resp, err := http.Post(f.server.URL+"/api/mock-ai-extract", "application/json", bytes.NewReader(payload))
			if err != nil {
				t.Fatalf("post text: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}

			var got map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode response: %v", err)
			}

			for field, want := range tt.want {
				if got[field] != want {
					t.Errorf("%s = %v, want %v", field, got[field], want)
				}
			}
		})
	}
}
