// Package handler содержит HTTP-обработчики API сервиса докфлоу.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/docflow-system/internal/dispatch"
	"github.com/mmeshcher/docflow-system/internal/model"
	"github.com/mmeshcher/docflow-system/internal/repository"
	"github.com/mmeshcher/docflow-system/internal/validation"
)

// Repository определяет контракт доступа к данным, используемый HTTP-обработчиками.
type Repository interface {
	CreateDocument(ctx context.Context, fileKey string) (*model.Document, error)
	GetDocument(ctx context.Context, documentID int64) (*model.Document, error)
	ListDocuments(ctx context.Context) ([]model.Document, error)
	ListPurchaseOrders(ctx context.Context) ([]model.PurchaseOrder, error)
}

// Dispatcher определяет контракт гибридной обработки загруженного документа.
type Dispatcher interface {
	Dispatch(ctx context.Context, doc model.Document) (*dispatch.Result, error)
}

// Queue определяет контракт постановки фонового задания.
type Queue interface {
	Enqueue(ctx context.Context, job model.ProcessingJob) error
}

// FileStorage определяет контракт сохранения загруженных файлов.
type FileStorage interface {
	Store(ctx context.Context, fileName string, r io.Reader, size int64) (string, error)
}

// Handler реализует HTTP-обработчики API сервиса докфлоу.
type Handler struct {
	repo       Repository
	files      FileStorage
	dispatcher Dispatcher
	queue      Queue
	logger     *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(repo Repository, files FileStorage, dispatcher Dispatcher, queue Queue, logger *zap.Logger) *Handler {
	return &Handler{
		repo:       repo,
		files:      files,
		dispatcher: dispatcher,
		queue:      queue,
		logger:     logger,
	}
}

type documentResponse struct {
	ID            int64    `json:"id"`
	FileName      string   `json:"file_name"`
	InvoiceNumber *string  `json:"invoice_number,omitempty"`
	Vendor        *string  `json:"vendor,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	PONumber      *string  `json:"po_number,omitempty"`
	Status        string   `json:"status"`
	UploadedAt    string   `json:"uploaded_at"`
}

func newDocumentResponse(d model.Document) documentResponse {
	resp := documentResponse{
		ID:            d.ID,
		FileName:      d.DisplayFileName(),
		InvoiceNumber: d.InvoiceNumber,
		Vendor:        d.Vendor,
		PONumber:      d.PONumber,
		Status:        string(d.Status),
		UploadedAt:    d.CreatedAt.Format(time.RFC3339),
	}
	if d.AmountCents != nil {
		amount := model.AmountFromCents(*d.AmountCents)
		resp.TotalAmount = &amount
	}
	return resp
}

type uploadedFile struct {
	name string
	data []byte
}

// readUpload читает и проверяет один загруженный файл: только PDF, не больше
// предельного размера.
func (h *Handler) readUpload(header *multipart.FileHeader) (*uploadedFile, bool) {
	if !validation.IsAllowedSize(header.Size) {
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxDocumentSize+1))
	if err != nil {
		return nil, false
	}

	if int64(len(data)) > validation.MaxDocumentSize {
		return nil, false
	}
	if !validation.IsValidDocument(header.Filename, data) {
		return nil, false
	}

	return &uploadedFile{name: header.Filename, data: data}, true
}

func (h *Handler) storeAndCreate(ctx context.Context, upload *uploadedFile) (*model.Document, error) {
	key, err := h.files.Store(ctx, upload.name, bytes.NewReader(upload.data), int64(len(upload.data)))
	if err != nil {
		return nil, err
	}
	return h.repo.CreateDocument(ctx, key)
}

// UploadDocument принимает один PDF-документ, сохраняет его и запускает
// гибридную обработку. Ответ всегда успешный: либо обработанный документ,
// либо документ, ожидающий фоновой обработки.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	_, header, err := r.FormFile("document")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	upload, ok := h.readUpload(header)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	doc, err := h.storeAndCreate(r.Context(), upload)
	if err != nil {
		h.logger.Error("store uploaded document", zap.Error(err), zap.String("file", header.Filename))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), *doc)
	if err != nil {
		h.logger.Error("dispatch document", zap.Error(err), zap.Int64("documentID", doc.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newDocumentResponse(*result.Document))
}

// UploadDocuments принимает несколько PDF-документов и ставит каждый в очередь
// фоновой обработки без синхронной попытки.
func (h *Handler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(validation.MaxDocumentSize); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["documents"]
	if len(headers) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	uploads := make([]*uploadedFile, 0, len(headers))
	for _, header := range headers {
		upload, ok := h.readUpload(header)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		uploads = append(uploads, upload)
	}

	resp := make([]documentResponse, 0, len(uploads))
	for _, upload := range uploads {
		doc, err := h.storeAndCreate(r.Context(), upload)
		if err != nil {
			h.logger.Error("store uploaded document", zap.Error(err), zap.String("file", upload.name))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		job := model.ProcessingJob{DocumentID: doc.ID, Attempt: 1, NextRetryAt: time.Now()}
		if err := h.queue.Enqueue(r.Context(), job); err != nil {
			h.logger.Error("enqueue document", zap.Error(err), zap.Int64("documentID", doc.ID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		resp = append(resp, newDocumentResponse(*doc))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListDocuments возвращает документы для панели мониторинга, новые первыми.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.repo.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("list documents", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, newDocumentResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetDocument возвращает документ по идентификатору для опроса статуса.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	doc, err := h.repo.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get document", zap.Error(err), zap.Int64("documentID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newDocumentResponse(*doc))
}

type purchaseOrderResponse struct {
	PONumber string  `json:"po_number"`
	Vendor   string  `json:"vendor"`
	Amount   float64 `json:"amount"`
}

// ListPurchaseOrders возвращает справочник заказов на поставку.
func (h *Handler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.ListPurchaseOrders(r.Context())
	if err != nil {
		h.logger.Error("list purchase orders", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]purchaseOrderResponse, 0, len(orders))
	for _, po := range orders {
		resp = append(resp, purchaseOrderResponse{
			PONumber: po.PONumber,
			Vendor:   po.Vendor,
			Amount:   model.AmountFromCents(po.AmountCents),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
