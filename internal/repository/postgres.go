// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/docflow-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDocumentNotFound возвращается, если документ не найден.
var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrPurchaseOrderNotFound возвращается, если подходящий заказ на поставку отсутствует.
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")
	// ErrDocumentFinalized возвращается при попытке изменить документ в финальном статусе.
	ErrDocumentFinalized = errors.New("document already finalized")
)

// Store описывает операции над строками документов и заказов. Реализация
// поверх пула применяется в обычных запросах, реализация поверх транзакции —
// внутри WithDocumentLock, где действует блокировка строки документа.
type Store interface {
	GetDocument(ctx context.Context, documentID int64) (*model.Document, error)
	FindPurchaseOrder(ctx context.Context, vendor string, amountCents int64) (*model.PurchaseOrder, error)
	MarkDocumentFailed(ctx context.Context, documentID int64) error
	MarkDocumentAbandoned(ctx context.Context, documentID int64) error
	CompleteDocument(ctx context.Context, documentID int64, details model.InvoiceDetails, poNumber string) (*model.Document, error)
}

// querier объединяет pgxpool.Pool и pgx.Tx: методы репозитория работают
// одинаково поверх пула и поверх открытой транзакции.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, db: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках БД: сериализация,
// дедлоки, разрывы соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const documentColumns = `id, file_key, invoice_number, vendor, total_amount, po_number, status, created_at, updated_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	var status string
	err := row.Scan(&d.ID, &d.FileKey, &d.InvoiceNumber, &d.Vendor, &d.AmountCents, &d.PONumber, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = model.DocumentStatus(status)
	return &d, nil
}

// CreateDocument сохраняет запись о загруженном файле в статусе pending.
func (r *PostgresRepository) CreateDocument(ctx context.Context, fileKey string) (*model.Document, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO documents (file_key, status) VALUES ($1, $2) RETURNING `+documentColumns,
		fileKey, string(model.DocumentStatusPending),
	)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// GetDocument возвращает документ по идентификатору.
func (r *PostgresRepository) GetDocument(ctx context.Context, documentID int64) (*model.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		documentID,
	)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocuments возвращает документы в порядке загрузки, новые первыми.
func (r *PostgresRepository) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return docs, nil
}

// FindPurchaseOrder ищет заказ с точным совпадением поставщика и суммы.
// При нескольких совпадениях детерминированно выбирается заказ с наименьшим id.
func (r *PostgresRepository) FindPurchaseOrder(ctx context.Context, vendor string, amountCents int64) (*model.PurchaseOrder, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, po_number, vendor, amount
		 FROM purchase_orders
		 WHERE vendor = $1 AND amount = $2
		 ORDER BY id
		 LIMIT 1`,
		vendor, amountCents,
	)

	var po model.PurchaseOrder
	err := row.Scan(&po.ID, &po.PONumber, &po.Vendor, &po.AmountCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseOrderNotFound
		}
		return nil, fmt.Errorf("find purchase order: %w", err)
	}

	return &po, nil
}

// ListPurchaseOrders возвращает справочник заказов на поставку.
func (r *PostgresRepository) ListPurchaseOrders(ctx context.Context) ([]model.PurchaseOrder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, po_number, vendor, amount FROM purchase_orders ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select purchase orders: %w", err)
	}
	defer rows.Close()

	var orders []model.PurchaseOrder
	for rows.Next() {
		var po model.PurchaseOrder
		if err := rows.Scan(&po.ID, &po.PONumber, &po.Vendor, &po.AmountCents); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		orders = append(orders, po)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// MarkDocumentFailed переводит документ в статус failed. Запись выполняется
// атомарным compare-and-set: документ в финальном статусе не изменяется.
func (r *PostgresRepository) MarkDocumentFailed(ctx context.Context, documentID int64) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx,
			`UPDATE documents
			 SET status = $2, updated_at = now()
			 WHERE id = $1 AND status NOT IN ($3, $4)`,
			documentID,
			string(model.DocumentStatusFailed),
			string(model.DocumentStatusProcessed),
			string(model.DocumentStatusAbandoned),
		)
		if err != nil {
			return fmt.Errorf("mark document failed: %w", err)
		}
		return nil
	})
}

// MarkDocumentAbandoned переводит документ в финальный статус abandoned после
// исчерпания попыток. Уже финализированный документ не изменяется.
func (r *PostgresRepository) MarkDocumentAbandoned(ctx context.Context, documentID int64) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx,
			`UPDATE documents
			 SET status = $2, updated_at = now()
			 WHERE id = $1 AND status NOT IN ($3, $4)`,
			documentID,
			string(model.DocumentStatusAbandoned),
			string(model.DocumentStatusProcessed),
			string(model.DocumentStatusAbandoned),
		)
		if err != nil {
			return fmt.Errorf("mark document abandoned: %w", err)
		}
		return nil
	})
}

// CompleteDocument атомарно записывает извлечённые реквизиты, номер заказа и
// статус processed. Если документ уже финализирован другой попыткой,
// возвращается ErrDocumentFinalized и запись не изменяется.
func (r *PostgresRepository) CompleteDocument(ctx context.Context, documentID int64, details model.InvoiceDetails, poNumber string) (*model.Document, error) {
	var doc *model.Document

	err := r.withRetry(ctx, func() error {
		row := r.db.QueryRow(ctx,
			`UPDATE documents
			 SET invoice_number = $2, vendor = $3, total_amount = $4, po_number = $5,
			     status = $6, updated_at = now()
			 WHERE id = $1 AND status NOT IN ($7, $8)
			 RETURNING `+documentColumns,
			documentID,
			details.InvoiceNumber, details.Vendor, details.AmountCents, poNumber,
			string(model.DocumentStatusProcessed),
			string(model.DocumentStatusProcessed),
			string(model.DocumentStatusAbandoned),
		)

		d, err := scanDocument(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDocumentFinalized
			}
			return fmt.Errorf("complete document: %w", err)
		}

		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// WithDocumentLock выполняет fn под блокировкой строки документа. Блокировка
// берётся через SELECT ... FOR UPDATE и удерживается до конца транзакции, так
// что две попытки обработать один документ не выполняются одновременно.
// fn получает Store, привязанный к открытой транзакции, и текущее состояние
// строки, прочитанное уже под блокировкой.
func (r *PostgresRepository) WithDocumentLock(ctx context.Context, documentID int64, fn func(ctx context.Context, store Store, doc *model.Document) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`,
		documentID,
	)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("lock document for update: %w", err)
	}

	txRepo := &PostgresRepository{pool: r.pool, db: tx}

	if err := fn(ctx, txRepo, doc); err != nil {
		// Записи статуса, сделанные fn до ошибки, должны сохраниться:
		// транзакция фиксируется, ошибка отдаётся вызывающему.
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("commit tx after processing error %w: %v", err, commitErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
