// Package storage реализует хранение загруженных файлов в S3-совместимом
// объектном хранилище.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config содержит параметры подключения к объектному хранилищу.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStorage хранит файлы документов в бакете MinIO. Ключ объекта служит
// storage reference документа; после успешного Store файл считается
// сохранённым надёжно.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage создаёт клиент хранилища и убеждается, что бакет существует.
func NewMinioStorage(cfg Config) (*MinioStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

// Store загружает содержимое файла и возвращает ключ объекта. К имени файла
// добавляется уникальный суффикс, чтобы повторные загрузки не затирали друг друга.
func (s *MinioStorage) Store(ctx context.Context, fileName string, r io.Reader, size int64) (string, error) {
	key := objectKey(fileName)

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("store object %s: %w", key, err)
	}

	return key, nil
}

// Read возвращает содержимое сохранённого файла по ключу объекта.
func (s *MinioStorage) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	return data, nil
}

func objectKey(fileName string) string {
	ext := path.Ext(fileName)
	stem := strings.TrimSuffix(path.Base(fileName), ext)
	if stem == "" || stem == "." {
		stem = "document"
	}
	return fmt.Sprintf("documents/%s_%s%s", stem, uuid.NewString(), ext)
}
