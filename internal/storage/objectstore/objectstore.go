// Пакет objectstore — хранение загруженных аудио-фрагментов в MinIO (S3 API).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
)

// Store — интерфейс файлового хранилища аудио-фрагментов.
// Реализация — MinIO; интерфейс позволяет подменять хранилище в тестах.
type Store interface {
	// Put сохраняет объект под ключом key. Содержимое читается из r целиком.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Remove удаляет объект. Используется компенсацией оркестратора.
	Remove(ctx context.Context, key string) error
	// CheckReady проверяет доступность хранилища (readiness probe).
	CheckReady(ctx context.Context) error
}

// MinioStore — реализация Store поверх MinIO.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New создаёт клиент MinIO и гарантирует существование бакета.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}

	s := &MinioStore{
		client: client,
		bucket: cfg.S3Bucket,
		logger: logger.With("component", "objectstore"),
	}

	exists, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки бакета %s: %w", cfg.S3Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета %s: %w", cfg.S3Bucket, err)
		}
		s.logger.Info("Бакет создан", "bucket", cfg.S3Bucket)
	}

	s.logger.Info("Хранилище MinIO инициализировано",
		"endpoint", cfg.S3Endpoint,
		"bucket", cfg.S3Bucket,
	)
	return s, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения объекта %s: %w", key, err)
	}

	s.logger.Debug("Объект сохранён",
		"key", key,
		"size", size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	s.logger.Debug("Объект удалён", "key", key)
	return nil
}

func (s *MinioStore) CheckReady(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("хранилище MinIO недоступно: %w", err)
	}
	return nil
}

// GenerateKey формирует уникальный ключ объекта для загруженного файла:
// unix-время в наносекундах, UUID и исходное расширение файла.
// Имя, выбранное клиентом, в ключ не попадает.
func GenerateKey(originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
}
