package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"blogCPT/internal/config"
)

// Storage keeps post cover images.
type Storage interface {
	UploadImage(ctx context.Context, postID string, fileName string, file io.Reader, size int64) (string, string, error)
	DeleteImage(ctx context.Context, objectName string) error
}

type MinIOClient struct {
	client    *minio.Client
	bucket    string
	publicURL string
	log       logrus.FieldLogger
}

// NewMinIOClient connects to MinIO and creates the image bucket when it is missing.
func NewMinIOClient(ctx context.Context, cfg config.MinIO, log logrus.FieldLogger) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки бакета %s: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета %s: %w", cfg.BucketName, err)
		}
		log.WithField("bucket", cfg.BucketName).Info("bucket created")
	}

	return &MinIOClient{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		log:       log,
	}, nil
}

func (m *MinIOClient) UploadImage(ctx context.Context, postID string, fileName string, file io.Reader, size int64) (string, string, error) {
	now := time.Now()
	objectName := ObjectName(postID, fileName, now)

	_, err := m.client.PutObject(ctx, m.bucket, objectName, file, size,
		minio.PutObjectOptions{
			ContentType: ContentType(fileName),
			UserMetadata: map[string]string{
				"original-filename": fileName,
				"post-id":           postID,
				"uploaded-at":       now.UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return "", "", fmt.Errorf("ошибка загрузки в MinIO: %w", err)
	}

	m.log.WithFields(logrus.Fields{"post_id": postID, "object": objectName, "size": size}).Debug("image uploaded")
	return objectName, PublicURL(m.publicURL, m.bucket, objectName), nil
}

func (m *MinIOClient) DeleteImage(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("ошибка удаления из MinIO: %w", err)
	}
	return nil
}

// ObjectName lays cover images out as posts/<post>/<year>/<month>/<uuid><ext>.
func ObjectName(postID, fileName string, now time.Time) string {
	return fmt.Sprintf("posts/%s/%d/%02d/%s%s",
		postID,
		now.Year(),
		now.Month(),
		uuid.New().String(),
		extension(fileName))
}

func ContentType(fileName string) string {
	contentType := mime.TypeByExtension(extension(fileName))
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}

func PublicURL(base, bucket, objectName string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(base, "/"), bucket, objectName)
}

func extension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return ".jpg"
	}
	return ext
}
