package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/model"
	"github.com/Hussein135-coder/souriana-extract-bot/pkg/logger"
)

// BackupService writes abandoned records to timestamped JSON files so no
// confirmed data is lost when the backend is unreachable. When object
// storage is configured, each file is also mirrored there best-effort.
type BackupService struct {
	dir    string
	mirror *minio.Client
	bucket string

	now func() time.Time
}

func NewBackupService(cfg *config.BackupConfig) (*BackupService, error) {
	svc := &BackupService{
		dir: cfg.Dir,
		now: time.Now,
	}

	if cfg.Minio.Endpoint != "" {
		client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
			Secure: cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		svc.mirror = client
		svc.bucket = cfg.Minio.Bucket
	}

	return svc, nil
}

// EnsureMirrorBucket creates the mirror bucket if it doesn't exist.
// No-op when the mirror is disabled.
func (s *BackupService) EnsureMirrorBucket(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}

	exists, err := s.mirror.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.mirror.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Save serializes the record to a pretty-printed JSON file under the
// backup directory and returns the file path. Filesystem errors are
// returned to the caller, who owns the user-facing message.
func (s *BackupService) Save(ctx context.Context, record model.Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := record.PrettyJSON()
	if err != nil {
		return "", fmt.Errorf("failed to serialize record: %w", err)
	}

	fileName := backupFileName(s.now().UTC())
	filePath := filepath.Join(s.dir, fileName)

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}

	if s.mirror != nil {
		_, err := s.mirror.PutObject(ctx, s.bucket, fileName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			// The local file is the contract; the mirror is best effort.
			logger.Warn(ctx, "failed to mirror backup to object storage", "file", fileName, "error", err)
		}
	}

	return filePath, nil
}

// backupFileName derives a sortable filename from the timestamp, with the
// characters that are unsafe on common filesystems replaced.
func backupFileName(t time.Time) string {
	stamp := t.Format("2006-01-02T15:04:05.000Z07:00")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return fmt.Sprintf("data_%s.json", stamp)
}
