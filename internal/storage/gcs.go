package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const gcsHost = "https://storage.googleapis.com/"

// GCSUploader stores attachments in a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket, credentialsPath string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload writes data to <folder>/<uuid>-<timestamp><ext> and returns its public URL.
func (u *GCSUploader) Upload(ctx context.Context, data []byte, meta Metadata) (string, error) {
	name := objectName(meta, time.Now())

	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = meta.ContentType
	w.CacheControl = "private, max-age=86400"
	if meta.Name != "" {
		w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", meta.Name)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object writer: %w", err)
	}
	return gcsHost + u.bucket + "/" + name, nil
}

// Delete removes an object previously returned by Upload.
func (u *GCSUploader) Delete(ctx context.Context, link string) error {
	name, err := u.objectFromLink(link)
	if err != nil {
		return err
	}
	if err := u.client.Bucket(u.bucket).Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func (u *GCSUploader) objectFromLink(link string) (string, error) {
	if !strings.HasPrefix(link, gcsHost) {
		return "", fmt.Errorf("not a storage link: %s", link)
	}
	parts := strings.SplitN(strings.TrimPrefix(link, gcsHost), "/", 2)
	if len(parts) != 2 || parts[0] != u.bucket || parts[1] == "" {
		return "", fmt.Errorf("link does not belong to bucket %s", u.bucket)
	}
	return parts[1], nil
}

func objectName(meta Metadata, now time.Time) string {
	folder := strings.Trim(meta.Folder, "/")
	if folder == "" {
		folder = "attachments"
	}
	ext := strings.ToLower(path.Ext(meta.Name))
	return fmt.Sprintf("%s/%s-%s%s", folder, uuid.NewString(), now.UTC().Format("20060102150405"), ext)
}
