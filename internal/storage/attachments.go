// Package storage uploads message attachments to object storage and returns
// the links that are stored on the chat.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/apperrors"
)

// Uploader stores a blob and returns an opaque link to it.
type Uploader interface {
	Upload(ctx context.Context, data []byte, meta Metadata) (string, error)
	Delete(ctx context.Context, link string) error
}

// Metadata describes an object being uploaded.
type Metadata struct {
	Name        string
	ContentType string
	Folder      string
}

// File is a raw attachment received from a client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Limits bounds what a single message may carry.
type Limits struct {
	MaxFiles     int
	MaxFileBytes int
	AllowedTypes []string
}

// DefaultAllowedTypes is the attachment allow-list used when none is configured.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/zip",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// ValidateFiles checks count, size and detected content type of every file
// before anything is uploaded. The detected type replaces whatever the client
// claimed.
func ValidateFiles(files []File, limits Limits) ([]File, error) {
	if len(files) == 0 {
		return nil, apperrors.BadRequest("at least one file is required", nil)
	}
	if limits.MaxFiles > 0 && len(files) > limits.MaxFiles {
		return nil, apperrors.BadRequest(fmt.Sprintf("too many attachments: %d (max %d)", len(files), limits.MaxFiles), nil)
	}
	allowed := limits.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}

	checked := make([]File, 0, len(files))
	for i, f := range files {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("file %d", i+1)
		}
		if len(f.Data) == 0 {
			return nil, apperrors.BadRequest(name+" is empty", nil)
		}
		if limits.MaxFileBytes > 0 && len(f.Data) > limits.MaxFileBytes {
			return nil, apperrors.BadRequest(fmt.Sprintf("%s exceeds %d bytes", name, limits.MaxFileBytes), nil)
		}

		detected := mimetype.Detect(f.Data)
		if !isAllowed(detected, allowed) {
			return nil, apperrors.BadRequest(fmt.Sprintf("%s has disallowed type %s", name, detected.String()), nil)
		}
		f.ContentType = detected.String()
		if f.Name == "" {
			f.Name = "attachment" + detected.Extension()
		}
		checked = append(checked, f)
	}
	return checked, nil
}

func isAllowed(detected *mimetype.MIME, allowed []string) bool {
	for _, candidate := range allowed {
		if detected.Is(candidate) {
			return true
		}
	}
	return false
}

// UploadAll uploads validated files one by one, each under its own timeout.
// When any upload fails the ones already stored are deleted again so that a
// failed message leaves no orphaned objects.
func UploadAll(ctx context.Context, uploader Uploader, files []File, folder string, timeout time.Duration, log logrus.FieldLogger) ([]string, error) {
	if uploader == nil {
		return nil, apperrors.BadRequest("attachments are not enabled", nil)
	}

	links := make([]string, 0, len(files))
	for _, f := range files {
		link, err := uploadOne(ctx, uploader, f, folder, timeout)
		if err != nil {
			DeleteAll(ctx, uploader, links, timeout, log)
			return nil, apperrors.Internal("could not upload "+f.Name, err)
		}
		links = append(links, link)
	}
	return links, nil
}

func uploadOne(ctx context.Context, uploader Uploader, f File, folder string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return uploader.Upload(ctx, f.Data, Metadata{Name: f.Name, ContentType: f.ContentType, Folder: folder})
}

// DeleteAll removes previously uploaded objects. It runs even when ctx is
// already cancelled, and failures are only logged.
func DeleteAll(ctx context.Context, uploader Uploader, links []string, timeout time.Duration, log logrus.FieldLogger) {
	for _, link := range links {
		dctx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc = func() {}
		if timeout > 0 {
			dctx, cancel = context.WithTimeout(dctx, timeout)
		}
		if err := uploader.Delete(dctx, link); err != nil && log != nil {
			log.WithError(err).WithField("link", link).Warn("could not remove orphaned attachment")
		}
		cancel()
	}
}
