package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperrors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type fakeUploader struct {
	mu      sync.Mutex
	failAt  int
	stored  []string
	deleted []string
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, meta Metadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.stored)+1 == f.failAt {
		return "", errors.New("bucket unavailable")
	}
	link := "mem://" + meta.Folder + "/" + meta.Name
	f.stored = append(f.stored, link)
	return link, nil
}

func (f *fakeUploader) Delete(_ context.Context, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, link)
	return nil
}

func TestValidateFiles(t *testing.T) {
	limits := Limits{MaxFiles: 2, MaxFileBytes: 64}

	checked, err := ValidateFiles([]File{
		{Name: "pixel.png", ContentType: "text/plain", Data: pngHeader},
		{Data: []byte("plain notes")},
	}, limits)
	require.NoError(t, err)
	assert.Equal(t, "image/png", checked[0].ContentType)
	assert.True(t, strings.HasPrefix(checked[1].ContentType, "text/plain"))
	assert.Equal(t, "attachment.txt", checked[1].Name)

	tests := []struct {
		name  string
		files []File
	}{
		{"none", nil},
		{"too many", []File{{Data: pngHeader}, {Data: pngHeader}, {Data: pngHeader}}},
		{"empty", []File{{Name: "a.txt"}}},
		{"too large", []File{{Name: "big.txt", Data: []byte(strings.Repeat("a", 65))}}},
		{"disallowed", []File{{Name: "run.sh", Data: []byte("#!/bin/sh\necho hi\n")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateFiles(tt.files, limits)
			assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest), "got %v", err)
		})
	}
}

func TestUploadAllReturnsLinksInOrder(t *testing.T) {
	up := &fakeUploader{}
	log, _ := test.NewNullLogger()

	links, err := UploadAll(context.Background(), up, []File{{Name: "a.png"}, {Name: "b.png"}}, "chats/u1", time.Second, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://chats/u1/a.png", "mem://chats/u1/b.png"}, links)
	assert.Empty(t, up.deleted)
}

func TestUploadAllRollsBackOnFailure(t *testing.T) {
	up := &fakeUploader{failAt: 3}
	log, _ := test.NewNullLogger()

	_, err := UploadAll(context.Background(), up, []File{{Name: "a"}, {Name: "b"}, {Name: "c"}}, "x", time.Second, log)
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	assert.Equal(t, []string{"mem://x/a", "mem://x/b"}, up.deleted)
}

func TestUploadAllWithoutUploader(t *testing.T) {
	_, err := UploadAll(context.Background(), nil, []File{{Name: "a"}}, "x", time.Second, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

func TestObjectNaming(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 11, 12, 0, time.UTC)

	name := objectName(Metadata{Name: "Report.PDF", Folder: "/chats/u1/"}, now)
	assert.True(t, strings.HasPrefix(name, "chats/u1/"))
	assert.True(t, strings.HasSuffix(name, "-20240309101112.pdf"))

	assert.True(t, strings.HasPrefix(objectName(Metadata{}, now), "attachments/"))

	u := &GCSUploader{bucket: "media"}
	obj, err := u.objectFromLink(gcsHost + "media/" + name)
	require.NoError(t, err)
	assert.Equal(t, name, obj)

	_, err = u.objectFromLink(gcsHost + "other/" + name)
	assert.Error(t, err)
	_, err = u.objectFromLink("https://example.com/media/x")
	assert.Error(t, err)
}
