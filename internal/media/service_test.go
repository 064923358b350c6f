package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/davidpalacios/shopline-backend/pkg/config"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

type fakeObjectStore struct {
	objects   map[string][]byte
	uploadErr error
	deleted   []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Upload(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[objectPath] = data
	return "https://cdn.example.com/" + objectPath, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, objectPath string) error {
	f.deleted = append(f.deleted, objectPath)
	delete(f.objects, objectPath)
	return nil
}

func newTestService(t *testing.T, store ObjectStore, maxMB int) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "media-test", Output: io.Discard})
	svc, err := NewService(store, config.MediaConfig{MaxUploadMB: maxMB}, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func pngInput(size int) UploadInput {
	return UploadInput{
		Folder:      "products",
		Filename:    "photo.png",
		ContentType: "image/png",
		Size:        int64(size),
		Body:        bytes.NewReader(bytes.Repeat([]byte{0xAB}, size)),
	}
}

func TestUploadReturnsPublicURL(t *testing.T) {
	store := newFakeObjectStore()
	svc := newTestService(t, store, 10)

	result, err := svc.Upload(context.Background(), pngInput(128))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(result.ObjectPath, "products/") {
		t.Fatalf("object path %q not under the requested folder", result.ObjectPath)
	}
	if !strings.HasSuffix(result.ObjectPath, ".png") {
		t.Fatalf("object path %q missing extension", result.ObjectPath)
	}
	if result.URL != "https://cdn.example.com/"+result.ObjectPath {
		t.Fatalf("url = %q", result.URL)
	}
	if len(store.objects[result.ObjectPath]) != 128 {
		t.Fatalf("stored %d bytes, want 128", len(store.objects[result.ObjectPath]))
	}
}

func TestUploadRejectsUnsupportedContentType(t *testing.T) {
	svc := newTestService(t, newFakeObjectStore(), 10)

	input := pngInput(16)
	input.ContentType = "application/pdf"
	_, err := svc.Upload(context.Background(), input)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestUploadRejectsDeclaredOversize(t *testing.T) {
	svc := newTestService(t, newFakeObjectStore(), 1)

	input := pngInput(16)
	input.Size = 2 << 20
	_, err := svc.Upload(context.Background(), input)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestUploadCatchesUnderReportedSize(t *testing.T) {
	store := newFakeObjectStore()
	svc := newTestService(t, store, 1)

	input := pngInput(1<<20 + 512)
	input.Size = 100 // lies about the payload
	_, err := svc.Upload(context.Background(), input)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation", err)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("oversized object should have been deleted, got %d deletions", len(store.deleted))
	}
	if len(store.objects) != 0 {
		t.Fatalf("bucket should be empty, has %d objects", len(store.objects))
	}
}

func TestUploadSurfacesStoreFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.uploadErr = errors.New("bucket unavailable")
	svc := newTestService(t, store, 10)

	_, err := svc.Upload(context.Background(), pngInput(16))
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUpload {
		t.Fatalf("error = %v, want upload error", err)
	}
}

func TestDeleteRequiresObjectPath(t *testing.T) {
	svc := newTestService(t, newFakeObjectStore(), 10)

	err := svc.Delete(context.Background(), "   ")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation", err)
	}
}
