package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidpalacios/shopline-backend/pkg/config"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// ObjectStore is the bucket surface the service needs. Satisfied by
// pkg/storage/gcs.Client.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// UploadInput describes one incoming file stream.
type UploadInput struct {
	Folder      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadResult is returned to the caller after a successful upload.
type UploadResult struct {
	ObjectPath string `json:"object_path"`
	URL        string `json:"url"`
}

// Service stores media objects and hands back public URLs. Upload failures
// are surfaced to the caller; they block a user-visible action.
type Service struct {
	store ObjectStore
	cfg   config.MediaConfig
	logg  *logger.Logger
	now   func() time.Time
}

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func NewService(store ObjectStore, cfg config.MediaConfig, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{store: store, cfg: cfg, logg: logg, now: time.Now}, nil
}

// Upload validates the stream and writes it to the bucket.
func (s *Service) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.Body == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file body is required")
	}
	ext, ok := allowedContentTypes[strings.ToLower(strings.TrimSpace(input.ContentType))]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported content type")
	}

	maxBytes := s.maxBytes()
	if input.Size > maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("file exceeds the %d MB upload limit", s.cfg.MaxUploadMB))
	}

	objectPath := s.objectPath(input.Folder, ext)

	// LimitReader guards against callers that under-report the size.
	body := io.LimitReader(input.Body, maxBytes+1)
	counted := &countingReader{r: body}

	url, err := s.store.Upload(ctx, objectPath, input.ContentType, counted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpload, err, "uploading media object")
	}
	if counted.n > maxBytes {
		if delErr := s.store.Delete(ctx, objectPath); delErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", delErr.Error()), "removing oversized upload failed")
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("file exceeds the %d MB upload limit", s.cfg.MaxUploadMB))
	}

	return &UploadResult{ObjectPath: objectPath, URL: url}, nil
}

// Delete removes a previously uploaded object.
func (s *Service) Delete(ctx context.Context, objectPath string) error {
	if strings.TrimSpace(objectPath) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "object path is required")
	}
	if err := s.store.Delete(ctx, objectPath); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpload, err, "deleting media object")
	}
	return nil
}

func (s *Service) maxBytes() int64 {
	mb := s.cfg.MaxUploadMB
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) << 20
}

// objectPath builds a collision-free bucket path: <folder>/<yyyy>/<mm>/<uuid><ext>.
func (s *Service) objectPath(folder, ext string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = "media"
	}
	now := s.now().UTC()
	return path.Join(folder, now.Format("2006"), now.Format("01"), uuid.NewString()+ext)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
