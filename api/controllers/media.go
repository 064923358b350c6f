package controllers

import (
	"net/http"
	"strings"

	"github.com/davidpalacios/shopline-backend/api/responses"
	mediasvc "github.com/davidpalacios/shopline-backend/internal/media"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

const uploadFormField = "file"

// MediaUpload accepts a multipart image upload and returns the public URL.
func MediaUpload(svc *mediasvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}

		// 32 MB of form memory; anything larger spills to temp files.
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}

		file, header, err := r.FormFile(uploadFormField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file field is required"))
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		folder := strings.TrimSpace(r.FormValue("folder"))

		result, err := svc.Upload(r.Context(), mediasvc.UploadInput{
			Folder:      folder,
			Filename:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Body:        file,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
