package handlers

import (
	"fmt"
	"net/http"

	apierrors "github.com/pribylovaa/listing-conversations/internal/http/errors"
	"github.com/pribylovaa/listing-conversations/internal/http/middleware"
	"github.com/pribylovaa/listing-conversations/internal/service"
	"github.com/pribylovaa/listing-conversations/internal/upload"
)

// multipartOverhead — запас на заголовки частей multipart сверх размера файла.
const multipartOverhead = 1 << 20

// Upload принимает multipart-поле "file" и возвращает метаданные вложения
// для следующего сообщения.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFrom(r.Context())
	if !actor.Authenticated() {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		apierrors.WriteError(w, r, fmt.Errorf("%w: file: %v", service.ErrInvalidArgument, err))
		return
	}
	defer file.Close()

	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	att, err := h.svc.Upload(r.Context(), actor, upload.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, att)
}
