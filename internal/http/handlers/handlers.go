package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/service"
)

// Handlers агрегирует зависимости REST-хендлеров.
type Handlers struct {
	svc            *service.Service
	maxUploadBytes int64
}

// New создаёт хендлеры. maxUploadBytes — предел тела multipart-загрузки.
func New(svc *service.Service, maxUploadBytes int64) *Handlers {
	return &Handlers{svc: svc, maxUploadBytes: maxUploadBytes}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidArgument, err)
	}
	return nil
}

// listingID разбирает {listingId} из пути.
func listingID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "listingId"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: listing id", service.ErrInvalidArgument)
	}
	return id, nil
}

// pathParam достаёт непустой параметр пути.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", service.ErrInvalidArgument, name)
	}
	return v, nil
}
