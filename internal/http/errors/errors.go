// errors стандартизирует ответы об ошибках HTTP-слоя шлюза переписок.
// На вход он принимает ошибку сервисного слоя, а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Исключение — отказ бэкенда (service.RejectedError): его текст показывается
// пользователю дословно.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/listing-conversations/internal/auth"
	"github.com/pribylovaa/listing-conversations/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrTooManyRequests — сработал ограничитель частоты запросов.
var ErrTooManyRequests = stderrors.New("too many requests")

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку сервиса в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal;
//   - *service.RejectedError — статус бэкенда (4xx) или 502 и дословный текст отказа;
//   - сентинелы сервиса — по таблице baseFromSentinel;
//   - всё прочее — 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, response("internal", "internal error")
	}

	var rej *service.RejectedError
	if stderrors.As(err, &rej) {
		status := rej.Status
		if status < 400 || status > 499 {
			status = http.StatusBadGateway
		}

		_, code, msg := baseFromSentinel(err)
		if code == "internal" {
			code = "rejected"
		}
		if rej.Code != "" {
			code = rej.Code
		}
		if rej.Message != "" {
			msg = rej.Message
		}

		return status, response(code, msg)
	}

	status, code, msg := baseFromSentinel(err)

	return status, response(code, msg)
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func response(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

// baseFromSentinel — базовый маппинг ошибок сервиса -> HTTP/FE-код/сообщение:
//   - ErrInvalidArgument -> 400
//   - ErrUnauthenticated, auth.ErrInvalidToken, auth.ErrTokenExpired -> 401
//   - ErrPermissionDenied -> 403
//   - ErrNotFound -> 404
//   - ErrSendInProgress, ErrStaleResponse, ErrConflict -> 409
//   - ErrTooManyRequests -> 429
//   - context.Canceled -> 499 (клиент закрыл соединение)
//   - context.DeadlineExceeded -> 504
//   - ErrUnavailable -> 503
//   - прочее -> 500/internal
//
// Контекстные ошибки проверяются раньше ErrUnavailable: транспорт бэкенда
// оборачивает их вместе.
func baseFromSentinel(err error) (int, string, string) {
	switch {
	case stderrors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case stderrors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case stderrors.Is(err, service.ErrUnauthenticated), stderrors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case stderrors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case stderrors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case stderrors.Is(err, service.ErrSendInProgress):
		return http.StatusConflict, "send_in_progress", "send in progress"
	case stderrors.Is(err, service.ErrStaleResponse):
		return http.StatusConflict, "stale_response", "thread is no longer selected"
	case stderrors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict", "conflict"
	case stderrors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, "resource_exhausted", "too many requests"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case stderrors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
