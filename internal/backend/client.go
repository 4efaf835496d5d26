package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/pkg/interceptors"
)

// maxResponseBytes — предел чтения тела ответа.
const maxResponseBytes = 8 << 20

// ClientConfig — параметры клиента.
type ClientConfig struct {
	// BaseURL — адрес бэкенда, например "http://backend:8080/api".
	BaseURL string
	// HTTPClient — транспорт; nil — http.DefaultClient.
	HTTPClient *http.Client
	// Logger — nil означает slog.Default().
	Logger *slog.Logger
}

// Client — реализация Backend поверх REST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

var _ Backend = (*Client)(nil)

// NewClient создаёт клиент. BaseURL обязателен.
func NewClient(cfg ClientConfig) (*Client, error) {
	const op = "backend/NewClient"

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", op)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid base url %q", op, cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		log:        l,
	}, nil
}

// CloseIdleConnections закрывает простаивающие соединения транспорта.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ListThreads — GET /threads.
func (c *Client) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var out struct {
		Threads []models.Thread `json:"threads"`
	}
	if err := c.do(ctx, http.MethodGet, "/threads", "/threads", nil, &out); err != nil {
		return nil, err
	}

	return out.Threads, nil
}

// ListMessages — GET /threads/{id}/messages.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, "/threads/{id}/messages", nil, &out); err != nil {
		return nil, err
	}

	return out.Messages, nil
}

// SendMessage — POST /listings/{listingId}/messages. Бэкенд сам создаёт переписку при первом контакте.
func (c *Client) SendMessage(ctx context.Context, listingID uuid.UUID, req SendMessageRequest) (models.Message, error) {
	var out struct {
		Message *models.Message `json:"message"`
	}
	path := "/listings/" + listingID.String() + "/messages"
	if err := c.do(ctx, http.MethodPost, path, "/listings/{listingId}/messages", req, &out); err != nil {
		return models.Message{}, err
	}
	if out.Message == nil {
		return models.Message{}, fmt.Errorf("backend: %s: empty message: %w", path, ErrBadResponse)
	}

	return *out.Message, nil
}

// MarkMessageRead — PATCH /messages/{id}/read.
func (c *Client) MarkMessageRead(ctx context.Context, messageID int64) error {
	path := "/messages/" + strconv.FormatInt(messageID, 10) + "/read"
	return c.doAck(ctx, http.MethodPatch, path, "/messages/{id}/read")
}

// DeleteThread — DELETE /threads/{id}.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	path := "/threads/" + url.PathEscape(threadID)
	return c.doAck(ctx, http.MethodDelete, path, "/threads/{id}")
}

// ListComments — GET /listings/{listingId}/comments.
func (c *Client) ListComments(ctx context.Context, listingID uuid.UUID) ([]models.Comment, error) {
	var out struct {
		Comments []models.Comment `json:"comments"`
	}
	path := "/listings/" + listingID.String() + "/comments"
	if err := c.do(ctx, http.MethodGet, path, "/listings/{listingId}/comments", nil, &out); err != nil {
		return nil, err
	}

	return out.Comments, nil
}

// PostComment — POST /listings/{listingId}/comments (ParentCommentID — для ответа).
func (c *Client) PostComment(ctx context.Context, listingID uuid.UUID, req PostCommentRequest) (models.Comment, error) {
	var out struct {
		Comment *models.Comment `json:"comment"`
	}
	path := "/listings/" + listingID.String() + "/comments"
	if err := c.do(ctx, http.MethodPost, path, "/listings/{listingId}/comments", req, &out); err != nil {
		return models.Comment{}, err
	}
	if out.Comment == nil {
		return models.Comment{}, fmt.Errorf("backend: %s: empty comment: %w", path, ErrBadResponse)
	}

	return *out.Comment, nil
}

// DeleteComment — DELETE /listings/{listingId}/comments/{commentId}.
func (c *Client) DeleteComment(ctx context.Context, listingID uuid.UUID, commentID string) error {
	path := "/listings/" + listingID.String() + "/comments/" + url.PathEscape(commentID)
	return c.doAck(ctx, http.MethodDelete, path, "/listings/{listingId}/comments/{commentId}")
}

// GetListing — GET /listings/{listingId}; нужен владелец объявления для проверки прав.
func (c *Client) GetListing(ctx context.Context, listingID uuid.UUID) (models.Listing, error) {
	var out struct {
		Listing *models.Listing `json:"listing"`
	}
	path := "/listings/" + listingID.String()
	if err := c.do(ctx, http.MethodGet, path, "/listings/{listingId}", nil, &out); err != nil {
		return models.Listing{}, err
	}
	if out.Listing == nil {
		return models.Listing{}, fmt.Errorf("backend: %s: empty listing: %w", path, ErrBadResponse)
	}

	return *out.Listing, nil
}

// doAck — запрос с ответом { success }.
func (c *Client) doAck(ctx context.Context, method, path, route string) error {
	var out struct {
		Success *bool `json:"success"`
	}
	if err := c.do(ctx, method, path, route, nil, &out); err != nil {
		return err
	}

	// Пустое тело (204) считаем подтверждением; явный false — нет.
	if out.Success != nil && !*out.Success {
		return fmt.Errorf("backend: %s %s: %w", method, path, ErrNotAcknowledged)
	}

	return nil
}

// do выполняет один запрос без повторов. route — шаблон пути для логов и метрик.
func (c *Client) do(ctx context.Context, method, path, route string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(interceptors.WithRoute(ctx, route), method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("backend: %s %s: %w: %w", method, route, ErrTransport, ctxErr)
		}
		return fmt.Errorf("backend: %s %s: %w: %v", method, route, ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: %s %s: read body: %w: %v", method, route, ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend: %s %s: %w: %v", method, route, ErrBadResponse, err)
	}

	return nil
}

// decodeError разбирает тело отказа. Поддерживаются формы
// {"error":{"code","message"}}, {"error":"..."} и {"message":"..."};
// иначе сообщением становится само тело или текст статуса.
func decodeError(status int, raw []byte) *APIError {
	e := &APIError{StatusCode: status}

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		var flat string

		switch {
		case len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "":
			e.Code, e.Message = nested.Code, nested.Message
		case len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &flat) == nil && flat != "":
			e.Code, e.Message = envelope.Code, flat
		case envelope.Message != "":
			e.Code, e.Message = envelope.Code, envelope.Message
		}
	}

	if e.Message == "" {
		e.Message = strings.TrimSpace(string(raw))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	return e
}

// AsAPIError — удобная обёртка над errors.As.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
