package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/listing-conversations/internal/backend"
	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/permission"
	"github.com/pribylovaa/listing-conversations/internal/store"
	"github.com/pribylovaa/listing-conversations/internal/threads"
	"github.com/pribylovaa/listing-conversations/internal/unread"
	"github.com/pribylovaa/listing-conversations/internal/upload"
	"github.com/pribylovaa/listing-conversations/pkg/log"
)

// ThreadView — строка списка переписок.
type ThreadView struct {
	threads.ThreadRef
	LastActivity time.Time       `json:"lastActivity"`
	Unread       int             `json:"unread"`
	LastMessage  *models.Message `json:"lastMessage,omitempty"`
}

// ThreadDetail — открытая переписка с полным списком сообщений.
type ThreadDetail struct {
	threads.ThreadRef
	Messages []models.Message `json:"messages"`
	Unread   int              `json:"unread"`
}

// SendMessageInput — то, что пользователь ввёл в форму отправки.
type SendMessageInput struct {
	Content    string
	IsOffer    bool
	OfferPrice *float64
	Attachment *models.Attachment
}

// SendResult — подтверждённое бэкендом сообщение и переписка, в которую оно попало.
type SendResult struct {
	CreatedNewThread bool              `json:"createdNewThread"`
	Thread           threads.ThreadRef `json:"thread"`
	Message          models.Message    `json:"message"`
}

// FetchThreads загружает справочник переписок зрителя и возвращает его
// в порядке последней активности.
func (s *Service) FetchThreads(ctx context.Context, actor models.Actor) ([]ThreadView, error) {
	const op = "service/threads/FetchThreads"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String())

	if err := requireActor(lg, op, actor); err != nil {
		return nil, err
	}

	st := s.storeFor(actor)
	if err := s.loadThreads(ctx, actor, st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return threadViews(st.Snapshot(), actor.ID), nil
}

// OpenThread делает переписку активной и загружает её сообщения.
// Если за время загрузки пользователь открыл другую переписку, вернётся ErrStaleResponse.
func (s *Service) OpenThread(ctx context.Context, actor models.Actor, threadID string) (ThreadDetail, error) {
	const op = "service/threads/OpenThread"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "thread_id", threadID)

	if err := requireActor(lg, op, actor); err != nil {
		return ThreadDetail{}, err
	}

	if strings.TrimSpace(threadID) == "" {
		lg.Warn("empty thread id")
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	st := s.storeFor(actor)
	if err := s.ensureThreads(ctx, actor, st); err != nil {
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	t, ok := st.Snapshot().Thread(threadID)
	if !ok || !t.HasParticipant(actor.ID) {
		lg.Warn("thread not found")
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	gen, err := st.Select(threadID)
	if err != nil {
		lg.Error("select failed", "err", err)
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	msgs, err := s.backend.ListMessages(ctx, threadID)
	if err != nil {
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	err = st.Dispatch(store.MessagesLoaded{ThreadID: threadID, Generation: gen, Messages: msgs})
	switch {
	case errors.Is(err, store.ErrStaleResponse):
		s.metrics.Stale()
		lg.Info("stale messages response dropped", "generation", gen)
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, ErrStaleResponse)
	case err != nil:
		lg.Error("dispatch failed", "err", err)
		return ThreadDetail{}, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	snap := st.Snapshot()
	t, _ = snap.Thread(threadID)
	full, _ := snap.MessagesOf(threadID)

	return ThreadDetail{
		ThreadRef: threads.RefFor(t, actor.ID),
		Messages:  full,
		Unread:    unread.Count(full, actor.ID),
	}, nil
}

// ResolveThread ищет переписку зрителя-покупателя по объявлению.
// false — переписки ещё нет, её создаст первая отправка.
func (s *Service) ResolveThread(ctx context.Context, actor models.Actor, listingID uuid.UUID) (threads.ThreadRef, bool, error) {
	const op = "service/threads/ResolveThread"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "listing_id", listingID.String())

	if err := requireActor(lg, op, actor); err != nil {
		return threads.ThreadRef{}, false, err
	}

	st := s.storeFor(actor)
	if err := s.ensureThreads(ctx, actor, st); err != nil {
		return threads.ThreadRef{}, false, fmt.Errorf("%s: %w", op, err)
	}

	ref, ok := threads.Resolve(st.Snapshot().Threads, listingID, actor.ID)

	return ref, ok, nil
}

// SendMessage отправляет сообщение (или предложение цены) по объявлению.
// threadID пуст — покупатель пишет по объявлению (переписка определяется или создаётся);
// threadID задан — ответ в существующую переписку (так отвечает продавец).
// Сообщение попадает в локальное состояние только после подтверждения бэкенда.
func (s *Service) SendMessage(ctx context.Context, actor models.Actor, listingID uuid.UUID, threadID string, in SendMessageInput) (SendResult, error) {
	const op = "service/threads/SendMessage"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "listing_id", listingID.String())

	if err := requireActor(lg, op, actor); err != nil {
		return SendResult{}, err
	}

	req, err := s.sendRequest(in)
	if err != nil {
		lg.Warn("invalid message", "err", err)
		return SendResult{}, fmt.Errorf("%s: %w", op, err)
	}

	st := s.storeFor(actor)
	if err := st.Dispatch(store.SendStarted{ListingID: listingID}); err != nil {
		lg.Warn("send already in progress")
		return SendResult{}, fmt.Errorf("%s: %w", op, ErrSendInProgress)
	}
	defer func() {
		if err := st.Dispatch(store.SendSettled{ListingID: listingID}); err != nil {
			lg.Error("send settle failed", "err", err)
		}
	}()

	if err := s.ensureThreads(ctx, actor, st); err != nil {
		return SendResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var (
		existing *models.Thread
		l        models.Listing
	)
	snap := st.Snapshot()

	if threadID != "" {
		t, ok := snap.Thread(threadID)
		if !ok || t.ListingID != listingID {
			lg.Warn("thread not found", "thread_id", threadID)
			return SendResult{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		if !permission.CanSendIntoThread(actor, &t) {
			return SendResult{}, s.deny(lg, op, "send_message")
		}

		existing = &t
		req.ThreadID = t.ID
	} else {
		l, err = s.listing(ctx, listingID)
		if err != nil {
			return SendResult{}, fmt.Errorf("%s: %w", op, err)
		}

		if ref, ok := threads.Resolve(snap.Threads, listingID, actor.ID); ok {
			t := ref.Thread
			existing = &t
		}

		if !permission.CanSend(actor, l, existing) {
			return SendResult{}, s.deny(lg, op, "send_message")
		}
	}

	msg, err := s.backend.SendMessage(ctx, listingID, req)
	if err != nil {
		return SendResult{}, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	var thread models.Thread
	switch {
	case existing != nil:
		if msg.ThreadID == "" {
			msg.ThreadID = existing.ID
		}

		thread = *existing
		if msg.ThreadID != existing.ID {
			// Бэкенд положил сообщение в другую переписку: она вытеснит старую для этой пары.
			lg.Warn("backend replaced thread", "stale_thread_id", existing.ID, "thread_id", msg.ThreadID)
			thread = models.Thread{
				ID:        msg.ThreadID,
				ListingID: listingID,
				SellerID:  existing.SellerID,
				BuyerID:   existing.BuyerID,
			}
		}
	case msg.ThreadID != "":
		thread = models.Thread{
			ID:        msg.ThreadID,
			ListingID: listingID,
			SellerID:  l.OwnerID,
			BuyerID:   actor.ID,
		}
	default:
		lg.Error("backend returned message without thread id")
		return SendResult{}, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	if msg.SenderID == uuid.Nil {
		msg.SenderID = actor.ID
	}

	_, known := snap.Thread(thread.ID)

	if err := st.Dispatch(store.MessageSent{Thread: thread, Message: msg}); err != nil {
		lg.Error("dispatch failed", "err", err)
		return SendResult{}, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	committed, _ := st.Snapshot().Thread(thread.ID)

	lg.Info("message sent",
		"thread_id", thread.ID,
		"message_id", msg.ID,
		"is_offer", msg.IsOffer,
		"created_thread", !known,
	)

	return SendResult{
		CreatedNewThread: !known,
		Thread:           threads.RefFor(committed, actor.ID),
		Message:          msg,
	}, nil
}

// MarkThreadRead помечает прочитанными все сообщения собеседника в переписке.
// Запросы идут параллельно; локально флаги меняются, только если бэкенд подтвердил все.
func (s *Service) MarkThreadRead(ctx context.Context, actor models.Actor, threadID string) (int, error) {
	const op = "service/threads/MarkThreadRead"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "thread_id", threadID)

	if err := requireActor(lg, op, actor); err != nil {
		return 0, err
	}

	st := s.storeFor(actor)
	if err := s.ensureThreads(ctx, actor, st); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	snap := st.Snapshot()

	t, ok := snap.Thread(threadID)
	if !ok {
		lg.Warn("thread not found")
		return 0, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if !t.HasParticipant(actor.ID) {
		return 0, s.deny(lg, op, "mark_read")
	}

	msgs, hydrated := snap.MessagesOf(threadID)
	if !hydrated {
		// Превью может не содержать старых непрочитанных: берём полный список с бэкенда.
		full, err := s.backend.ListMessages(ctx, threadID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
		}
		msgs = append(full, msgs...)
	}

	var ids []int64
	seen := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		if m.UnreadFor(actor.ID) && !seen[m.ID] {
			seen[m.ID] = true
			ids = append(ids, m.ID)
		}
	}

	if len(ids) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Limits.MarkReadParallel)

	for _, id := range ids {
		g.Go(func() error {
			return s.backend.MarkMessageRead(gctx, id)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	if err := st.Dispatch(store.ThreadRead{ThreadID: threadID, Viewer: actor.ID}); err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			// Переписку удалили, пока шли запросы.
			return len(ids), nil
		}

		lg.Error("dispatch failed", "err", err)
		return 0, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	lg.Info("thread marked read", "count", len(ids))

	return len(ids), nil
}

// DeleteThread удаляет переписку. Локально она исчезает только после
// подтверждения бэкенда и целиком, вместе с сообщениями.
func (s *Service) DeleteThread(ctx context.Context, actor models.Actor, threadID string) error {
	const op = "service/threads/DeleteThread"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "thread_id", threadID)

	if err := requireActor(lg, op, actor); err != nil {
		return err
	}

	st := s.storeFor(actor)
	if err := s.ensureThreads(ctx, actor, st); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t, ok := st.Snapshot().Thread(threadID)
	if !ok {
		lg.Warn("thread not found")
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if !t.HasParticipant(actor.ID) {
		return s.deny(lg, op, "delete_thread")
	}

	if err := s.backend.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	if err := st.Dispatch(store.ThreadDeleted{ThreadID: threadID}); err != nil && !errors.Is(err, store.ErrThreadNotFound) {
		lg.Error("dispatch failed", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}

	lg.Info("thread deleted")

	return nil
}

// Unread возвращает счётчики непрочитанных по известным перепискам.
func (s *Service) Unread(ctx context.Context, actor models.Actor) (unread.Summary, error) {
	const op = "service/threads/Unread"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String())

	if err := requireActor(lg, op, actor); err != nil {
		return unread.Summary{}, err
	}

	st := s.storeFor(actor)
	if err := s.ensureThreads(ctx, actor, st); err != nil {
		return unread.Summary{}, fmt.Errorf("%s: %w", op, err)
	}

	return unread.SummaryOf(st.Snapshot(), actor.ID), nil
}

// Upload загружает вложение; результат подставляется в следующее сообщение.
func (s *Service) Upload(ctx context.Context, actor models.Actor, f upload.File) (models.Attachment, error) {
	const op = "service/threads/Upload"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "file_name", f.Name)

	if err := requireActor(lg, op, actor); err != nil {
		return models.Attachment{}, err
	}

	if s.uploader == nil {
		lg.Error("uploader is not configured")
		return models.Attachment{}, fmt.Errorf("%s: %w", op, ErrUnavailable)
	}

	att, err := s.uploader.Upload(ctx, actor.ID, f)
	if err != nil {
		if errors.Is(err, upload.ErrInvalidArgument) || errors.Is(err, upload.ErrTooLarge) {
			lg.Warn("upload rejected", "err", err)
			return models.Attachment{}, &RejectedError{
				Status:  http.StatusBadRequest,
				Message: s.uploadRejection(err),
				kind:    ErrInvalidArgument,
			}
		}

		lg.Error("upload failed", "err", err)
		return models.Attachment{}, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	return att, nil
}

// loadThreads всегда перечитывает справочник с бэкенда.
func (s *Service) loadThreads(ctx context.Context, actor models.Actor, st *store.Store) error {
	lg := log.From(ctx).With("op", "service/threads/loadThreads")

	list, err := s.backend.ListThreads(ctx)
	if err != nil {
		return s.backendError(lg, err)
	}

	// Переписки, где зритель не участник, не показываются.
	own := make([]models.Thread, 0, len(list))
	for _, t := range list {
		if t.HasParticipant(actor.ID) {
			own = append(own, t)
		}
	}

	if err := st.Dispatch(store.ThreadsLoaded{Threads: own}); err != nil {
		lg.Error("dispatch failed", "err", err)
		return ErrInternal
	}

	return nil
}

// ensureThreads загружает справочник, только если он ещё не загружался.
func (s *Service) ensureThreads(ctx context.Context, actor models.Actor, st *store.Store) error {
	if st.Snapshot().ThreadsLoaded {
		return nil
	}

	return s.loadThreads(ctx, actor, st)
}

// sendRequest проверяет ввод до любого сетевого вызова.
func (s *Service) sendRequest(in SendMessageInput) (backend.SendMessageRequest, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Attachment != nil {
		content = in.Attachment.FileName
	}

	if content == "" {
		return backend.SendMessageRequest{}, fmt.Errorf("%w: empty content", ErrInvalidArgument)
	}

	if utf8.RuneCountInString(content) > s.cfg.Limits.MaxMessageLength {
		return backend.SendMessageRequest{}, fmt.Errorf("%w: content is too long", ErrInvalidArgument)
	}

	req := backend.SendMessageRequest{Content: content}

	switch {
	case in.IsOffer:
		if in.OfferPrice == nil || math.IsNaN(*in.OfferPrice) || math.IsInf(*in.OfferPrice, 0) || *in.OfferPrice <= 0 {
			return backend.SendMessageRequest{}, fmt.Errorf("%w: offer requires a positive price", ErrInvalidArgument)
		}

		price := *in.OfferPrice
		req.IsOffer = true
		req.OfferPrice = &price
	case in.OfferPrice != nil:
		return backend.SendMessageRequest{}, fmt.Errorf("%w: price without offer", ErrInvalidArgument)
	}

	if a := in.Attachment; a != nil {
		if strings.TrimSpace(a.URL) == "" || !a.Type.Valid() {
			return backend.SendMessageRequest{}, fmt.Errorf("%w: bad attachment", ErrInvalidArgument)
		}

		req.AttachmentURL = a.URL
		req.AttachmentType = a.Type
		req.AttachmentFileName = a.FileName
		req.AttachmentFileSize = a.SizeBytes
	}

	return req, nil
}

func threadViews(snap store.State, viewer uuid.UUID) []ThreadView {
	messagesOf := func(t models.Thread) []models.Message {
		msgs, _ := snap.MessagesOf(t.ID)
		return msgs
	}

	sorted := threads.SortByActivity(snap.Threads, messagesOf)

	out := make([]ThreadView, 0, len(sorted))
	for _, t := range sorted {
		msgs := messagesOf(t)

		v := ThreadView{
			ThreadRef:    threads.RefFor(t, viewer),
			LastActivity: threads.LastActivity(t, msgs),
			Unread:       unread.Count(msgs, viewer),
		}

		if n := len(msgs); n > 0 {
			last := msgs[n-1]
			v.LastMessage = &last
		}

		out = append(out, v)
	}

	return out
}

func (s *Service) uploadRejection(err error) string {
	if errors.Is(err, upload.ErrTooLarge) {
		return "file is larger than " + humanize.IBytes(uint64(s.cfg.Upload.MaxSizeBytes))
	}

	return "file is empty or has an invalid name"
}
