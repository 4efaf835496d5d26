package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/backend"
	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/permission"
	"github.com/pribylovaa/listing-conversations/internal/store"
	"github.com/pribylovaa/listing-conversations/pkg/log"
)

// ListComments загружает комментарии объявления. Читать может и аноним.
func (s *Service) ListComments(ctx context.Context, actor models.Actor, listingID uuid.UUID) ([]models.Comment, error) {
	const op = "service/comments/ListComments"

	lg := log.From(ctx).With("op", op, "listing_id", listingID.String())

	st := s.storeFor(actor)
	if err := s.loadComments(ctx, listingID, st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	comments, _ := st.Snapshot().CommentsOf(listingID)
	lg.Debug("comments loaded", "count", len(comments))

	return comments, nil
}

// PostComment публикует корневой комментарий.
func (s *Service) PostComment(ctx context.Context, actor models.Actor, listingID uuid.UUID, content string) (models.Comment, error) {
	const op = "service/comments/PostComment"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "listing_id", listingID.String())

	if err := requireActor(lg, op, actor); err != nil {
		return models.Comment{}, err
	}

	content, err := s.commentContent(content)
	if err != nil {
		lg.Warn("invalid comment", "err", err)
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	st := s.storeFor(actor)
	if err := s.ensureComments(ctx, listingID, st); err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	l, err := s.listing(ctx, listingID)
	if err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	if !permission.CanPostTopLevelComment(actor, l) {
		return models.Comment{}, s.deny(lg, op, "post_comment")
	}

	c, err := s.backend.PostComment(ctx, listingID, backend.PostCommentRequest{Content: content})
	if err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	c = fillComment(c, listingID, actor.ID, "")

	if err := st.Dispatch(store.CommentPosted{ListingID: listingID, Comment: c}); err != nil {
		lg.Error("dispatch failed", "err", err)
		return models.Comment{}, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	lg.Info("comment posted", "comment_id", c.ID)

	return c, nil
}

// PostReply отвечает на корневой комментарий parentID.
// Право на ответ проверяется по локально известным ответам: если ответ владельца
// ещё не загружен, действие запрещается.
func (s *Service) PostReply(ctx context.Context, actor models.Actor, listingID uuid.UUID, parentID, content string) (models.Comment, error) {
	const op = "service/comments/PostReply"

	lg := log.From(ctx).With("op", op,
		"user_id", actor.ID.String(),
		"listing_id", listingID.String(),
		"parent_id", parentID,
	)

	if err := requireActor(lg, op, actor); err != nil {
		return models.Comment{}, err
	}

	if strings.TrimSpace(parentID) == "" {
		lg.Warn("empty parent id")
		return models.Comment{}, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	content, err := s.commentContent(content)
	if err != nil {
		lg.Warn("invalid reply", "err", err)
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	st := s.storeFor(actor)
	if err := s.ensureComments(ctx, listingID, st); err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	snap := st.Snapshot()

	parent, ok := snap.FindComment(listingID, parentID)
	if !ok {
		if _, _, isNode := snap.FindNode(listingID, parentID); isNode {
			// Ответить на ответ нельзя.
			return models.Comment{}, s.deny(lg, op, "post_reply")
		}

		lg.Warn("parent comment not found")
		return models.Comment{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	l, err := s.listing(ctx, listingID)
	if err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	if !permission.CanReplyToComment(actor, l, parent, parent.Replies) {
		return models.Comment{}, s.deny(lg, op, "post_reply")
	}

	r, err := s.backend.PostComment(ctx, listingID, backend.PostCommentRequest{
		Content:         content,
		ParentCommentID: parentID,
	})
	if err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	r = fillComment(r, listingID, actor.ID, parentID)

	err = st.Dispatch(store.ReplyPosted{ListingID: listingID, ParentID: parentID, Reply: r})
	switch {
	case errors.Is(err, store.ErrCommentNotFound):
		// Корень удалили, пока шёл запрос: ответ на бэкенде есть, показывать его негде.
		lg.Warn("parent vanished before reply was committed", "reply_id", r.ID)
	case err != nil:
		lg.Error("dispatch failed", "err", err)
		return models.Comment{}, fmt.Errorf("%s: %w", op, ErrInternal)
	}

	lg.Info("reply posted", "reply_id", r.ID)

	return r, nil
}

// DeleteNode удаляет комментарий (вместе с ответами) или одиночный ответ.
func (s *Service) DeleteNode(ctx context.Context, actor models.Actor, listingID uuid.UUID, commentID string) error {
	const op = "service/comments/DeleteNode"

	lg := log.From(ctx).With("op", op,
		"user_id", actor.ID.String(),
		"listing_id", listingID.String(),
		"comment_id", commentID,
	)

	if err := requireActor(lg, op, actor); err != nil {
		return err
	}

	st := s.storeFor(actor)
	if err := s.ensureComments(ctx, listingID, st); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	node, _, ok := st.Snapshot().FindNode(listingID, commentID)
	if !ok {
		lg.Warn("comment not found")
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if !permission.CanDeleteNode(actor, node) {
		return s.deny(lg, op, "delete_comment")
	}

	if err := s.backend.DeleteComment(ctx, listingID, commentID); err != nil {
		return fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	if err := st.Dispatch(store.NodeDeleted{ListingID: listingID, CommentID: commentID}); err != nil && !errors.Is(err, store.ErrCommentNotFound) {
		lg.Error("dispatch failed", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}

	lg.Info("comment deleted", "is_reply", node.IsReply())

	return nil
}

func (s *Service) loadComments(ctx context.Context, listingID uuid.UUID, st *store.Store) error {
	lg := log.From(ctx).With("op", "service/comments/loadComments", "listing_id", listingID.String())

	list, err := s.backend.ListComments(ctx, listingID)
	if err != nil {
		return s.backendError(lg, err)
	}

	if err := st.Dispatch(store.CommentsLoaded{ListingID: listingID, Comments: list}); err != nil {
		lg.Error("dispatch failed", "err", err)
		return ErrInternal
	}

	return nil
}

func (s *Service) ensureComments(ctx context.Context, listingID uuid.UUID, st *store.Store) error {
	if _, ok := st.Snapshot().CommentsOf(listingID); ok {
		return nil
	}

	return s.loadComments(ctx, listingID, st)
}

// commentContent проверяет длину текста после обрезки пробелов.
func (s *Service) commentContent(content string) (string, error) {
	content = strings.TrimSpace(content)

	n := utf8.RuneCountInString(content)
	if n < s.cfg.Limits.MinCommentLength {
		return "", fmt.Errorf("%w: comment must be at least %d characters", ErrInvalidArgument, s.cfg.Limits.MinCommentLength)
	}

	if n > s.cfg.Limits.MaxCommentLength {
		return "", fmt.Errorf("%w: comment must be at most %d characters", ErrInvalidArgument, s.cfg.Limits.MaxCommentLength)
	}

	return content, nil
}

// fillComment дополняет подтверждение бэкенда полями, которые он мог не вернуть.
func fillComment(c models.Comment, listingID, author uuid.UUID, parentID string) models.Comment {
	if c.ListingID == uuid.Nil {
		c.ListingID = listingID
	}

	if c.AuthorID == uuid.Nil {
		c.AuthorID = author
	}

	if parentID != "" {
		c.ParentCommentID = parentID
	}

	c.Replies = nil

	return c
}
