package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/permission"
	"github.com/pribylovaa/listing-conversations/internal/threads"
	"github.com/pribylovaa/listing-conversations/pkg/log"
)

// CommentCapabilities — доступные действия над узлом комментариев.
type CommentCapabilities struct {
	CanReply  bool `json:"canReply"`
	CanDelete bool `json:"canDelete"`
}

// Capabilities — что зрителю можно делать на странице объявления.
// UI показывает или прячет элементы управления по этим флагам.
type Capabilities struct {
	ListingID      uuid.UUID                      `json:"listingId"`
	IsOwner        bool                           `json:"isOwner"`
	CanStartThread bool                           `json:"canStartThread"`
	CanSend        bool                           `json:"canSend"`
	ThreadID       string                         `json:"threadId,omitempty"`
	IsSending      bool                           `json:"isSending"`
	CanPostComment bool                           `json:"canPostComment"`
	Comments       map[string]CommentCapabilities `json:"comments"`
}

// Capabilities вычисляет флаги по объявлению, справочнику переписок и комментариям.
func (s *Service) Capabilities(ctx context.Context, actor models.Actor, listingID uuid.UUID) (Capabilities, error) {
	const op = "service/capabilities/Capabilities"

	lg := log.From(ctx).With("op", op, "user_id", actor.ID.String(), "listing_id", listingID.String())

	l, err := s.listing(ctx, listingID)
	if err != nil {
		return Capabilities{}, fmt.Errorf("%s: %w", op, err)
	}

	st := s.storeFor(actor)

	if actor.Authenticated() {
		if err := s.ensureThreads(ctx, actor, st); err != nil {
			return Capabilities{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.ensureComments(ctx, listingID, st); err != nil {
		return Capabilities{}, fmt.Errorf("%s: %w", op, err)
	}

	snap := st.Snapshot()

	out := Capabilities{
		ListingID:      listingID,
		IsOwner:        l.IsOwner(actor),
		CanStartThread: permission.CanStartThread(actor, l),
		IsSending:      snap.IsSending(listingID),
		CanPostComment: permission.CanPostTopLevelComment(actor, l),
		Comments:       make(map[string]CommentCapabilities),
	}

	var thread *models.Thread
	if ref, ok := threads.Resolve(snap.Threads, listingID, actor.ID); ok {
		t := ref.Thread
		thread = &t
		out.ThreadID = t.ID
	}

	out.CanSend = permission.CanSend(actor, l, thread)

	comments, _ := snap.CommentsOf(listingID)
	for _, c := range comments {
		out.Comments[c.ID] = CommentCapabilities{
			CanReply:  permission.CanReplyToComment(actor, l, c, c.Replies),
			CanDelete: permission.CanDeleteNode(actor, c),
		}

		for _, r := range c.Replies {
			out.Comments[r.ID] = CommentCapabilities{
				CanDelete: permission.CanDeleteNode(actor, r),
			}
		}
	}

	lg.Debug("capabilities computed", "can_send", out.CanSend, "thread_id", out.ThreadID)

	return out, nil
}
