package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/listing-conversations/internal/backend"
	"github.com/pribylovaa/listing-conversations/internal/models"
)

func (f fixture) comment(id string, author uuid.UUID, at time.Duration, replies ...models.Comment) models.Comment {
	return models.Comment{
		ID:        id,
		ListingID: f.listing.ID,
		AuthorID:  author,
		Content:   "hello there",
		CreatedAt: f.t0.Add(at),
		Replies:   replies,
	}
}

func (f fixture) reply(id, parent string, author uuid.UUID, at time.Duration) models.Comment {
	c := f.comment(id, author, at)
	c.ParentCommentID = parent
	return c
}

// Слишком короткий или длинный текст отклоняется без обращения к бэкенду.
func TestService_PostComment_LengthNoNetwork(t *testing.T) {
	s, _, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	ctx := context.Background()

	for _, content := range []string{"", "    ", "abcd", "  ab  ", "это очень длинный комментарий, который не влезает в лимит"} {
		_, err := s.PostComment(ctx, f.buyer, f.listing.ID, content)
		require.ErrorIs(t, err, ErrInvalidArgument, content)

		_, err = s.PostReply(ctx, f.seller, f.listing.ID, "c1", content)
		require.ErrorIs(t, err, ErrInvalidArgument, content)
	}
}

// Ровно минимальная длина проходит; считаются символы, а не байты.
func TestService_PostComment_OK(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()

	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return(nil, nil)
	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil)
	mb.EXPECT().
		PostComment(gomock.Any(), f.listing.ID, backend.PostCommentRequest{Content: "Цена?"}).
		Return(models.Comment{ID: "c1", Content: "Цена?", CreatedAt: f.t0}, nil)

	c, err := s.PostComment(context.Background(), f.buyer, f.listing.ID, "  Цена?  ")
	require.NoError(t, err)
	require.Equal(t, "c1", c.ID)
	require.Equal(t, f.buyer.ID, c.AuthorID)
	require.Equal(t, f.listing.ID, c.ListingID)

	comments, ok := s.stores.For(f.buyer.ID).Snapshot().CommentsOf(f.listing.ID)
	require.True(t, ok)
	require.Len(t, comments, 1)
}

// Владелец не оставляет корневых комментариев к своему объявлению.
func TestService_PostComment_OwnerDenied(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()

	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return(nil, nil)
	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil)

	_, err := s.PostComment(context.Background(), f.seller, f.listing.ID, "hello world")
	require.ErrorIs(t, err, ErrPermissionDenied)
}

// Автор комментария не может ответить, пока ответ владельца не загружен локально.
func TestService_PostReply_AuthorWaitsForOwner(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	ctx := context.Background()
	root := f.comment("c1", f.buyer.ID, 0)
	ownerReply := f.reply("r1", "c1", f.seller.ID, time.Minute)

	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{root}, nil)
	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil)

	_, err := s.PostReply(ctx, f.buyer, f.listing.ID, "c1", "any news?")
	require.ErrorIs(t, err, ErrPermissionDenied)

	// Ответ владельца загружен: автор может продолжить обмен.
	withReply := root
	withReply.Replies = []models.Comment{ownerReply}
	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{withReply}, nil)

	_, err = s.ListComments(ctx, f.buyer, f.listing.ID)
	require.NoError(t, err)

	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil)
	mb.EXPECT().
		PostComment(gomock.Any(), f.listing.ID, backend.PostCommentRequest{Content: "deal, thanks", ParentCommentID: "c1"}).
		Return(models.Comment{ID: "r2", Content: "deal, thanks", CreatedAt: f.t0.Add(2 * time.Minute)}, nil)

	r, err := s.PostReply(ctx, f.buyer, f.listing.ID, "c1", "deal, thanks")
	require.NoError(t, err)
	require.Equal(t, "c1", r.ParentCommentID)
	require.Equal(t, f.buyer.ID, r.AuthorID)

	parent, ok := s.stores.For(f.buyer.ID).Snapshot().FindComment(f.listing.ID, "c1")
	require.True(t, ok)
	require.Len(t, parent.Replies, 2)
	require.Equal(t, "r2", parent.Replies[1].ID)
}

// Третье лицо не может вклиниться в обмен; на ответ ответить нельзя.
func TestService_PostReply_Denied(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	ctx := context.Background()
	stranger := models.Actor{ID: uuid.New()}
	root := f.comment("c1", f.buyer.ID, 0, f.reply("r1", "c1", f.seller.ID, time.Minute))

	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{root}, nil).Times(2)
	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil)

	_, err := s.PostReply(ctx, stranger, f.listing.ID, "c1", "me too please")
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.PostReply(ctx, f.seller, f.listing.ID, "r1", "nested reply")
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.PostReply(ctx, f.seller, f.listing.ID, "c404", "hello there")
	require.ErrorIs(t, err, ErrNotFound)
}

// Владелец отвечает на любой корневой комментарий.
func TestService_PostReply_Owner(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	root := f.comment("c1", f.buyer.ID, 0)

	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{root}, nil)
	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil)
	mb.EXPECT().
		PostComment(gomock.Any(), f.listing.ID, backend.PostCommentRequest{Content: "still available", ParentCommentID: "c1"}).
		Return(models.Comment{ID: "r1", ParentCommentID: "c1", AuthorID: f.seller.ID, Content: "still available"}, nil)

	r, err := s.PostReply(context.Background(), f.seller, f.listing.ID, "c1", "still available")
	require.NoError(t, err)
	require.Equal(t, "r1", r.ID)
}

// Удалить узел может только автор; при ошибке бэкенда узел на месте.
func TestService_DeleteNode(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	ctx := context.Background()
	root := f.comment("c1", f.buyer.ID, 0, f.reply("r1", "c1", f.seller.ID, time.Minute))

	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{root}, nil)

	err := s.DeleteNode(ctx, f.seller, f.listing.ID, "c1")
	require.ErrorIs(t, err, ErrPermissionDenied)

	mb.EXPECT().DeleteComment(gomock.Any(), f.listing.ID, "r1").Return(backend.ErrTransport)
	err = s.DeleteNode(ctx, f.seller, f.listing.ID, "r1")
	require.ErrorIs(t, err, ErrUnavailable)

	_, _, ok := s.stores.For(f.seller.ID).Snapshot().FindNode(f.listing.ID, "r1")
	require.True(t, ok)

	mb.EXPECT().DeleteComment(gomock.Any(), f.listing.ID, "r1").Return(nil)
	require.NoError(t, s.DeleteNode(ctx, f.seller, f.listing.ID, "r1"))

	snap := s.stores.For(f.seller.ID).Snapshot()
	_, _, ok = snap.FindNode(f.listing.ID, "r1")
	require.False(t, ok)
	parent, ok := snap.FindComment(f.listing.ID, "c1")
	require.True(t, ok)
	require.Empty(t, parent.Replies)

	err = s.DeleteNode(ctx, f.seller, f.listing.ID, "r1")
	require.ErrorIs(t, err, ErrNotFound)
}

// Комментарии читает и аноним; корни отсортированы по времени, локально ничего не остаётся.
func TestService_ListComments_Anonymous(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	other := uuid.New()
	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{
		f.comment("c2", f.buyer.ID, time.Hour),
		f.comment("c1", f.buyer.ID, 0),
	}, nil)
	mb.EXPECT().ListComments(gomock.Any(), other).Return(nil, nil)

	list, err := s.ListComments(context.Background(), models.Actor{}, f.listing.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "c1", list[0].ID)

	_, err = s.ListComments(context.Background(), models.Actor{}, other)
	require.NoError(t, err)

	require.Zero(t, s.Viewers())
	_, ok := s.stores.For(uuid.Nil).Snapshot().CommentsOf(f.listing.ID)
	require.False(t, ok)
}

// Флаги страницы объявления для покупателя, владельца и анонима.
func TestService_Capabilities(t *testing.T) {
	s, mb, _, ctrl := newServiceWithMocks(t)
	defer ctrl.Finish()

	f := newFixture()
	ctx := context.Background()
	root := f.comment("c1", f.buyer.ID, 0, f.reply("r1", "c1", f.seller.ID, time.Minute))

	mb.EXPECT().GetListing(gomock.Any(), f.listing.ID).Return(f.listing, nil).Times(3)
	mb.EXPECT().ListComments(gomock.Any(), f.listing.ID).Return([]models.Comment{root}, nil).Times(3)
	mb.EXPECT().ListThreads(gomock.Any()).Return([]models.Thread{f.thread("t1")}, nil).Times(2)

	buyer, err := s.Capabilities(ctx, f.buyer, f.listing.ID)
	require.NoError(t, err)
	require.False(t, buyer.IsOwner)
	require.True(t, buyer.CanStartThread)
	require.True(t, buyer.CanSend)
	require.Equal(t, "t1", buyer.ThreadID)
	require.True(t, buyer.CanPostComment)
	require.Equal(t, CommentCapabilities{CanReply: true, CanDelete: true}, buyer.Comments["c1"])
	require.Equal(t, CommentCapabilities{}, buyer.Comments["r1"])

	owner, err := s.Capabilities(ctx, f.seller, f.listing.ID)
	require.NoError(t, err)
	require.True(t, owner.IsOwner)
	require.False(t, owner.CanStartThread)
	require.False(t, owner.CanSend)
	require.Empty(t, owner.ThreadID)
	require.False(t, owner.CanPostComment)
	require.Equal(t, CommentCapabilities{CanReply: true}, owner.Comments["c1"])
	require.Equal(t, CommentCapabilities{CanDelete: true}, owner.Comments["r1"])

	anon, err := s.Capabilities(ctx, models.Actor{}, f.listing.ID)
	require.NoError(t, err)
	require.False(t, anon.CanSend)
	require.False(t, anon.CanPostComment)
	require.Equal(t, CommentCapabilities{}, anon.Comments["c1"])
}
