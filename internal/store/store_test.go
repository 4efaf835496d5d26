package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

var (
	seller  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	buyer   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	buyer2  = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	listing = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	base    = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func msg(id int64, thread string, sender uuid.UUID, at time.Duration) models.Message {
	return models.Message{ID: id, ThreadID: thread, SenderID: sender, Content: "m", CreatedAt: base.Add(at)}
}

func thread(id string, b uuid.UUID, preview ...models.Message) models.Thread {
	t := models.Thread{ID: id, ListingID: listing, SellerID: seller, BuyerID: b, Messages: preview}
	for _, m := range preview {
		if m.CreatedAt.After(t.LastMessageAt) {
			t.LastMessageAt = m.CreatedAt
		}
	}
	return t
}

func ids(list []models.Message) []int64 {
	out := make([]int64, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

// loaded — репозиторий с одной открытой перепиской t1 и её полным списком сообщений.
func loaded(t *testing.T) *Store {
	t.Helper()

	st := New()
	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{
		thread("t1", buyer, msg(2, "t1", seller, 2*time.Minute)),
		thread("t2", buyer2, msg(5, "t2", buyer2, time.Minute)),
	}}))

	gen, err := st.Select("t1")
	require.NoError(t, err)
	require.NoError(t, st.Dispatch(MessagesLoaded{
		ThreadID:   "t1",
		Generation: gen,
		Messages: []models.Message{
			msg(2, "t1", seller, 2*time.Minute),
			msg(1, "t1", buyer, time.Minute),
		},
	}))

	return st
}

func TestReduce_UnknownCommand(t *testing.T) {
	t.Parallel()

	var s State
	_, err := Reduce(s, nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

// TestThreadsLoaded_DedupesPair — на пару (объявление, покупатель) остаётся одна переписка.
func TestThreadsLoaded_DedupesPair(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{
		thread("t1", buyer),
		thread("t1-dup", buyer),
		thread("t2", buyer2),
	}}))

	snap := st.Snapshot()
	require.True(t, snap.ThreadsLoaded)
	require.Len(t, snap.Threads, 2)
	require.Equal(t, "t1", snap.Threads[0].ID)
	require.Equal(t, "t2", snap.Threads[1].ID)
}

// TestThreadsLoaded_DropsVanishedActive — исчезнувшая активная переписка сбрасывается вместе с её сообщениями.
func TestThreadsLoaded_DropsVanishedActive(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	before := st.Snapshot().Generation

	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{thread("t2", buyer2)}}))

	snap := st.Snapshot()
	require.Empty(t, snap.ActiveThreadID)
	require.Greater(t, snap.Generation, before)
	_, ok := snap.Messages["t1"]
	require.False(t, ok)
}

// TestThreadsLoaded_InvalidatesOutdatedHydration — превью новее полного списка: полный список сбрасывается.
func TestThreadsLoaded_InvalidatesOutdatedHydration(t *testing.T) {
	t.Parallel()

	st := loaded(t)

	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{
		thread("t1", buyer, msg(9, "t1", seller, 10*time.Minute)),
		thread("t2", buyer2, msg(5, "t2", buyer2, time.Minute)),
	}}))

	msgs, hydrated := st.Snapshot().MessagesOf("t1")
	require.False(t, hydrated)
	require.Equal(t, []int64{9}, ids(msgs))
}

func TestThreadsLoaded_KeepsCurrentHydration(t *testing.T) {
	t.Parallel()

	st := loaded(t)

	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{
		thread("t1", buyer, msg(2, "t1", seller, 2*time.Minute)),
	}}))

	msgs, hydrated := st.Snapshot().MessagesOf("t1")
	require.True(t, hydrated)
	require.Equal(t, []int64{1, 2}, ids(msgs))
}

// TestMessagesLoaded_OrderedWithoutDuplicates — порядок по createdAt и отсутствие дублей ID.
func TestMessagesLoaded_OrderedWithoutDuplicates(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{thread("t1", buyer)}}))
	gen, err := st.Select("t1")
	require.NoError(t, err)

	require.NoError(t, st.Dispatch(MessagesLoaded{ThreadID: "t1", Generation: gen, Messages: []models.Message{
		msg(3, "t1", buyer, 3*time.Minute),
		msg(1, "t1", buyer, time.Minute),
		msg(3, "t1", buyer, 3*time.Minute),
		msg(2, "t1", seller, 2*time.Minute),
	}}))

	snap := st.Snapshot()
	msgs, hydrated := snap.MessagesOf("t1")
	require.True(t, hydrated)
	require.Equal(t, []int64{1, 2, 3}, ids(msgs))

	th, ok := snap.Thread("t1")
	require.True(t, ok)
	require.Equal(t, base.Add(3*time.Minute), th.LastMessageAt)
}

// TestMessagesLoaded_StaleGeneration — ответ для переписки, с которой уже ушли, отбрасывается.
func TestMessagesLoaded_StaleGeneration(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{
		thread("t1", buyer),
		thread("t2", buyer2),
	}}))

	genA, err := st.Select("t1")
	require.NoError(t, err)
	genB, err := st.Select("t2")
	require.NoError(t, err)
	require.NotEqual(t, genA, genB)

	err = st.Dispatch(MessagesLoaded{ThreadID: "t1", Generation: genA, Messages: []models.Message{msg(1, "t1", buyer, 0)}})
	require.ErrorIs(t, err, ErrStaleResponse)

	_, hydrated := st.Snapshot().MessagesOf("t1")
	require.False(t, hydrated)

	// Повторный выбор той же переписки тоже делает старый ответ устаревшим.
	genC, err := st.Select("t2")
	require.NoError(t, err)
	err = st.Dispatch(MessagesLoaded{ThreadID: "t2", Generation: genB})
	require.ErrorIs(t, err, ErrStaleResponse)
	require.NoError(t, st.Dispatch(MessagesLoaded{ThreadID: "t2", Generation: genC}))
}

func TestSendFlag(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(SendStarted{ListingID: listing}))
	require.True(t, st.Snapshot().IsSending(listing))

	require.ErrorIs(t, st.Dispatch(SendStarted{ListingID: listing}), ErrSendInProgress)

	require.NoError(t, st.Dispatch(SendSettled{ListingID: listing}))
	require.False(t, st.Snapshot().IsSending(listing))

	// Повторное завершение безвредно.
	require.NoError(t, st.Dispatch(SendSettled{ListingID: listing}))
}

// TestMessageSent_FirstContact — первое сообщение добавляет переписку с полным списком из одного сообщения.
func TestMessageSent_FirstContact(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(ThreadsLoaded{}))

	m := msg(10, "t9", buyer, time.Minute)
	require.NoError(t, st.Dispatch(MessageSent{Thread: thread("t9", buyer), Message: m}))

	snap := st.Snapshot()
	th, ok := snap.Thread("t9")
	require.True(t, ok)
	require.Equal(t, m.CreatedAt, th.LastMessageAt)

	msgs, hydrated := snap.MessagesOf("t9")
	require.True(t, hydrated)
	require.Equal(t, []int64{10}, ids(msgs))
}

func TestMessageSent_AppendsToHydrated(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	m := msg(3, "t1", buyer, 3*time.Minute)
	require.NoError(t, st.Dispatch(MessageSent{Thread: thread("t1", buyer), Message: m}))

	// Повторное подтверждение того же сообщения не даёт дубля.
	require.NoError(t, st.Dispatch(MessageSent{Thread: thread("t1", buyer), Message: m}))

	snap := st.Snapshot()
	msgs, _ := snap.MessagesOf("t1")
	require.Equal(t, []int64{1, 2, 3}, ids(msgs))

	th, _ := snap.Thread("t1")
	require.Equal(t, m.CreatedAt, th.LastMessageAt)
}

func TestMessageSent_AppendsToPreview(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	m := msg(6, "t2", seller, 5*time.Minute)
	require.NoError(t, st.Dispatch(MessageSent{Thread: thread("t2", buyer2), Message: m}))

	msgs, hydrated := st.Snapshot().MessagesOf("t2")
	require.False(t, hydrated)
	require.Equal(t, []int64{5, 6}, ids(msgs))
}

// TestMessageSent_ReplacesThreadOfSamePair — новая переписка бэкенда для той же пары
// вытесняет старую вместе с её сообщениями; открытая старая загрузка становится устаревшей.
func TestMessageSent_ReplacesThreadOfSamePair(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	before := st.Snapshot()

	m := msg(9, "t7", buyer, time.Hour)
	require.NoError(t, st.Dispatch(MessageSent{Thread: thread("t7", buyer), Message: m}))

	snap := st.Snapshot()
	require.Len(t, snap.Threads, 2)
	_, ok := snap.Thread("t1")
	require.False(t, ok)

	got, ok := snap.Thread("t7")
	require.True(t, ok)
	require.Equal(t, buyer, got.BuyerID)

	_, hydrated := snap.MessagesOf("t1")
	require.False(t, hydrated)
	msgs, hydrated := snap.MessagesOf("t7")
	require.True(t, hydrated)
	require.Equal(t, []int64{9}, ids(msgs))

	require.Empty(t, snap.ActiveThreadID)
	require.Greater(t, snap.Generation, before.Generation)

	// Переписка другого покупателя не затронута.
	_, ok = snap.Thread("t2")
	require.True(t, ok)
}

func TestMessageSent_ThreadMismatch(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	before := st.Snapshot()

	err := st.Dispatch(MessageSent{Thread: thread("t1", buyer), Message: msg(3, "t2", buyer, 0)})
	require.ErrorIs(t, err, ErrInvalidCommand)
	require.Equal(t, before, st.Snapshot())
}

// TestThreadRead_FlipsOnlyCounterparty — прочитанными становятся только сообщения собеседника.
func TestThreadRead_FlipsOnlyCounterparty(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	require.NoError(t, st.Dispatch(ThreadRead{ThreadID: "t1", Viewer: buyer}))

	msgs, _ := st.Snapshot().MessagesOf("t1")
	for _, m := range msgs {
		require.Equal(t, m.SenderID == seller, m.IsRead, "message %d", m.ID)
	}

	require.ErrorIs(t, st.Dispatch(ThreadRead{ThreadID: "nope", Viewer: buyer}), ErrThreadNotFound)
}

// TestThreadDeleted_Atomic — переписка и её сообщения исчезают одним шагом, соседи не трогаются.
func TestThreadDeleted_Atomic(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	before := st.Snapshot()

	require.NoError(t, st.Dispatch(ThreadDeleted{ThreadID: "t1"}))

	snap := st.Snapshot()
	_, ok := snap.Thread("t1")
	require.False(t, ok)
	_, ok = snap.Messages["t1"]
	require.False(t, ok)
	require.Empty(t, snap.ActiveThreadID)
	require.Greater(t, snap.Generation, before.Generation)

	th, ok := snap.Thread("t2")
	require.True(t, ok)
	require.Equal(t, before.Threads[1], th)

	// Старый снимок не изменился.
	_, ok = before.Thread("t1")
	require.True(t, ok)
	require.Len(t, before.Messages["t1"], 2)
}

func TestThreadDeleted_Unknown(t *testing.T) {
	t.Parallel()

	st := loaded(t)
	before := st.Snapshot()

	require.ErrorIs(t, st.Dispatch(ThreadDeleted{ThreadID: "nope"}), ErrThreadNotFound)
	require.Equal(t, before, st.Snapshot())
}

func comment(id string, author uuid.UUID, at time.Duration, replies ...models.Comment) models.Comment {
	return models.Comment{ID: id, ListingID: listing, AuthorID: author, Content: "hello", CreatedAt: base.Add(at), Replies: replies}
}

func reply(id, parent string, author uuid.UUID, at time.Duration) models.Comment {
	c := comment(id, author, at)
	c.ParentCommentID = parent
	return c
}

func TestCommentsLoaded_Sorted(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(CommentsLoaded{ListingID: listing, Comments: []models.Comment{
		comment("c2", buyer2, 2*time.Minute),
		comment("c1", buyer, time.Minute,
			reply("r2", "c1", buyer, 4*time.Minute),
			reply("r1", "c1", seller, 3*time.Minute),
		),
	}}))

	list, ok := st.Snapshot().CommentsOf(listing)
	require.True(t, ok)
	require.Equal(t, "c1", list[0].ID)
	require.Equal(t, "c2", list[1].ID)
	require.Equal(t, "r1", list[0].Replies[0].ID)
	require.Equal(t, "r2", list[0].Replies[1].ID)
}

func TestCommentPosted(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(CommentsLoaded{ListingID: listing, Comments: []models.Comment{comment("c1", buyer, time.Minute)}}))
	require.NoError(t, st.Dispatch(CommentPosted{ListingID: listing, Comment: comment("c2", buyer2, 2*time.Minute)}))
	require.NoError(t, st.Dispatch(CommentPosted{ListingID: listing, Comment: comment("c2", buyer2, 2*time.Minute)}))

	list, _ := st.Snapshot().CommentsOf(listing)
	require.Len(t, list, 2)

	err := st.Dispatch(CommentPosted{ListingID: listing, Comment: reply("r1", "c1", seller, 0)})
	require.ErrorIs(t, err, ErrInvalidCommand)
}

func TestReplyPosted(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(CommentsLoaded{ListingID: listing, Comments: []models.Comment{comment("c1", buyer, time.Minute)}}))

	r := comment("r1", seller, 2*time.Minute)
	require.NoError(t, st.Dispatch(ReplyPosted{ListingID: listing, ParentID: "c1", Reply: r}))

	root, ok := st.Snapshot().FindComment(listing, "c1")
	require.True(t, ok)
	require.Len(t, root.Replies, 1)
	require.Equal(t, "c1", root.Replies[0].ParentCommentID)

	err := st.Dispatch(ReplyPosted{ListingID: listing, ParentID: "missing", Reply: r})
	require.ErrorIs(t, err, ErrCommentNotFound)
}

func TestNodeDeleted(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(CommentsLoaded{ListingID: listing, Comments: []models.Comment{
		comment("c1", buyer, time.Minute,
			reply("r1", "c1", seller, 2*time.Minute),
			reply("r2", "c1", buyer, 3*time.Minute),
		),
		comment("c2", buyer2, 4*time.Minute, reply("r3", "c2", seller, 5*time.Minute)),
	}}))

	// Удаление ответа убирает только его.
	require.NoError(t, st.Dispatch(NodeDeleted{ListingID: listing, CommentID: "r1"}))
	root, _ := st.Snapshot().FindComment(listing, "c1")
	require.Len(t, root.Replies, 1)
	require.Equal(t, "r2", root.Replies[0].ID)

	// Удаление корня уносит ветку целиком.
	require.NoError(t, st.Dispatch(NodeDeleted{ListingID: listing, CommentID: "c2"}))
	_, _, ok := st.Snapshot().FindNode(listing, "r3")
	require.False(t, ok)

	require.ErrorIs(t, st.Dispatch(NodeDeleted{ListingID: listing, CommentID: "c2"}), ErrCommentNotFound)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.For(buyer)
	require.Same(t, a, r.For(buyer))
	require.NotSame(t, a, r.For(seller))
	require.Equal(t, 2, r.Len())

}

// TestRegistry_SweepIdle — забываются только зрители, не обращавшиеся дольше idle.
func TestRegistry_SweepIdle(t *testing.T) {
	t.Parallel()

	now := base
	r := NewRegistry()
	r.now = func() time.Time { return now }

	stale := r.For(buyer)
	require.NoError(t, stale.Dispatch(ThreadsLoaded{Threads: []models.Thread{thread("t1", buyer)}}))

	now = now.Add(20 * time.Minute)
	fresh := r.For(seller)

	now = now.Add(15 * time.Minute)
	require.Equal(t, 1, r.Sweep(30*time.Minute))
	require.Equal(t, 1, r.Len())
	require.Same(t, fresh, r.For(seller))

	// Вытесненный зритель начинает с пустого состояния.
	again := r.For(buyer)
	require.NotSame(t, stale, again)
	require.False(t, again.Snapshot().ThreadsLoaded)
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// TestStore_ConcurrentDispatch — конкурентные отправки не теряют сообщений.
func TestStore_ConcurrentDispatch(t *testing.T) {
	t.Parallel()

	st := New()
	require.NoError(t, st.Dispatch(ThreadsLoaded{Threads: []models.Thread{thread("t1", buyer)}}))
	gen, err := st.Select("t1")
	require.NoError(t, err)
	require.NoError(t, st.Dispatch(MessagesLoaded{ThreadID: "t1", Generation: gen}))

	const n = 50
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			m := msg(id, "t1", buyer, time.Duration(id)*time.Second)
			_ = st.Dispatch(MessageSent{Thread: thread("t1", buyer), Message: m})
			_ = st.Snapshot()
		}(int64(i))
	}
	wg.Wait()

	msgs, _ := st.Snapshot().MessagesOf("t1")
	require.Len(t, msgs, n)
	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}
