package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/threads"
)

// Reduce применяет команду к состоянию и возвращает новое состояние.
// При ошибке возвращается исходное состояние без изменений: неудачная команда
// никогда не мутирует репозиторий частично.
func Reduce(s State, cmd Command) (State, error) {
	const op = "store/reducer/Reduce"

	var (
		next State
		err  error
	)

	switch c := cmd.(type) {
	case ThreadsLoaded:
		next, err = reduceThreadsLoaded(s, c)
	case ThreadSelected:
		next, err = reduceThreadSelected(s, c)
	case MessagesLoaded:
		next, err = reduceMessagesLoaded(s, c)
	case SendStarted:
		next, err = reduceSendStarted(s, c)
	case SendSettled:
		next, err = reduceSendSettled(s, c)
	case MessageSent:
		next, err = reduceMessageSent(s, c)
	case ThreadRead:
		next, err = reduceThreadRead(s, c)
	case ThreadDeleted:
		next, err = reduceThreadDeleted(s, c)
	case CommentsLoaded:
		next, err = reduceCommentsLoaded(s, c)
	case CommentPosted:
		next, err = reduceCommentPosted(s, c)
	case ReplyPosted:
		next, err = reduceReplyPosted(s, c)
	case NodeDeleted:
		next, err = reduceNodeDeleted(s, c)
	default:
		return s, fmt.Errorf("%s: %T: %w", op, cmd, ErrUnknownCommand)
	}

	if err != nil {
		return s, fmt.Errorf("%s: %w", op, err)
	}

	return next, nil
}

// --- переписки ---

func reduceThreadsLoaded(s State, c ThreadsLoaded) (State, error) {
	seen := make(map[threads.Key]bool, len(c.Threads))
	list := make([]models.Thread, 0, len(c.Threads))

	// На пару (объявление, покупатель) — не больше одной переписки: дубликаты отбрасываем.
	for _, t := range c.Threads {
		k := threads.KeyOf(t)
		if seen[k] {
			continue
		}
		seen[k] = true

		t.Messages = sortMessages(t.Messages)
		list = append(list, t)
	}

	msgs := make(map[string][]models.Message, len(s.Messages))
	for _, t := range list {
		full, ok := s.Messages[t.ID]
		if !ok || isStale(full, t) {
			continue
		}
		msgs[t.ID] = full
	}

	s.Threads = list
	s.ThreadsLoaded = true
	s.Messages = msgs

	if _, ok := s.Thread(s.ActiveThreadID); !ok && s.ActiveThreadID != "" {
		s.ActiveThreadID = ""
		s.Generation++
	}

	return s, nil
}

// isStale — гидрированный список отстал от превью: в превью есть неизвестные сообщения
// или переписка была активна позже последнего известного сообщения.
func isStale(full []models.Message, t models.Thread) bool {
	known := make(map[int64]bool, len(full))
	var last time.Time
	for _, m := range full {
		known[m.ID] = true
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}

	for _, m := range t.Messages {
		if !known[m.ID] {
			return true
		}
	}

	return t.LastMessageAt.After(last)
}

func reduceThreadSelected(s State, c ThreadSelected) (State, error) {
	if c.ThreadID == "" {
		return s, fmt.Errorf("empty thread id: %w", ErrInvalidCommand)
	}

	s.ActiveThreadID = c.ThreadID
	s.Generation++

	return s, nil
}

func reduceMessagesLoaded(s State, c MessagesLoaded) (State, error) {
	if c.Generation != s.Generation || c.ThreadID != s.ActiveThreadID {
		return s, ErrStaleResponse
	}

	msgs := sortMessages(c.Messages)

	s.Messages = cloneMessages(s.Messages)
	s.Messages[c.ThreadID] = msgs

	if i := s.threadIndex(c.ThreadID); i >= 0 {
		t := s.Threads[i]
		if last := threads.LastActivity(t, msgs); last.After(t.LastMessageAt) {
			t.LastMessageAt = last
			s.Threads = replaceThread(s.Threads, i, t)
		}
	}

	return s, nil
}

func reduceSendStarted(s State, c SendStarted) (State, error) {
	if s.Sending[c.ListingID] {
		return s, ErrSendInProgress
	}

	s.Sending = cloneFlags(s.Sending)
	s.Sending[c.ListingID] = true

	return s, nil
}

func reduceSendSettled(s State, c SendSettled) (State, error) {
	if !s.Sending[c.ListingID] {
		return s, nil
	}

	s.Sending = cloneFlags(s.Sending)
	delete(s.Sending, c.ListingID)

	return s, nil
}

func reduceMessageSent(s State, c MessageSent) (State, error) {
	m := c.Message
	if m.ThreadID == "" || m.ThreadID != c.Thread.ID {
		return s, fmt.Errorf("message thread %q does not match %q: %w", m.ThreadID, c.Thread.ID, ErrInvalidCommand)
	}

	i := s.threadIndex(m.ThreadID)
	if i < 0 {
		// Первый контакт: переписка новая, её полный список — это и есть первое сообщение.
		t := c.Thread
		t.Messages = []models.Message{m}
		if m.CreatedAt.After(t.LastMessageAt) {
			t.LastMessageAt = m.CreatedAt
		}

		s.Messages = cloneMessages(s.Messages)
		s.Messages[t.ID] = []models.Message{m}

		// Бэкенд завёл новую переписку для той же пары: старая у него уже не существует.
		if j := keyIndex(s.Threads, threads.KeyOf(t)); j >= 0 {
			stale := s.Threads[j].ID
			delete(s.Messages, stale)
			s.Threads = replaceThread(s.Threads, j, t)
			if s.ActiveThreadID == stale {
				s.ActiveThreadID = ""
				s.Generation++
			}

			return s, nil
		}

		s.Threads = append(append(make([]models.Thread, 0, len(s.Threads)+1), s.Threads...), t)

		return s, nil
	}

	t := s.Threads[i]
	if m.CreatedAt.After(t.LastMessageAt) {
		t.LastMessageAt = m.CreatedAt
	}

	if full, ok := s.Messages[t.ID]; ok {
		s.Messages = cloneMessages(s.Messages)
		s.Messages[t.ID] = appendMessage(full, m)
	} else {
		// Переписка не открывалась: дописываем в превью, чтобы не выдать частичный список за полный.
		t.Messages = appendMessage(t.Messages, m)
	}

	s.Threads = replaceThread(s.Threads, i, t)

	return s, nil
}

func reduceThreadRead(s State, c ThreadRead) (State, error) {
	i := s.threadIndex(c.ThreadID)
	if i < 0 {
		return s, ErrThreadNotFound
	}

	t := s.Threads[i]
	t.Messages = markRead(t.Messages, c.Viewer)
	s.Threads = replaceThread(s.Threads, i, t)

	if full, ok := s.Messages[c.ThreadID]; ok {
		s.Messages = cloneMessages(s.Messages)
		s.Messages[c.ThreadID] = markRead(full, c.Viewer)
	}

	return s, nil
}

func reduceThreadDeleted(s State, c ThreadDeleted) (State, error) {
	i := s.threadIndex(c.ThreadID)
	if i < 0 {
		return s, ErrThreadNotFound
	}

	list := make([]models.Thread, 0, len(s.Threads)-1)
	list = append(list, s.Threads[:i]...)
	list = append(list, s.Threads[i+1:]...)
	s.Threads = list

	s.Messages = cloneMessages(s.Messages)
	delete(s.Messages, c.ThreadID)

	if s.ActiveThreadID == c.ThreadID {
		// Загрузка удалённой переписки, если она ещё в полёте, станет устаревшей.
		s.ActiveThreadID = ""
		s.Generation++
	}

	return s, nil
}

// --- комментарии ---

func reduceCommentsLoaded(s State, c CommentsLoaded) (State, error) {
	list := make([]models.Comment, 0, len(c.Comments))
	for _, cm := range c.Comments {
		if cm.IsReply() {
			continue
		}
		cm.Replies = sortComments(cm.Replies)
		list = append(list, cm)
	}

	s.Comments = cloneComments(s.Comments)
	s.Comments[c.ListingID] = sortComments(list)

	return s, nil
}

func reduceCommentPosted(s State, c CommentPosted) (State, error) {
	if c.Comment.IsReply() {
		return s, fmt.Errorf("comment %q has a parent: %w", c.Comment.ID, ErrInvalidCommand)
	}

	cur := s.Comments[c.ListingID]
	for _, cm := range cur {
		if cm.ID == c.Comment.ID {
			return s, nil
		}
	}

	cm := c.Comment
	cm.Replies = sortComments(cm.Replies)

	list := append(append(make([]models.Comment, 0, len(cur)+1), cur...), cm)

	s.Comments = cloneComments(s.Comments)
	s.Comments[c.ListingID] = sortComments(list)

	return s, nil
}

func reduceReplyPosted(s State, c ReplyPosted) (State, error) {
	cur := s.Comments[c.ListingID]

	idx := -1
	for i, cm := range cur {
		if cm.ID == c.ParentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, ErrCommentNotFound
	}

	parent := cur[idx]
	for _, r := range parent.Replies {
		if r.ID == c.Reply.ID {
			return s, nil
		}
	}

	reply := c.Reply
	reply.Replies = nil
	if reply.ParentCommentID == "" {
		reply.ParentCommentID = c.ParentID
	}

	replies := append(append(make([]models.Comment, 0, len(parent.Replies)+1), parent.Replies...), reply)
	parent.Replies = sortComments(replies)

	list := make([]models.Comment, len(cur))
	copy(list, cur)
	list[idx] = parent

	s.Comments = cloneComments(s.Comments)
	s.Comments[c.ListingID] = list

	return s, nil
}

func reduceNodeDeleted(s State, c NodeDeleted) (State, error) {
	cur := s.Comments[c.ListingID]

	for i, cm := range cur {
		if cm.ID == c.CommentID {
			list := make([]models.Comment, 0, len(cur)-1)
			list = append(list, cur[:i]...)
			list = append(list, cur[i+1:]...)

			s.Comments = cloneComments(s.Comments)
			s.Comments[c.ListingID] = list

			return s, nil
		}

		for j, r := range cm.Replies {
			if r.ID != c.CommentID {
				continue
			}

			replies := make([]models.Comment, 0, len(cm.Replies)-1)
			replies = append(replies, cm.Replies[:j]...)
			replies = append(replies, cm.Replies[j+1:]...)
			cm.Replies = replies

			list := make([]models.Comment, len(cur))
			copy(list, cur)
			list[i] = cm

			s.Comments = cloneComments(s.Comments)
			s.Comments[c.ListingID] = list

			return s, nil
		}
	}

	return s, ErrCommentNotFound
}

// --- помощники copy-on-write ---

// sortMessages возвращает новый срез без дубликатов ID, стабильно упорядоченный по CreatedAt.
func sortMessages(in []models.Message) []models.Message {
	seen := make(map[int64]bool, len(in))
	out := make([]models.Message, 0, len(in))
	for _, m := range in {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func appendMessage(list []models.Message, m models.Message) []models.Message {
	out := make([]models.Message, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, m)

	return sortMessages(out)
}

func markRead(list []models.Message, viewer uuid.UUID) []models.Message {
	if list == nil {
		return nil
	}

	out := make([]models.Message, len(list))
	for i, m := range list {
		if m.SenderID != viewer {
			m.IsRead = true
		}
		out[i] = m
	}

	return out
}

func sortComments(in []models.Comment) []models.Comment {
	if in == nil {
		return nil
	}

	out := make([]models.Comment, len(in))
	copy(out, in)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func keyIndex(list []models.Thread, key threads.Key) int {
	for i, t := range list {
		if threads.KeyOf(t) == key {
			return i
		}
	}

	return -1
}

func replaceThread(list []models.Thread, i int, t models.Thread) []models.Thread {
	out := make([]models.Thread, len(list))
	copy(out, list)
	out[i] = t

	return out
}

func cloneMessages(m map[string][]models.Message) map[string][]models.Message {
	out := make(map[string][]models.Message, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}

func cloneComments(m map[uuid.UUID][]models.Comment) map[uuid.UUID][]models.Comment {
	out := make(map[uuid.UUID][]models.Comment, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}

func cloneFlags(m map[uuid.UUID]bool) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}
