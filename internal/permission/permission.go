// permission решает, кто может начать, продолжить или ответить на разговор об объявлении.
// Все функции чистые: решение строится только из актора, объявления и истории обмена.
// Бэкенд остаётся источником истины — эти проверки лишь не пускают в сеть заведомо
// запрещённые действия.
package permission

import (
	"github.com/pribylovaa/listing-conversations/internal/models"
)

// CanStartThread — может ли актор начать переписку по объявлению.
// Владелец не может написать сам себе; аноним не может ничего.
func CanStartThread(actor models.Actor, listing models.Listing) bool {
	if !actor.Authenticated() {
		return false
	}

	return actor.ID != listing.OwnerID
}

// CanSendIntoThread — может ли актор писать в существующую переписку.
// thread == nil означает «переписки ещё нет»: продавец переписки не создаёт, только отвечает.
func CanSendIntoThread(actor models.Actor, thread *models.Thread) bool {
	if thread == nil || !actor.Authenticated() {
		return false
	}

	return thread.HasParticipant(actor.ID)
}

// CanSend объединяет обе проверки: без переписки — правило старта, с перепиской — правило участия.
func CanSend(actor models.Actor, listing models.Listing, thread *models.Thread) bool {
	if thread == nil {
		return CanStartThread(actor, listing)
	}

	return CanSendIntoThread(actor, thread)
}

// CanPostTopLevelComment — корневой комментарий может оставить любой аутентифицированный
// пользователь, кроме владельца объявления.
func CanPostTopLevelComment(actor models.Actor, listing models.Listing) bool {
	return actor.Authenticated() && actor.ID != listing.OwnerID
}

// CanReplyToComment — правило взаимного допуска к ответам.
//
//   - владелец объявления может ответить на любой корневой комментарий;
//   - автор комментария может продолжить обмен только после того, как владелец ответил хотя бы раз;
//   - остальные не могут, чтобы третьи лица не вклинивались в чужой разговор с владельцем.
//
// repliesSoFar — ответы, известные локально на момент проверки. Если ответ владельца ещё
// не доехал, проверка закрывается (fail closed).
func CanReplyToComment(actor models.Actor, listing models.Listing, comment models.Comment, repliesSoFar []models.Comment) bool {
	if !actor.Authenticated() || comment.IsReply() {
		return false
	}

	if actor.ID == listing.OwnerID {
		return true
	}

	if actor.ID != comment.AuthorID {
		return false
	}

	return ownerReplied(listing, repliesSoFar)
}

// CanDeleteNode — удалить комментарий или ответ может только его автор.
// На сообщения правило не распространяется: удаляется только переписка целиком.
func CanDeleteNode(actor models.Actor, node models.Comment) bool {
	return actor.Authenticated() && actor.ID == node.AuthorID
}

func ownerReplied(listing models.Listing, replies []models.Comment) bool {
	for _, r := range replies {
		if r.AuthorID == listing.OwnerID {
			return true
		}
	}

	return false
}
