package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/listing-conversations/internal/http/errors"
	"github.com/pribylovaa/listing-conversations/internal/http/middleware"
	"github.com/pribylovaa/listing-conversations/internal/models"
)

type commentsResponse struct {
	Comments []models.Comment `json:"comments"`
}

type postCommentRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	list, err := h.svc.ListComments(r.Context(), middleware.ActorFrom(r.Context()), lid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if list == nil {
		list = []models.Comment{}
	}

	writeJSON(w, http.StatusOK, commentsResponse{Comments: list})
}

func (h *Handlers) PostComment(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in postCommentRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	c, err := h.svc.PostComment(r.Context(), middleware.ActorFrom(r.Context()), lid, in.Content)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) PostReply(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	parentID, err := pathParam(r, "commentId")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in postCommentRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	reply, err := h.svc.PostReply(r.Context(), middleware.ActorFrom(r.Context()), lid, parentID, in.Content)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reply)
}

func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	commentID, err := pathParam(r, "commentId")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteNode(r.Context(), middleware.ActorFrom(r.Context()), lid, commentID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	caps, err := h.svc.Capabilities(r.Context(), middleware.ActorFrom(r.Context()), lid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, caps)
}
