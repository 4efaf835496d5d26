package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/listing-conversations/internal/http/errors"
	"github.com/pribylovaa/listing-conversations/internal/http/middleware"
	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/service"
	"github.com/pribylovaa/listing-conversations/internal/threads"
)

type threadsResponse struct {
	Threads []service.ThreadView `json:"threads"`
}

type markReadResponse struct {
	Marked int `json:"marked"`
}

type resolveResponse struct {
	Found  bool               `json:"found"`
	Thread *threads.ThreadRef `json:"thread,omitempty"`
}

// sendMessageRequest — тело POST /listings/{listingId}/messages.
// ThreadID задаёт продавец, отвечая в существующую переписку.
type sendMessageRequest struct {
	ThreadID   string             `json:"threadId,omitempty"`
	Content    string             `json:"content"`
	IsOffer    bool               `json:"isOffer,omitempty"`
	OfferPrice *float64           `json:"offerPrice,omitempty"`
	Attachment *models.Attachment `json:"attachment,omitempty"`
}

func (h *Handlers) ListThreads(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.FetchThreads(r.Context(), middleware.ActorFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if views == nil {
		views = []service.ThreadView{}
	}

	writeJSON(w, http.StatusOK, threadsResponse{Threads: views})
}

func (h *Handlers) OpenThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	d, err := h.svc.OpenThread(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) MarkThreadRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	n, err := h.svc.MarkThreadRead(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, markReadResponse{Marked: n})
}

func (h *Handlers) DeleteThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteThread(r.Context(), middleware.ActorFrom(r.Context()), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Unread(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Unread(r.Context(), middleware.ActorFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

func (h *Handlers) ResolveThread(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	ref, ok, err := h.svc.ResolveThread(r.Context(), middleware.ActorFrom(r.Context()), lid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := resolveResponse{Found: ok}
	if ok {
		out.Thread = &ref
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	lid, err := listingID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in sendMessageRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.SendMessage(r.Context(), middleware.ActorFrom(r.Context()), lid, in.ThreadID, service.SendMessageInput{
		Content:    in.Content,
		IsOffer:    in.IsOffer,
		OfferPrice: in.OfferPrice,
		Attachment: in.Attachment,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}
