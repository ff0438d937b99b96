package http

import (
	"inbox_worker/core/domain"
	"inbox_worker/core/port/out"
	"inbox_worker/core/service/contact"
	"inbox_worker/core/service/draft"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"
	"inbox_worker/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// DraftHandler exposes the reply-draft review queue.
type DraftHandler struct {
	queue     *draft.Queue
	store     *contact.Store
	providers map[domain.Source]out.MailProvider
}

// NewDraftHandler creates a new DraftHandler
func NewDraftHandler(queue *draft.Queue, store *contact.Store, providers map[domain.Source]out.MailProvider) *DraftHandler {
	return &DraftHandler{queue: queue, store: store, providers: providers}
}

// Register registers draft routes
func (h *DraftHandler) Register(router fiber.Router) {
	drafts := router.Group("/drafts")

	drafts.Get("/", h.List)
	drafts.Get("/:id", h.Get)

	// Review lifecycle
	drafts.Post("/:id/approve", h.Approve)
	drafts.Post("/:id/reject", h.Reject)
	drafts.Post("/:id/send", h.Send)
}

// List lists drafts, optionally filtered by contact_id, newest first.
func (h *DraftHandler) List(c *fiber.Ctx) error {
	drafts, err := h.queue.List(c.Context(), c.Query("contact_id"))
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OKWithMeta(c, drafts, &response.Meta{Total: len(drafts)})
}

// Get returns a single draft.
func (h *DraftHandler) Get(c *fiber.Ctx) error {
	d, err := h.queue.Get(c.Context(), c.Params("id"))
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, d)
}

// Approve moves a pending draft to approved.
func (h *DraftHandler) Approve(c *fiber.Ctx) error {
	d, err := h.queue.UpdateStatus(c.Context(), c.Params("id"), domain.DraftStatusApproved)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, d)
}

// Reject moves a draft to rejected. A rejected draft no longer suppresses
// regeneration for its thread.
func (h *DraftHandler) Reject(c *fiber.Ctx) error {
	d, err := h.queue.UpdateStatus(c.Context(), c.Params("id"), domain.DraftStatusRejected)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, d)
}

// Send dispatches an approved draft through its mail provider and marks
// it sent. The status only advances after the provider accepted the reply.
func (h *DraftHandler) Send(c *fiber.Ctx) error {
	d, err := h.queue.Get(c.Context(), c.Params("id"))
	if err != nil {
		return response.AppError(c, err)
	}
	if !d.Status.CanTransition(domain.DraftStatusSent) {
		return response.AppError(c, apperr.InvalidTransition(string(d.Status), string(domain.DraftStatusSent)))
	}

	ct, ok := h.store.Get(d.ContactID)
	if !ok {
		return response.NotFound(c, "contact not found")
	}
	provider, ok := h.providers[ct.Source]
	if !ok {
		return response.BadRequest(c, "no provider configured for source "+string(ct.Source))
	}

	reply := &out.ProviderReply{
		ThreadID: d.ThreadID,
		To:       ct.Email,
		Subject:  d.Subject,
		Body:     d.GeneratedReply,
	}
	if t, ok := ct.Threads[d.ThreadID]; ok {
		reply.MessageID = t.LastMessageID
	}

	if err := provider.SendReply(c.Context(), reply); err != nil {
		logger.WithError(err).WithField("draft", d.ID).Error("Reply send failed")
		return response.AppError(c, err)
	}

	d, err = h.queue.UpdateStatus(c.Context(), d.ID, domain.DraftStatusSent)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, d)
}
