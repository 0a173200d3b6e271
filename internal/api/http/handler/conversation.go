package handler

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/internal/realtime"
	"github.com/Alijeyrad/carelink/internal/service/conversation"
)

// HeaderIdempotencyKey carries the client message id when the body does not.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	defaultHeartbeat = 15 * time.Second
	streamRetryMs    = 3000
)

type ConversationHandler struct {
	svc       conversation.Service
	heartbeat time.Duration
}

func NewConversationHandler(svc conversation.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc, heartbeat: defaultHeartbeat}
}

// GET /conversations
func (h *ConversationHandler) List(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}

	convs, err := h.svc.ListConversations(c.Context(), caller)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, convs)
}

type createConversationRequest struct {
	MemberIDs   []uuid.UUID `json:"member_ids"`
	Type        string      `json:"type"`
	Title       *string     `json:"title"`
	ContextType string      `json:"context_type"`
	ContextID   *uuid.UUID  `json:"context_id"`
}

// POST /conversations
//
// 201 when the conversation was created, 200 when an existing direct
// conversation was returned.
func (h *ConversationHandler) Create(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}

	var body createConversationRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	conv, isNew, err := h.svc.CreateConversation(c.Context(), caller, conversation.CreateInput{
		MemberIDs:   body.MemberIDs,
		Type:        model.ConversationType(body.Type),
		Title:       body.Title,
		ContextType: body.ContextType,
		ContextID:   body.ContextID,
	})
	if err != nil {
		return mapConversationError(c, err)
	}
	if isNew {
		return created(c, conv)
	}
	return ok(c, conv)
}

// GET /conversations/:id
func (h *ConversationHandler) Get(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	convID, valid := conversationID(c)
	if !valid {
		return badRequest(c, "invalid conversation id")
	}

	conv, err := h.svc.GetConversation(c.Context(), caller, convID)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, conv)
}

// GET /conversations/:id/messages?after=<cursor>&before=<cursor>&limit=50
func (h *ConversationHandler) ListMessages(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	convID, valid := conversationID(c)
	if !valid {
		return badRequest(c, "invalid conversation id")
	}

	var q struct {
		After  string `query:"after"`
		Before string `query:"before"`
		Limit  int    `query:"limit"`
	}
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(c, "invalid query")
	}

	page, err := h.svc.FetchMessages(c.Context(), caller, convID, conversation.FetchInput{
		After:  q.After,
		Before: q.Before,
		Limit:  q.Limit,
	})
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, page)
}

type sendMessageRequest struct {
	Body            string  `json:"body"`
	ClientMessageID *string `json:"client_message_id"`
}

// POST /conversations/:id/messages
//
// A retried request with the same client message id answers 200 with the
// original message.
func (h *ConversationHandler) SendMessage(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	convID, valid := conversationID(c)
	if !valid {
		return badRequest(c, "invalid conversation id")
	}

	var body sendMessageRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.ClientMessageID == nil {
		if key := c.Get(HeaderIdempotencyKey); key != "" {
			body.ClientMessageID = &key
		}
	}

	msg, duplicate, err := h.svc.SendMessage(c.Context(), caller, conversation.SendInput{
		ConversationID:  convID,
		Body:            body.Body,
		ClientMessageID: body.ClientMessageID,
	})
	if err != nil {
		return mapConversationError(c, err)
	}
	if duplicate {
		return ok(c, msg)
	}
	return created(c, msg)
}

// POST /conversations/:id/read
func (h *ConversationHandler) MarkRead(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	convID, valid := conversationID(c)
	if !valid {
		return badRequest(c, "invalid conversation id")
	}

	p, err := h.svc.MarkRead(c.Context(), caller, convID)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, p)
}

// GET /conversations/:id/stream
//
// Server-sent events: "message" carries a message and its seq as the event
// id, "read" carries a read receipt, "dropped" means the server gave up on
// this stream and the client should refetch from its last seq and
// resubscribe.
func (h *ConversationHandler) Stream(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	convID, valid := conversationID(c)
	if !valid {
		return badRequest(c, "invalid conversation id")
	}

	sub, err := h.svc.Subscribe(c.Context(), caller, convID)
	if err != nil {
		return mapConversationError(c, err)
	}

	encode := c.App().Config().JSONEncoder
	heartbeat := h.heartbeat

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		fmt.Fprintf(w, "retry: %d\n\n", streamRetryMs)
		if w.Flush() != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case ev, open := <-sub.Events():
				if !open {
					if errors.Is(sub.Err(), model.ErrSubscriptionDropped) {
						_ = writeEvent(w, encode, "dropped", "", fiber.Map{"error": model.ErrSubscriptionDropped.Error()})
						_ = w.Flush()
					}
					return
				}
				if err := writeStreamEvent(w, encode, ev); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			}
		}
	})
}

func writeStreamEvent(w *bufio.Writer, encode func(any) ([]byte, error), ev realtime.Event) error {
	switch ev.Kind {
	case realtime.EventMessage:
		return writeEvent(w, encode, "message", strconv.FormatInt(ev.Seq(), 10), ev.Message)
	case realtime.EventRead:
		return writeEvent(w, encode, "read", "", ev.Read)
	}
	return nil
}

func writeEvent(w *bufio.Writer, encode func(any) ([]byte, error), name, id string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
