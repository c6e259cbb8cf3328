package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/SCORPIA2004/CampusConnect/internal/validation"
	"github.com/go-playground/validator/v10"
)

const (
	msgInvalidRecipient = "Invalid recipient email"
	msgSendFailed       = "An error occurred while sending message. Please try again later."
)

// Router delivers one chat message: it validates the request, resolves the
// recipient and the session, persists the message, acknowledges the sender and
// finally pushes the message to the recipient if they are online.
type Router struct {
	users    Directory
	store    Store
	registry *Registry
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewRouter(users Directory, store Store, registry *Registry, validate *validator.Validate, log *slog.Logger) *Router {
	return &Router{
		users:    users,
		store:    store,
		registry: registry,
		validate: validate,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the clock that stamps DateSent.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Send handles a "message" event from sender. ack is called exactly once, and
// only after the message is persisted when the status is 200. A failed or
// dropped push never changes the ack.
func (r *Router) Send(ctx context.Context, sender protocol.Profile, req protocol.SendRequest, ack func(protocol.Ack)) {
	req.RecipientEmail = validation.NormalizeEmail(req.RecipientEmail)
	if err := r.validate.Struct(req); err != nil {
		ack(protocol.Ack{Status: protocol.StatusBadRequest, ErrorMessage: validation.Describe(err)})
		return
	}
	if req.RecipientEmail == sender.Email {
		ack(protocol.Ack{Status: protocol.StatusBadRequest, ErrorMessage: msgInvalidRecipient})
		return
	}

	recipient, found, err := r.users.ProfileByEmail(ctx, req.RecipientEmail)
	if err != nil {
		r.fail(ack, "resolve recipient", sender, req, err)
		return
	}
	if !found {
		ack(protocol.Ack{Status: protocol.StatusBadRequest, ErrorMessage: msgInvalidRecipient})
		return
	}

	session, err := r.store.GetOrCreateSession(ctx, sender, recipient)
	if err != nil {
		r.fail(ack, "resolve session", sender, req, err)
		return
	}

	msg := Message{
		SenderEmail: sender.Email,
		Text:        req.Text,
		Image:       req.Image,
		DateSent:    r.now().UTC().Truncate(time.Millisecond),
	}
	if err := r.store.AppendMessage(ctx, session.ID, msg); err != nil {
		r.fail(ack, "append message", sender, req, err)
		return
	}

	ack(protocol.Ack{
		Status: protocol.StatusOK,
		Message: &protocol.ChatMessage{
			RecipientUser: &recipient,
			Text:          msg.Text,
			Image:         msg.Image,
			DateSent:      msg.DateSent,
		},
	})

	h, online := r.registry.HandleFor(recipient.Email)
	if !online {
		return
	}
	pushed := h.Emit(protocol.EventMessage, protocol.ChatMessage{
		SenderUser: &sender,
		Text:       msg.Text,
		Image:      msg.Image,
		DateSent:   msg.DateSent,
	})
	if !pushed {
		r.log.Debug("push dropped", "to", recipient.Email, "session_id", session.ID)
	}
}

func (r *Router) fail(ack func(protocol.Ack), stage string, sender protocol.Profile, req protocol.SendRequest, err error) {
	r.log.Error("send message failed",
		"stage", stage,
		"sender", sender.Email,
		"recipient", req.RecipientEmail,
		"error", err,
	)
	ack(protocol.Ack{Status: protocol.StatusInternal, ErrorMessage: msgSendFailed})
}
