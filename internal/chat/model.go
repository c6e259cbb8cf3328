package chat

import (
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/samber/lo"
)

// Session is a two-party conversation. Participant order is whoever wrote first;
// it carries no meaning.
type Session struct {
	ID           string
	Participant0 protocol.Profile
	Participant1 protocol.Profile
	Messages     []Message // append-only, insertion order is chronological order
	CreatedAt    time.Time
}

// Message is immutable once appended.
type Message struct {
	SenderEmail string
	Text        string
	Image       string
	DateSent    time.Time
}

// Has reports whether email takes part in the session.
func (s Session) Has(email string) bool {
	return s.Participant0.Email == email || s.Participant1.Email == email
}

// Counterpart returns the participant that is not email.
func (s Session) Counterpart(email string) (protocol.Profile, bool) {
	switch email {
	case s.Participant0.Email:
		return s.Participant1, true
	case s.Participant1.Email:
		return s.Participant0, true
	}
	return protocol.Profile{}, false
}

// View renders the session for GET /chats; online is asked once per participant.
func (s Session) View(online func(email string) bool) protocol.SessionView {
	return protocol.SessionView{
		ID:                    s.ID,
		Participant0Email:     s.Participant0.Email,
		Participant0FirstName: s.Participant0.FirstName,
		Participant0LastName:  s.Participant0.LastName,
		Participant0Active:    online(s.Participant0.Email),
		Participant1Email:     s.Participant1.Email,
		Participant1FirstName: s.Participant1.FirstName,
		Participant1LastName:  s.Participant1.LastName,
		Participant1Active:    online(s.Participant1.Email),
		Messages: lo.Map(s.Messages, func(m Message, _ int) protocol.StoredMessage {
			return protocol.StoredMessage{SenderEmail: m.SenderEmail, Text: m.Text, Image: m.Image, DateSent: m.DateSent}
		}),
		CreatedAt: s.CreatedAt,
	}
}

// pairKey is identical for both orderings of the same two participants.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
