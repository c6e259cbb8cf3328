// Package chatclient keeps the client side view of a user's conversations and
// drives it from a websocket connection and the REST snapshot.
package chatclient

import (
	"slices"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/samber/lo"
)

// Message is a message as the local user sees it; who sent it is implied by IsSender.
type Message struct {
	Text     string    `json:"text"`
	Image    string    `json:"image,omitempty"`
	DateSent time.Time `json:"dateSent"`
	IsSender bool      `json:"isSender"`
}

// Entry is one conversation, keyed by the peer.
type Entry struct {
	Peer     protocol.ProfileStatus `json:"user"`
	Messages []Message              `json:"messages"`
}

// State is the whole model. Treat it as a value: Reduce returns a new State
// and never writes into the slices of the one it was given.
type State struct {
	Self    string
	Entries []Entry
}

// Entry returns the conversation with email, if any.
func (s State) Entry(email string) (Entry, bool) {
	i := s.index(email)
	if i < 0 {
		return Entry{}, false
	}
	return s.Entries[i], true
}

// Peers lists the peer emails in entry order.
func (s State) Peers() []string {
	return lo.Map(s.Entries, func(e Entry, _ int) string { return e.Peer.Email })
}

func (s State) index(email string) int {
	return slices.IndexFunc(s.Entries, func(e Entry) bool { return e.Peer.Email == email })
}

// Event is one of SnapshotLoaded, MessageAcked, MessagePushed, PresenceChanged
// or ConversationOpened.
type Event interface {
	isEvent()
}

// SnapshotLoaded replaces every entry with the sessions from GET /chats.
// Held are the events observed while the request was in flight; they are
// replayed on top, skipping messages the snapshot already contains.
type SnapshotLoaded struct {
	Sessions []protocol.SessionView
	Held     []Event
}

// MessageAcked is a message the local user sent, confirmed by the server.
type MessageAcked struct {
	Message protocol.ChatMessage
}

// MessagePushed is a message a peer sent to the local user.
type MessagePushed struct {
	Message protocol.ChatMessage
}

type PresenceChanged struct {
	Email    string
	IsActive bool
}

// ConversationOpened seeds an empty entry for a peer without history.
type ConversationOpened struct {
	Peer protocol.ProfileStatus
}

func (SnapshotLoaded) isEvent()     {}
func (MessageAcked) isEvent()       {}
func (MessagePushed) isEvent()      {}
func (PresenceChanged) isEvent()    {}
func (ConversationOpened) isEvent() {}

// Reduce applies ev to s and returns the next state.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case SnapshotLoaded:
		return replayHeld(fromSnapshot(s.Self, ev.Sessions), ev.Held)

	case MessageAcked:
		if ev.Message.RecipientUser == nil {
			return s
		}
		return appendMessage(s, *ev.Message.RecipientUser, ev.Message, true)

	case MessagePushed:
		if ev.Message.SenderUser == nil {
			return s
		}
		return appendMessage(s, *ev.Message.SenderUser, ev.Message, false)

	case PresenceChanged:
		i := s.index(ev.Email)
		if i < 0 || s.Entries[i].Peer.IsActive == ev.IsActive {
			return s
		}
		entries := slices.Clone(s.Entries)
		entries[i].Peer.IsActive = ev.IsActive
		return State{Self: s.Self, Entries: entries}

	case ConversationOpened:
		if s.index(ev.Peer.Email) >= 0 {
			return s
		}
		entries := append(slices.Clip(s.Entries), Entry{Peer: ev.Peer, Messages: []Message{}})
		return State{Self: s.Self, Entries: entries}
	}
	return s
}

func fromSnapshot(self string, sessions []protocol.SessionView) State {
	entries := lo.Map(sessions, func(v protocol.SessionView, _ int) Entry {
		return Entry{
			Peer: v.Peer(self),
			Messages: lo.Map(v.Messages, func(m protocol.StoredMessage, _ int) Message {
				return Message{
					Text:     m.Text,
					Image:    m.Image,
					DateSent: m.DateSent,
					IsSender: m.SenderEmail == self,
				}
			}),
		}
	})
	return State{Self: self, Entries: entries}
}

// replayHeld applies held events to a fresh snapshot. A held message is
// dropped when the snapshot has the same message for that peer; each
// snapshot message absorbs at most one held copy. DateSent is immutable
// once the server acks, so equality is exact.
func replayHeld(snapshot State, held []Event) State {
	s := snapshot
	absorbed := make(map[string]map[int]bool)
	for _, ev := range held {
		peer, msg, ok := heldMessage(ev)
		if ok && absorb(snapshot, absorbed, peer, msg) {
			continue
		}
		s = Reduce(s, ev)
	}
	return s
}

// absorb reports whether the snapshot entry for peer has an unclaimed copy of msg, and claims it.
func absorb(s State, absorbed map[string]map[int]bool, peer string, msg Message) bool {
	i := s.index(peer)
	if i < 0 {
		return false
	}
	for j, m := range s.Entries[i].Messages {
		if absorbed[peer][j] || !m.Equal(msg) {
			continue
		}
		if absorbed[peer] == nil {
			absorbed[peer] = make(map[int]bool)
		}
		absorbed[peer][j] = true
		return true
	}
	return false
}

func heldMessage(ev Event) (string, Message, bool) {
	switch ev := ev.(type) {
	case MessageAcked:
		if ev.Message.RecipientUser == nil {
			return "", Message{}, false
		}
		return ev.Message.RecipientUser.Email, toMessage(ev.Message, true), true
	case MessagePushed:
		if ev.Message.SenderUser == nil {
			return "", Message{}, false
		}
		return ev.Message.SenderUser.Email, toMessage(ev.Message, false), true
	}
	return "", Message{}, false
}

// Equal compares messages by value, instants with time.Time.Equal.
func (m Message) Equal(o Message) bool {
	return m.Text == o.Text && m.Image == o.Image && m.IsSender == o.IsSender && m.DateSent.Equal(o.DateSent)
}

func toMessage(m protocol.ChatMessage, isSender bool) Message {
	return Message{Text: m.Text, Image: m.Image, DateSent: m.DateSent, IsSender: isSender}
}

// appendMessage tail-appends to the peer's entry, creating it at the end when
// the peer is new. No dedup: a sender never receives a push of its own message.
func appendMessage(s State, peer protocol.Profile, m protocol.ChatMessage, isSender bool) State {
	msg := toMessage(m, isSender)
	entries := slices.Clone(s.Entries)

	i := s.index(peer.Email)
	if i < 0 {
		entries = append(entries, Entry{
			Peer:     protocol.ProfileStatus{Profile: peer, IsActive: !isSender},
			Messages: []Message{msg},
		})
		return State{Self: s.Self, Entries: entries}
	}

	entries[i].Messages = append(slices.Clip(entries[i].Messages), msg)
	return State{Self: s.Self, Entries: entries}
}
